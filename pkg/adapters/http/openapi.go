package http

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

//go:embed openapi.yaml
var openapiYAML []byte

// rawSpec returns the embedded OpenAPI document as served on /openapi.yaml.
func rawSpec() ([]byte, error) {
	if len(openapiYAML) == 0 {
		return nil, errors.New("openapi document is not embedded")
	}
	return openapiYAML, nil
}

var loadSwagger = sync.OnceValues(func() (*openapi3.T, error) {
	spec, err := rawSpec()
	if err != nil {
		return nil, err
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("error loading openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
})

// GetSwagger returns the parsed and validated OpenAPI document of the API.
func GetSwagger() (*openapi3.T, error) {
	return loadSwagger()
}

// requestValidator rejects requests whose parameters or body do not match the
// OpenAPI document. Paths the document does not describe pass through.
func (s *Server) requestValidator(doc *openapi3.T) (func(http.Handler) http.Handler, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, err
	}
	options := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
					s.logger.Debug("openapi route lookup failed", "path", r.URL.Path, "err", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				s.fail(w, route.Operation.OperationID, badRequest(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// pathParam binds a simple-style path parameter, unescaping it.
func pathParam(r *http.Request, name string) (string, error) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", badRequest(fmt.Errorf("invalid format for parameter %s: %w", name, err))
	}
	return v, nil
}

// EventsParams are the query parameters of GET /events.
type EventsParams struct {
	SessionID *string
	// Watch is a comma separated fact list.
	Watch *[]string
}

func bindEventsParams(r *http.Request) (EventsParams, error) {
	var params EventsParams
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "session_id", query, &params.SessionID); err != nil {
		return params, badRequest(fmt.Errorf("invalid format for parameter session_id: %w", err))
	}
	if err := runtime.BindQueryParameter("form", false, false, "watch", query, &params.Watch); err != nil {
		return params, badRequest(fmt.Errorf("invalid format for parameter watch: %w", err))
	}
	return params, nil
}

func (s *Server) serveSpec(w http.ResponseWriter, r *http.Request) {
	spec, err := rawSpec()
	if err != nil {
		s.fail(w, "OpenAPI", err)
		return
	}
	w.Header().Set("Content-Type", "text/yaml")
	_, _ = w.Write(spec)
}

func serveSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(swaggerHTML))
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Quire API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`
