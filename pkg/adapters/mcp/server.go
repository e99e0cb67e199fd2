package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/quire"
	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/ports"
)

// CatalogURI is the resource exposing the action catalog.
const CatalogURI = "quire://catalog"

// ActionsResponse lists the catalog.
type ActionsResponse struct {
	Actions []domain.Action `json:"actions" jsonschema_description:"Actions in registration order"`
}

// PlanResponse describes a plan without executing it.
type PlanResponse struct {
	Actions  []string          `json:"actions" jsonschema_description:"Action names in execution order"`
	Cost     float64           `json:"cost" jsonschema_description:"Total plan cost"`
	Batches  [][]string        `json:"batches" jsonschema_description:"Actions grouped by concurrent batch"`
	Expected domain.WorldState `json:"expected" jsonschema_description:"World state after every step succeeds"`
}

// RunResponse reports a session run.
type RunResponse struct {
	RunID      string            `json:"run_id" jsonschema_description:"Identifier of the run"`
	Completed  int               `json:"completed" jsonschema_description:"Steps that succeeded"`
	Total      int               `json:"total" jsonschema_description:"Steps in the plan"`
	Actions    []string          `json:"actions" jsonschema_description:"Executed actions with their status"`
	FinalState domain.WorldState `json:"final_state" jsonschema_description:"World state after the run"`
	Error      string            `json:"error,omitempty" jsonschema_description:"Failure summary when the run stopped early"`
}

// Server wraps a quire engine and exposes it as an MCP Server.
type Server struct {
	engine    ports.Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("quire-mcp", strings.TrimSpace(quire.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and shuts it down when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_actions",
		mcp.WithDescription("List the actions the planner can use, with preconditions, effects and cost."),
		mcp.WithOutputSchema[ActionsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListActions))

	s.mcpServer.AddTool(mcp.NewTool("plan_goal",
		mcp.WithDescription("Compute the cheapest action sequence reaching a goal. Nothing is executed."),
		mcp.WithString("goal", mcp.Required(), mcp.Description("Goal expression, e.g. 'chaptersCompleted >= 3, isPublished'")),
		mcp.WithString("state", mcp.Description("JSON object of facts to plan from (optional if session_id is set)")),
		mcp.WithString("session_id", mcp.Description("Plan from the latest state of this session")),
		mcp.WithOutputSchema[PlanResponse](),
	), mcp.NewStructuredToolHandler(s.handlePlanGoal))

	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Create a project session with an initial world state."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithString("state", mcp.Description("JSON object of initial facts, e.g. {\"chaptersTotal\": 10}")),
	), mcp.NewStructuredToolHandler(s.handleStartSession))

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get the latest persisted snapshot of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("pursue_goal",
		mcp.WithDescription("Plan and execute towards a goal from a session's state, persisting the result."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithString("goal", mcp.Required(), mcp.Description("Goal expression")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handlePursueGoal))

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List known session identifiers."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.engine.Sessions(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(ids)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleListActions(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ActionsResponse, error) {
	return ActionsResponse{Actions: s.engine.Actions()}, nil
}

func (s *Server) handlePlanGoal(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (PlanResponse, error) {
	goal, err := goalArg(args)
	if err != nil {
		return PlanResponse{}, err
	}

	var state domain.WorldState
	if id, _ := args["session_id"].(string); id != "" {
		snap, err := s.engine.State(ctx, id)
		if err != nil {
			return PlanResponse{}, fmt.Errorf("load session failed: %w", err)
		}
		state = snap.State
	} else if state, err = stateArg(args); err != nil {
		return PlanResponse{}, err
	}

	plan, err := s.engine.Plan(ctx, state, goal)
	if err != nil {
		return PlanResponse{}, fmt.Errorf("planning failed: %w", err)
	}

	resp := PlanResponse{
		Actions:  plan.ActionNames(),
		Cost:     plan.Cost,
		Batches:  [][]string{},
		Expected: plan.Expected(),
	}
	for _, b := range plan.Batches() {
		names := make([]string, 0, len(b.Steps))
		for _, st := range b.Steps {
			names = append(names, st.Action.Name)
		}
		resp.Batches = append(resp.Batches, names)
	}
	return resp, nil
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (*domain.Snapshot, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		return nil, errors.New("session_id is required")
	}
	state, err := stateArg(args)
	if err != nil {
		return nil, err
	}
	return s.engine.StartSession(ctx, id, state)
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (*domain.Snapshot, error) {
	id, _ := args["session_id"].(string)
	return s.engine.State(ctx, id)
}

func (s *Server) handlePursueGoal(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	id, _ := args["session_id"].(string)
	goal, err := goalArg(args)
	if err != nil {
		return RunResponse{}, err
	}

	res, err := s.engine.Pursue(ctx, id, goal)
	if res == nil {
		return RunResponse{}, fmt.Errorf("pursue failed: %w", err)
	}
	if err != nil {
		s.logger.Warn("MCP pursue_goal: run stopped", "session_id", id, "err", err)
	}

	resp := RunResponse{
		RunID:      res.RunID,
		Completed:  res.Completed,
		Total:      res.Total,
		Actions:    make([]string, 0, len(res.Results)),
		FinalState: res.FinalState,
	}
	for _, r := range res.Results {
		resp.Actions = append(resp.Actions, fmt.Sprintf("%s:%s", r.Action, r.Status))
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(CatalogURI, "Action Catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Actions())
		if err != nil {
			return nil, fmt.Errorf("failed to encode catalog: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      CatalogURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func goalArg(args map[string]interface{}) (domain.Conditions, error) {
	expr, _ := args["goal"].(string)
	goal, err := catalog.ParseGoal(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid goal: %w", err)
	}
	return goal, nil
}

// stateArg accepts the state either as a JSON string or as an object.
func stateArg(args map[string]interface{}) (domain.WorldState, error) {
	raw := map[string]any{}
	switch v := args["state"].(type) {
	case nil:
	case string:
		if strings.TrimSpace(v) != "" {
			if err := json.Unmarshal([]byte(v), &raw); err != nil {
				return domain.WorldState{}, fmt.Errorf("invalid state JSON: %w", err)
			}
		}
	case map[string]interface{}:
		raw = v
	default:
		return domain.WorldState{}, fmt.Errorf("invalid state argument of type %T", v)
	}
	return domain.StateFromMap(raw)
}
