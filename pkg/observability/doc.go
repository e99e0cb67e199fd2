/*
Package observability turns engine lifecycle hooks into logs and Prometheus metrics.

Both helpers return a domain.LifecycleHooks value; combine them with
domain.CombineHooks and pass the result to quire.WithHooks:

	metrics, _ := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := domain.CombineHooks(observability.LogHooks(logger), metrics.Hooks())
*/
package observability
