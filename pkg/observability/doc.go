/*
Package observability turns engine lifecycle events into Prometheus metrics
and structured log lines.

Both are exposed as domain.LifecycleHooks so they can be combined with any
other hooks through domain.ComposeHooks:

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	hooks := domain.ComposeHooks(metrics.Hooks(), observability.LogHooks(logger))
	eng := runtime.NewEngine(store, provider, runtime.WithHooks(hooks))
*/
package observability
