/*
Package observability turns engine lifecycle events into signals.

Metrics exports Prometheus collectors fed by domain.LifecycleHooks, and
LogHooks writes an audit trail of the same events through slog. Both are
plain hook values, so they compose with domain.LifecycleHooks.Merge:

	m := observability.NewMetrics(prometheus.NewRegistry())
	hooks := m.Hooks().Merge(observability.LogHooks(logger))
*/
package observability
