// Package metric provides Prometheus-based metrics collection for the
// sync layer.
//
// The package offers a centralized metrics registry managing both core
// metrics (upstream requests, cache hit rates, breaker state, preview
// batching) and component-specific metrics registered through the
// MetricsRegistrar interface.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	mux.Handle("/metrics", registry.Handler())
//
// Components accept the registry through functional options and register
// their own collectors under a component prefix:
//
//	c, err := cache.NewTTL[[]agentapi.Memory](ctx, cfg.TTL, cfg.SweepInterval,
//	    cache.WithMetrics[[]agentapi.Memory](registry, "memories_cache"))
package metric
