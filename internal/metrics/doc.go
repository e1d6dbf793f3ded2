// Package metrics exposes Prometheus instrumentation for the engine and the
// HTTP service.
//
// Every Collector owns its registry, so several collectors (one per test, for
// instance) never collide on metric names. A nil *Collector is valid and
// records nothing.
package metrics
