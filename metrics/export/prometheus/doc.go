// Package prometheus renders goGuard engine metrics in the Prometheus text exposition
// format.
//
// [NewExporter] wraps an Engine and exposes an [http.Handler] suitable for a /metrics
// route. Counters are named goguard_*_total; the validate latency histogram is
// goguard_validate_latency_seconds. Nothing is registered globally.
package prometheus
