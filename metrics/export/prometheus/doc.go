// Package prometheus exports engine metrics through client_golang.
//
// [NewCollector] wraps a [MetricsSource] (usually *tokenAuth.Engine) in a
// prometheus.Collector. Counters are named tokenauth_*_total and the
// authentication latency histogram is tokenauth_auth_latency_seconds.
// Nothing is registered globally; use [NewRegistry] and [Handler] or register
// the collector yourself.
package prometheus
