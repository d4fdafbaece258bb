// Package metrics counts engine outcomes without locks or allocation.
//
// Each [MetricID] owns one padded uint64 slot, so concurrent increments of
// different counters do not share a cache line. The only histogram is
// MetricAuthLatency with eight fixed upper bounds from 50µs to +Inf; it
// is recorded and exported only when latency histograms are enabled.
//
// A [Snapshot] is a point-in-time copy. The Prometheus and OpenTelemetry
// exporters under metrics/export read snapshots and never touch the slots
// directly. This package does no I/O and keeps no global registry.
package metrics
