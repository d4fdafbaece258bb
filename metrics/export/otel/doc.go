// Package otel exports engine metrics as OpenTelemetry observable
// instruments.
//
// [New] registers an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per latency bucket. One callback reads
// MetricsSnapshot on each collection. The caller owns the MeterProvider.
package otel
