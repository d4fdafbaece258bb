// Package audit dispatches token lifecycle events (login, refresh, replay,
// revoke, rejected access tokens) to a pluggable Sink.
//
// # Components
//
//   - [Sink] is implemented by NoOpSink, ChannelSink, JSONWriterSink and
//     ZapSink here, and by the Kafka sink in audit/kafkasink.
//   - [Dispatcher] relays events from request goroutines to the sink on a
//     single worker, either dropping or blocking when its buffer is full.
//
// The package does not decide which events exist; the engine does.
package audit
