package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Event types emitted by the engine.
const (
	TypeLoginSuccess            = "login_success"
	TypeLoginFailure            = "login_failure"
	TypeLoginRateLimited        = "login_rate_limited"
	TypeRefreshSuccess          = "refresh_success"
	TypeRefreshExpired          = "refresh_expired"
	TypeRefreshInvalid          = "refresh_invalid"
	TypeRefreshReplayed         = "refresh_replayed"
	TypeRefreshFamilyRevoked    = "refresh_family_revoked"
	TypeRefreshRevoked          = "refresh_revoked"
	TypeAccessSignatureMismatch = "access_signature_mismatch"
	TypeAccessKindMismatch      = "access_kind_mismatch"
)

// Event is one token lifecycle record. Token strings are never stored, only
// their ids.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	Family    string            `json:"family,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Security reports whether the event points at a forged, replayed or
// brute-forced credential rather than an ordinary failure.
func (e Event) Security() bool {
	switch e.EventType {
	case TypeRefreshReplayed, TypeRefreshFamilyRevoked, TypeAccessSignatureMismatch, TypeLoginRateLimited:
		return true
	}
	return false
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a sink with the given buffer (minimum 1).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Emit blocks until the event is buffered or ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line. Each line goes out in a
// single Write call.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
	buf    []byte
	failed atomic.Uint64
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(append(s.buf[:0], data...), '\n')
	if _, err := s.writer.Write(s.buf); err != nil {
		s.failed.Add(1)
	}
}

// Failed returns the number of events that could not be encoded or written.
func (s *JSONWriterSink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

// NewMultiSink drops nil sinks and unwraps a single remaining sink.
func NewMultiSink(sinks ...Sink) Sink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NoOpSink{}
	case 1:
		return out[0]
	}
	return out
}

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}

// Close closes every sink that is an io.Closer.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
