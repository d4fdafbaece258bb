package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) { s.count.Add(1) }

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) { <-s.gate }

type closingSink struct {
	countingSink
	closed atomic.Bool
	err    error
}

func (s *closingSink) Close() error {
	s.closed.Store(true)
	return s.err
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	require.Nil(t, d)

	d.Emit(context.Background(), Event{EventType: "login_success"})
	assert.Zero(t, d.Dropped())
	assert.Zero(t, d.Delivered())
	assert.NoError(t, d.Close())
}

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}
	require.NoError(t, d.Close())

	assert.EqualValues(t, 50, sink.count.Load())
	assert.EqualValues(t, 50, d.Delivered())
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The first event is picked up by the worker and blocks in the sink, the
	// second fills the buffer, the rest must be dropped.
	d.Emit(context.Background(), Event{EventType: "a"})
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Event{EventType: "b"})
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "c"})
	}
	assert.EqualValues(t, 10, d.Dropped())

	close(sink.gate)
	require.NoError(t, d.Close())
	assert.EqualValues(t, 2, d.Delivered())
}

func TestDispatcherBlockingHonorsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	d.Emit(context.Background(), Event{EventType: "a"})
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})
	assert.EqualValues(t, 1, d.Dropped())

	close(sink.gate)
	require.NoError(t, d.Close())
}

func TestDispatcherClosesSink(t *testing.T) {
	sink := &closingSink{err: errors.New("flush failed")}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{EventType: "revoke"})

	err := d.Close()
	require.EqualError(t, err, "flush failed")
	assert.True(t, sink.closed.Load())
	assert.EqualValues(t, 1, sink.count.Load())

	// second close is a no-op returning the same result
	assert.EqualError(t, d.Close(), "flush failed")
	d.Emit(context.Background(), Event{EventType: "late"})
	assert.EqualValues(t, 1, sink.count.Load())
}

type panickingSink struct{}

func (panickingSink) Emit(context.Context, Event) { panic("sink bug") }

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, panickingSink{})
	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})
	require.NoError(t, d.Close())

	assert.EqualValues(t, 2, d.Dropped())
	assert.Zero(t, d.Delivered())
}

func TestDispatcherCloseReleasesBlockedEmit(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Emit(context.Background(), Event{EventType: "a"})
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Event{EventType: "b"})

	returned := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "c"})
		close(returned)
	}()
	closed := make(chan error, 1)
	go func() { closed <- d.Close() }()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("blocked Emit was not released by Close")
	}
	close(sink.gate)
	require.NoError(t, <-closed)
	assert.EqualValues(t, 2, d.Delivered())
}

func TestJSONWriterSinkOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	ts := time.Unix(1000, 0).UTC()

	sink.Emit(context.Background(), Event{Timestamp: ts, EventType: "login_success", Subject: "alice", Success: true})
	sink.Emit(context.Background(), Event{Timestamp: ts, EventType: "refresh_replayed", TokenID: "t1", Family: "f1", Error: "refresh_replayed"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "alice", first["subject"])
	assert.Equal(t, true, first["success"])
	assert.NotContains(t, first, "token_id")
	assert.Equal(t, "f1", second["family"])
	assert.Equal(t, "refresh_replayed", second["error"])
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(0)
	sink.Emit(context.Background(), Event{EventType: "x"})

	select {
	case ev := <-sink.Events():
		assert.Equal(t, "x", ev.EventType)
	default:
		t.Fatal("expected buffered event")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Emit(context.Background(), Event{EventType: "fill"})
	sink.Emit(ctx, Event{EventType: "dropped"})
	assert.Len(t, sink.Events(), 1)
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: TypeLoginSuccess, Subject: "alice", Success: true})
	sink.Emit(context.Background(), Event{EventType: TypeLoginFailure, Error: "invalid_credentials"})
	sink.Emit(context.Background(), Event{
		EventType: TypeAccessSignatureMismatch,
		IP:        "203.0.113.9",
		Error:     "signature_mismatch",
		Metadata:  map[string]string{"path": "/api/hello"},
	})

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, "alice", entries[0].ContextMap()["subject"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, TypeAccessSignatureMismatch, entries[2].Message)
	fields := entries[2].ContextMap()
	assert.Equal(t, "203.0.113.9", fields["ip"])
	assert.Equal(t, "signature_mismatch", fields["error"])
	assert.NotContains(t, fields, "subject")
}

func TestSecurityEvents(t *testing.T) {
	for _, typ := range []string{TypeRefreshReplayed, TypeRefreshFamilyRevoked, TypeAccessSignatureMismatch, TypeLoginRateLimited} {
		assert.True(t, Event{EventType: typ}.Security(), typ)
	}
	for _, typ := range []string{TypeLoginSuccess, TypeLoginFailure, TypeRefreshExpired, TypeRefreshInvalid, TypeAccessKindMismatch} {
		assert.False(t, Event{EventType: typ}.Security(), typ)
	}
}

func TestMultiSink(t *testing.T) {
	assert.Equal(t, NoOpSink{}, NewMultiSink(nil, nil))

	only := &countingSink{}
	assert.Same(t, only, NewMultiSink(nil, only))

	a := &closingSink{err: errors.New("a failed")}
	b := &countingSink{}
	c := &closingSink{}
	multi := NewMultiSink(a, b, c)
	multi.Emit(context.Background(), Event{EventType: TypeLoginSuccess})
	multi.Emit(context.Background(), Event{EventType: TypeLoginFailure})

	assert.EqualValues(t, 2, a.count.Load())
	assert.EqualValues(t, 2, b.count.Load())
	assert.EqualValues(t, 2, c.count.Load())

	closer, ok := multi.(interface{ Close() error })
	require.True(t, ok)
	assert.EqualError(t, closer.Close(), "a failed")
	assert.True(t, a.closed.Load())
	assert.True(t, c.closed.Load())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONWriterSinkCountsFailures(t *testing.T) {
	sink := NewJSONWriterSink(failingWriter{})
	sink.Emit(context.Background(), Event{EventType: TypeLoginSuccess})
	sink.Emit(context.Background(), Event{EventType: TypeLoginFailure})
	assert.EqualValues(t, 2, sink.Failed())
}

func TestZapSinkNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewZapSink(nil).Emit(context.Background(), Event{EventType: "x"})
	})
}
