package rdfstore

import "context"

// Sink delivers a fire-and-forget notification that something changed in a
// space: a graph created or deleted, a bulk-import phase reached. Emit must
// never block the caller's data-path operation on delivery succeeding; a
// Sink implementation that cannot reach its backend should log and return,
// not retry indefinitely.
type Sink interface {
	Emit(ctx context.Context, channel string, payload map[string]interface{}) error
}

// NoopSink discards every signal. It is the default Sink for callers that
// have no notification backend configured.
type NoopSink struct{}

// Emit implements Sink by doing nothing.
func (NoopSink) Emit(ctx context.Context, channel string, payload map[string]interface{}) error {
	return nil
}

// MultiSink fans one signal out to several backends, continuing past
// individual failures so one broken sink cannot silence the others.
type MultiSink struct {
	Sinks []Sink
}

// Emit calls Emit on every configured sink, returning the first error
// encountered (after attempting all of them).
func (m MultiSink) Emit(ctx context.Context, channel string, payload map[string]interface{}) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.Emit(ctx, channel, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
