package progress

import "context"

// Sink receives batches from the Hub's goroutine. Consume runs under the
// Hub's SinkTimeout; Close is called once when the Hub closes.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// SinkFunc adapts a function to a Sink whose Close is a no-op.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}

// Emitter is the write side the scan collector and fetch workers see.
type Emitter interface {
	Emit(evt Event)
}
