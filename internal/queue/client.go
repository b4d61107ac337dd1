package queue

import "context"

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, msg Message) error

func (f ClientFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
