package application

import "context"

// Command is a request to change state. The name identifies it in logs.
type Command interface {
	CommandName() string
}

// Query is a read-only request.
type Query interface {
	QueryName() string
}

// CommandHandler executes one command type.
type CommandHandler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// QueryHandler answers one query type.
type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}
