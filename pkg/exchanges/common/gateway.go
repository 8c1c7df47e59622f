package common

import (
	"context"
	"errors"
)

var (
	// ErrSessionUnavailable is returned by a gateway when the venue session is not established.
	ErrSessionUnavailable = errors.New("venue session unavailable")
	// ErrPositionNotFound is returned when a ticket has no open position.
	ErrPositionNotFound = errors.New("position not found")
)

// TickSource resolves live prices.
type TickSource interface {
	GetTick(ctx context.Context, symbol string) (Tick, error)
}

// Gateway abstracts a trading venue.
type Gateway interface {
	TickSource
	GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetPosition(ctx context.Context, ticket uint64) (Position, error)
	GetPositionsBySymbol(ctx context.Context, symbol string) ([]Position, error)
	GetAccountInfo(ctx context.Context) (AccountInfo, error)
}

// Session is the process-wide venue connection.
type Session interface {
	Initialize(ctx context.Context) error
	Shutdown() error
}

// Pinger is implemented by sessions that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
