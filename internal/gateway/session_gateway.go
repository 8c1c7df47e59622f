package gateway

import (
	"context"

	"execution-core/internal/monitor"
	exchange "execution-core/pkg/exchanges/common"
)

// SessionGateway brackets every venue call in an acquired session and times it.
type SessionGateway struct {
	next    exchange.Gateway
	manager *Manager
	metrics *monitor.SystemMetrics
}

// NewSessionGateway wraps next so each call runs inside a session scope of m.
func NewSessionGateway(next exchange.Gateway, m *Manager, metrics *monitor.SystemMetrics) *SessionGateway {
	return &SessionGateway{next: next, manager: m, metrics: metrics}
}

func (g *SessionGateway) GetTick(ctx context.Context, symbol string) (t exchange.Tick, err error) {
	err = g.scoped(ctx, "tick", func(ctx context.Context) error {
		t, err = g.next.GetTick(ctx, symbol)
		return err
	})
	return t, err
}

func (g *SessionGateway) GetSymbolInfo(ctx context.Context, symbol string) (info exchange.SymbolInfo, err error) {
	err = g.scoped(ctx, "symbol_info", func(ctx context.Context) error {
		info, err = g.next.GetSymbolInfo(ctx, symbol)
		return err
	})
	return info, err
}

func (g *SessionGateway) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (res exchange.OrderResult, err error) {
	err = g.scoped(ctx, "order_send", func(ctx context.Context) error {
		res, err = g.next.SubmitOrder(ctx, req)
		return err
	})
	return res, err
}

func (g *SessionGateway) GetPosition(ctx context.Context, ticket uint64) (pos exchange.Position, err error) {
	err = g.scoped(ctx, "position", func(ctx context.Context) error {
		pos, err = g.next.GetPosition(ctx, ticket)
		return err
	})
	return pos, err
}

func (g *SessionGateway) GetPositionsBySymbol(ctx context.Context, symbol string) (out []exchange.Position, err error) {
	err = g.scoped(ctx, "positions", func(ctx context.Context) error {
		out, err = g.next.GetPositionsBySymbol(ctx, symbol)
		return err
	})
	return out, err
}

func (g *SessionGateway) GetAccountInfo(ctx context.Context) (info exchange.AccountInfo, err error) {
	err = g.scoped(ctx, "account_info", func(ctx context.Context) error {
		info, err = g.next.GetAccountInfo(ctx)
		return err
	})
	return info, err
}

func (g *SessionGateway) scoped(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.manager.WithSession(ctx, func(ctx context.Context) error {
		timer := g.metrics.NewTimer(op)
		defer timer.Stop()
		return fn(ctx)
	})
}
