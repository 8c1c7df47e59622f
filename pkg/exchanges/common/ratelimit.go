package common

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitedGateway throttles every venue call through one shared token bucket, so
// polling supervisors and strategy callers draw from the same budget.
type RateLimitedGateway struct {
	next    Gateway
	limiter *rate.Limiter
	logger  *zap.Logger

	// SlowWait is the wait above which a throttled call is logged.
	SlowWait time.Duration
}

// NewRateLimitedGateway wraps next with a limiter of perSecond calls and the given burst.
// perSecond <= 0 disables throttling.
func NewRateLimitedGateway(next Gateway, perSecond float64, burst int, logger *zap.Logger) *RateLimitedGateway {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitedGateway{
		next:     next,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		SlowWait: 500 * time.Millisecond,
	}
}

func (g *RateLimitedGateway) wait(ctx context.Context, op string) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", op, err)
	}
	if waited := time.Since(start); waited >= g.SlowWait {
		g.logger.Warn("venue call throttled", zap.String("op", op), zap.Duration("waited", waited))
	}
	return nil
}

func (g *RateLimitedGateway) GetTick(ctx context.Context, symbol string) (Tick, error) {
	if err := g.wait(ctx, "tick"); err != nil {
		return Tick{}, err
	}
	return g.next.GetTick(ctx, symbol)
}

func (g *RateLimitedGateway) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	if err := g.wait(ctx, "symbol_info"); err != nil {
		return SymbolInfo{}, err
	}
	return g.next.GetSymbolInfo(ctx, symbol)
}

func (g *RateLimitedGateway) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := g.wait(ctx, "order_send"); err != nil {
		return OrderResult{}, err
	}
	return g.next.SubmitOrder(ctx, req)
}

func (g *RateLimitedGateway) GetPosition(ctx context.Context, ticket uint64) (Position, error) {
	if err := g.wait(ctx, "position"); err != nil {
		return Position{}, err
	}
	return g.next.GetPosition(ctx, ticket)
}

func (g *RateLimitedGateway) GetPositionsBySymbol(ctx context.Context, symbol string) ([]Position, error) {
	if err := g.wait(ctx, "positions"); err != nil {
		return nil, err
	}
	return g.next.GetPositionsBySymbol(ctx, symbol)
}

func (g *RateLimitedGateway) GetAccountInfo(ctx context.Context) (AccountInfo, error) {
	if err := g.wait(ctx, "account_info"); err != nil {
		return AccountInfo{}, err
	}
	return g.next.GetAccountInfo(ctx)
}
