// Package engine provides a unified interface for the execution core.
// The API layer and strategy callers only interact with the core through Service.
package engine

import (
	"context"

	"execution-core/internal/botconfig"
	"execution-core/internal/order"
	"execution-core/internal/risk"
	exchange "execution-core/pkg/exchanges/common"
)

// Service defines the operations exposed to strategy callers.
type Service interface {
	// Bot configuration
	RegisterBot(cfg botconfig.BotConfig) error
	ReconfigureBot(cfg botconfig.BotConfig) error
	Bot(id string) (botconfig.BotConfig, error)
	ListBots() []botconfig.BotConfig

	// Orders
	OpenPosition(ctx context.Context, botID, side string, ov order.Overrides) (exchange.OrderResult, error)
	ClosePosition(ctx context.Context, ticket uint64) (exchange.OrderResult, error)
	CloseAllForSymbol(ctx context.Context, symbol string) (order.CloseReport, error)

	// Trailing stops
	StartTrailingStop(ctx context.Context, ticket uint64, distancePoints float64) (*risk.TrailHandle, error)
	StopTrailingStop(ticket uint64) (risk.TrailStatus, error)
	TrailingStops() []risk.TrailStatus

	// Queries
	GetPosition(ctx context.Context, ticket uint64) (exchange.Position, error)
	GetProfit(ctx context.Context, ticket uint64) (float64, error)
	GetBalance(ctx context.Context) (float64, error)
	GetAccount(ctx context.Context) (*BalanceInfo, error)

	// System
	GetSystemStatus(ctx context.Context) *SystemStatus
	Close() error
}
