package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"execution-core/internal/botconfig"
	"execution-core/internal/events"
	"execution-core/internal/gateway"
	"execution-core/internal/order"
	"execution-core/internal/risk"
	exchange "execution-core/pkg/exchanges/common"
)

// Impl implements the Service interface by composing the core modules.
type Impl struct {
	registry *botconfig.Registry
	gw       exchange.Gateway
	executor *order.Executor
	closer   *order.Closer
	trailer  *risk.Trailer
	session  *gateway.Manager
	bus      *events.Bus
	logger   *zap.Logger

	// supervisors outlive the request that started them
	baseCtx    context.Context
	baseCancel context.CancelFunc
	release    func()
	resources  []io.Closer
	closeOnce  sync.Once
	closeErr   error

	// System metadata
	meta SystemStatus
}

// Config holds the collaborators for creating an engine implementation.
type Config struct {
	Registry *botconfig.Registry
	Gateway  exchange.Gateway
	Executor *order.Executor
	Closer   *order.Closer
	Trailer  *risk.Trailer
	Session  *gateway.Manager // optional; when set the engine holds the session open
	Bus      *events.Bus
	Logger   *zap.Logger
	Meta     SystemStatus

	// Resources are closed last by Close, e.g. the venue itself.
	Resources []io.Closer
}

// NewImpl creates an engine implementation. When a session manager is configured the
// session is acquired here and held until Close.
func NewImpl(ctx context.Context, cfg Config) (*Impl, error) {
	if cfg.Registry == nil || cfg.Gateway == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("engine: registry, gateway and executor are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	closer := cfg.Closer
	if closer == nil {
		closer = order.NewCloser(cfg.Gateway, cfg.Executor, cfg.Bus, logger)
	}
	trailer := cfg.Trailer
	if trailer == nil {
		trailer = risk.NewTrailer(risk.NewSupervisor(cfg.Gateway, cfg.Executor, cfg.Bus, nil, logger))
	}

	e := &Impl{
		registry:  cfg.Registry,
		gw:        cfg.Gateway,
		executor:  cfg.Executor,
		closer:    closer,
		trailer:   trailer,
		session:   cfg.Session,
		bus:       cfg.Bus,
		logger:    logger,
		meta:      cfg.Meta,
		resources: cfg.Resources,
	}
	if e.session != nil {
		release, err := e.session.Acquire(ctx)
		if err != nil {
			return nil, &order.SessionError{Op: "engine start", Err: err}
		}
		e.release = release
	}
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	return e, nil
}

// --- Bot configuration ---

func (e *Impl) RegisterBot(cfg botconfig.BotConfig) error {
	if err := e.registry.Register(cfg.WithDefaults()); err != nil {
		return err
	}
	e.logger.Info("bot registered", zap.String("bot", cfg.BotID), zap.String("symbol", cfg.Symbol))
	return nil
}

func (e *Impl) ReconfigureBot(cfg botconfig.BotConfig) error {
	if err := e.registry.Reconfigure(cfg.WithDefaults()); err != nil {
		return err
	}
	e.logger.Info("bot reconfigured", zap.String("bot", cfg.BotID), zap.String("symbol", cfg.Symbol))
	return nil
}

func (e *Impl) Bot(id string) (botconfig.BotConfig, error) {
	return e.registry.Get(id)
}

func (e *Impl) ListBots() []botconfig.BotConfig {
	ids := e.registry.IDs()
	out := make([]botconfig.BotConfig, 0, len(ids))
	for _, id := range ids {
		if cfg, err := e.registry.Get(id); err == nil {
			out = append(out, cfg)
		}
	}
	return out
}

// --- Orders ---

// OpenPosition builds a market order from the bot's configuration and submits it. The
// request is rebuilt before every attempt so each retry binds a fresh price.
func (e *Impl) OpenPosition(ctx context.Context, botID, side string, ov order.Overrides) (exchange.OrderResult, error) {
	cfg, err := e.registry.Get(botID)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	return e.executor.SubmitBuilt(ctx, func(ctx context.Context) (exchange.OrderRequest, error) {
		return order.Build(ctx, e.gw, cfg, side, ov)
	})
}

func (e *Impl) ClosePosition(ctx context.Context, ticket uint64) (exchange.OrderResult, error) {
	res, err := e.closer.CloseByTicket(ctx, ticket)
	if err == nil {
		e.trailer.Stop(ticket)
	}
	return res, err
}

func (e *Impl) CloseAllForSymbol(ctx context.Context, symbol string) (order.CloseReport, error) {
	report, err := e.closer.CloseAllBySymbol(ctx, symbol)
	for _, ticket := range report.Closed() {
		e.trailer.Stop(ticket)
	}
	return report, err
}

// --- Trailing stops ---

// StartTrailingStop supervises ticket until the position closes, StopTrailingStop is
// called or the engine closes. ctx only bounds the start itself.
func (e *Impl) StartTrailingStop(ctx context.Context, ticket uint64, distancePoints float64) (*risk.TrailHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := e.trailer.Start(e.baseCtx, ticket, distancePoints)
	if err != nil {
		return nil, err
	}
	e.logger.Info("trailing stop requested", zap.Uint64("ticket", ticket), zap.Float64("distance_points", distancePoints))
	return h, nil
}

func (e *Impl) StopTrailingStop(ticket uint64) (risk.TrailStatus, error) {
	status, ok := e.trailer.Stop(ticket)
	if !ok {
		return risk.TrailStatus{}, fmt.Errorf("%w: %d", ErrTrailNotRunning, ticket)
	}
	return status, nil
}

func (e *Impl) TrailingStops() []risk.TrailStatus {
	return e.trailer.Active()
}

// --- Queries ---

func (e *Impl) GetPosition(ctx context.Context, ticket uint64) (exchange.Position, error) {
	pos, err := e.gw.GetPosition(ctx, ticket)
	if err != nil {
		return exchange.Position{}, order.ClassifyGatewayErr("get position", ticket, err)
	}
	return pos, nil
}

func (e *Impl) GetProfit(ctx context.Context, ticket uint64) (float64, error) {
	pos, err := e.GetPosition(ctx, ticket)
	if err != nil {
		return 0, err
	}
	return pos.Profit, nil
}

func (e *Impl) GetBalance(ctx context.Context) (float64, error) {
	info, err := e.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	return info.Balance, nil
}

func (e *Impl) GetAccount(ctx context.Context) (*BalanceInfo, error) {
	acct, err := e.gw.GetAccountInfo(ctx)
	if err != nil {
		return nil, order.ClassifyGatewayErr("get account", 0, err)
	}
	return &BalanceInfo{
		Balance:  acct.Balance,
		Equity:   acct.Equity,
		Profit:   acct.Profit,
		Leverage: acct.Leverage,
		Currency: acct.Currency,
	}, nil
}

// --- System ---

func (e *Impl) GetSystemStatus(ctx context.Context) *SystemStatus {
	status := e.meta
	status.Bots = len(e.registry.IDs())
	status.ActiveTrails = len(e.trailer.Active())
	status.SessionUp = e.session == nil || e.session.Healthy()
	status.ServerTime = time.Now()
	return &status
}

// Close stops every supervisor, releases the session and closes the configured resources.
func (e *Impl) Close() error {
	e.closeOnce.Do(func() {
		e.baseCancel()
		e.trailer.StopAll()
		if e.release != nil {
			e.release()
		}
		if e.session != nil {
			e.closeErr = multierr.Append(e.closeErr, e.session.Stop())
		}
		for _, r := range e.resources {
			e.closeErr = multierr.Append(e.closeErr, r.Close())
		}
		e.logger.Info("engine closed")
	})
	return e.closeErr
}

var _ Service = (*Impl)(nil)
