package order

import (
	"context"

	"go.uber.org/zap"

	"execution-core/internal/events"
	exchange "execution-core/pkg/exchanges/common"
)

// CloseStatus summarizes a bulk close.
type CloseStatus string

const (
	CloseNothingToClose CloseStatus = "NOTHING_TO_CLOSE"
	CloseCompleted      CloseStatus = "COMPLETED"
	ClosePartial        CloseStatus = "PARTIAL"
	CloseFailed         CloseStatus = "FAILED"
)

// CloseOutcome is the result of closing one position.
type CloseOutcome struct {
	Ticket   uint64               `json:"ticket"`
	Result   exchange.OrderResult `json:"result"`
	Err      error                `json:"-"`
	ErrorMsg string               `json:"error,omitempty"`
}

// CloseReport collects every per-position outcome of CloseAllBySymbol.
type CloseReport struct {
	Symbol   string         `json:"symbol"`
	Outcomes []CloseOutcome `json:"outcomes"`
}

// Status distinguishes "nothing was open" from "closed N positions".
func (r CloseReport) Status() CloseStatus {
	if len(r.Outcomes) == 0 {
		return CloseNothingToClose
	}
	failed := len(r.Failed())
	switch {
	case failed == 0:
		return CloseCompleted
	case failed == len(r.Outcomes):
		return CloseFailed
	default:
		return ClosePartial
	}
}

// Closed returns the tickets that were flattened.
func (r CloseReport) Closed() []uint64 {
	var out []uint64
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.Ticket)
		}
	}
	return out
}

// Failed returns the outcomes that did not close.
func (r CloseReport) Failed() []CloseOutcome {
	var out []CloseOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Closer flattens open positions through the Executor.
type Closer struct {
	Gateway  exchange.Gateway
	Executor *Executor
	Bus      *events.Bus
	Logger   *zap.Logger

	Deviation  int
	FillPolicy exchange.FillPolicy
}

func NewCloser(gw exchange.Gateway, exec *Executor, bus *events.Bus, logger *zap.Logger) *Closer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Closer{
		Gateway:    gw,
		Executor:   exec,
		Bus:        bus,
		Logger:     logger,
		Deviation:  20,
		FillPolicy: exchange.FillReturn,
	}
}

// CloseByTicket closes the whole volume of one position.
// A missing position yields *PositionNotFoundError.
func (c *Closer) CloseByTicket(ctx context.Context, ticket uint64) (exchange.OrderResult, error) {
	pos, err := c.Gateway.GetPosition(ctx, ticket)
	if err != nil {
		return exchange.OrderResult{}, ClassifyGatewayErr("get position", ticket, err)
	}
	return c.ClosePosition(ctx, pos)
}

// ClosePosition closes pos with an inverse market order at the opposite-side price.
func (c *Closer) ClosePosition(ctx context.Context, pos exchange.Position) (exchange.OrderResult, error) {
	if !pos.Side.Valid() {
		return exchange.OrderResult{}, &InvalidSideError{Side: string(pos.Side)}
	}
	res, err := c.Executor.SubmitBuilt(ctx, func(ctx context.Context) (exchange.OrderRequest, error) {
		return closeRequest(ctx, c.Gateway, pos, c.Deviation, c.FillPolicy)
	})
	if err != nil {
		return res, err
	}
	c.Logger.Info("position closed",
		zap.Uint64("ticket", pos.Ticket),
		zap.String("symbol", pos.Symbol),
		zap.Float64("volume", pos.Volume))
	c.Bus.Publish(events.EventPositionClosed, pos)
	return res, nil
}

// CloseAllBySymbol closes every open position of symbol independently. A failure on one
// position is recorded in the report and does not stop the others.
func (c *Closer) CloseAllBySymbol(ctx context.Context, symbol string) (CloseReport, error) {
	report := CloseReport{Symbol: symbol}

	positions, err := c.Gateway.GetPositionsBySymbol(ctx, symbol)
	if err != nil {
		return report, ClassifyGatewayErr("get positions "+symbol, 0, err)
	}
	if len(positions) == 0 {
		c.Logger.Info("no positions to close", zap.String("symbol", symbol))
		return report, nil
	}

	report.Outcomes = make([]CloseOutcome, 0, len(positions))
	for _, pos := range positions {
		res, err := c.ClosePosition(ctx, pos)
		outcome := CloseOutcome{Ticket: pos.Ticket, Result: res, Err: err}
		if err != nil {
			outcome.ErrorMsg = err.Error()
			c.Logger.Warn("close position failed",
				zap.Uint64("ticket", pos.Ticket),
				zap.String("symbol", symbol),
				zap.Error(err))
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}
