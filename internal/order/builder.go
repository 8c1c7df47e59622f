package order

import (
	"context"

	"execution-core/internal/botconfig"
	exchange "execution-core/pkg/exchanges/common"
)

// Overrides are optional per-request values. Zero means "not supplied".
type Overrides struct {
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

func (o Overrides) validate() error {
	switch {
	case o.Volume < 0:
		return &ValidationError{Field: "volume", Reason: "must not be negative"}
	case o.StopLoss < 0:
		return &ValidationError{Field: "sl", Reason: "must not be negative"}
	case o.TakeProfit < 0:
		return &ValidationError{Field: "tp", Reason: "must not be negative"}
	}
	return nil
}

// Build turns a bot configuration and a side into a venue-ready market request.
// The price is bound from a single live tick; stop levels are only set when supplied.
func Build(ctx context.Context, ticks exchange.TickSource, cfg botconfig.BotConfig, side string, ov Overrides) (exchange.OrderRequest, error) {
	s, err := exchange.ParseSide(side)
	if err != nil {
		return exchange.OrderRequest{}, &InvalidSideError{Side: side}
	}
	if err := ov.validate(); err != nil {
		return exchange.OrderRequest{}, err
	}
	if cfg.Symbol == "" {
		return exchange.OrderRequest{}, &ValidationError{Field: "symbol", Reason: "empty"}
	}

	volume := cfg.Volume
	if ov.Volume > 0 {
		volume = ov.Volume
	}
	if volume <= 0 {
		return exchange.OrderRequest{}, &ValidationError{Field: "volume", Reason: "must be positive"}
	}

	tick, err := ticks.GetTick(ctx, cfg.Symbol)
	if err != nil {
		return exchange.OrderRequest{}, ClassifyGatewayErr("get tick "+cfg.Symbol, 0, err)
	}

	req := exchange.OrderRequest{
		Action:     exchange.ActionDeal,
		Symbol:     cfg.Symbol,
		Side:       s,
		Volume:     volume,
		Price:      tick.PriceFor(s),
		Deviation:  cfg.Deviation,
		Magic:      cfg.Magic,
		Comment:    cfg.Comment,
		TimePolicy: cfg.TimePolicy,
		FillPolicy: cfg.FillPolicy,
	}
	if ov.StopLoss != 0 {
		req.StopLoss = exchange.Float(ov.StopLoss)
	}
	if ov.TakeProfit != 0 {
		req.TakeProfit = exchange.Float(ov.TakeProfit)
	}
	return req, nil
}

// closeRequest derives the order that flattens pos at the opposite-side live price.
func closeRequest(ctx context.Context, ticks exchange.TickSource, pos exchange.Position, deviation int, fill exchange.FillPolicy) (exchange.OrderRequest, error) {
	tick, err := ticks.GetTick(ctx, pos.Symbol)
	if err != nil {
		return exchange.OrderRequest{}, ClassifyGatewayErr("get tick "+pos.Symbol, 0, err)
	}
	side := pos.Side.Opposite()
	return exchange.OrderRequest{
		Action:     exchange.ActionDeal,
		Symbol:     pos.Symbol,
		Side:       side,
		Volume:     pos.Volume,
		Price:      tick.PriceFor(side),
		Deviation:  deviation,
		Magic:      pos.Magic,
		FillPolicy: fill,
		Position:   pos.Ticket,
	}, nil
}
