// Package venuetest provides a scripted in-memory gateway for package tests.
package venuetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	exchange "execution-core/pkg/exchanges/common"
)

// Reply is one scripted answer to SubmitOrder.
type Reply struct {
	Result exchange.OrderResult
	Err    error
}

// Done is a convenience reply for an accepted order.
func Done() Reply {
	return Reply{Result: exchange.OrderResult{RetCode: exchange.RetCodeDone, Comment: "Request completed"}}
}

// Code is a reply carrying only a return code.
func Code(c exchange.RetCode) Reply {
	return Reply{Result: exchange.OrderResult{RetCode: c, Comment: c.String()}}
}

// Gateway answers from scripted queues. When a queue has a single entry left it is
// repeated forever. Unscripted submissions are accepted.
type Gateway struct {
	mu sync.Mutex

	ticks     map[string][]exchange.Tick
	tickErr   error
	symbols   map[string]exchange.SymbolInfo
	positions map[uint64]exchange.Position
	posErrs   map[uint64][]error
	replies   []Reply
	account   exchange.AccountInfo

	requests  []exchange.OrderRequest
	tickCalls int
	posCalls  int

	// OnSubmit runs after a submission is recorded, outside the lock.
	OnSubmit func(req exchange.OrderRequest)
}

func New() *Gateway {
	return &Gateway{
		ticks:     make(map[string][]exchange.Tick),
		symbols:   make(map[string]exchange.SymbolInfo),
		positions: make(map[uint64]exchange.Position),
		posErrs:   make(map[uint64][]error),
		account:   exchange.AccountInfo{Balance: 10000, Equity: 10000, Leverage: 100, Currency: "USD"},
	}
}

// SetTicks scripts the ticks returned for symbol, in order.
func (g *Gateway) SetTicks(symbol string, ticks ...exchange.Tick) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range ticks {
		ticks[i].Symbol = symbol
	}
	g.ticks[symbol] = ticks
}

// SetTickErr makes every GetTick fail with err.
func (g *Gateway) SetTickErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tickErr = err
}

func (g *Gateway) SetSymbol(info exchange.SymbolInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.symbols[info.Symbol] = info
}

func (g *Gateway) AddPosition(pos exchange.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[pos.Ticket] = pos
}

func (g *Gateway) RemovePosition(ticket uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.positions, ticket)
}

// SetPositionErrs scripts errors for GetPosition(ticket); a nil entry means "answer normally".
func (g *Gateway) SetPositionErrs(ticket uint64, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posErrs[ticket] = errs
}

// Script queues submission replies.
func (g *Gateway) Script(replies ...Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, replies...)
}

func (g *Gateway) SetAccount(info exchange.AccountInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account = info
}

// Requests returns every submitted request in order.
func (g *Gateway) Requests() []exchange.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]exchange.OrderRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

func (g *Gateway) TickCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tickCalls
}

func (g *Gateway) PositionCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.posCalls
}

func (g *Gateway) GetTick(ctx context.Context, symbol string) (exchange.Tick, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tickCalls++
	if g.tickErr != nil {
		return exchange.Tick{}, g.tickErr
	}
	q := g.ticks[symbol]
	if len(q) == 0 {
		return exchange.Tick{}, fmt.Errorf("no tick for %s", symbol)
	}
	t := q[0]
	if len(q) > 1 {
		g.ticks[symbol] = q[1:]
	}
	return t, nil
}

func (g *Gateway) GetSymbolInfo(ctx context.Context, symbol string) (exchange.SymbolInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	info, ok := g.symbols[symbol]
	if !ok {
		return exchange.SymbolInfo{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return info, nil
}

func (g *Gateway) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	reply := Done()
	if len(g.replies) > 0 {
		reply = g.replies[0]
		if len(g.replies) > 1 {
			g.replies = g.replies[1:]
		}
	}
	hook := g.OnSubmit
	g.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return reply.Result, reply.Err
}

func (g *Gateway) GetPosition(ctx context.Context, ticket uint64) (exchange.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posCalls++
	if errs := g.posErrs[ticket]; len(errs) > 0 {
		err := errs[0]
		if len(errs) > 1 {
			g.posErrs[ticket] = errs[1:]
		}
		if err != nil {
			return exchange.Position{}, err
		}
	}
	pos, ok := g.positions[ticket]
	if !ok {
		return exchange.Position{}, exchange.ErrPositionNotFound
	}
	return pos, nil
}

func (g *Gateway) GetPositionsBySymbol(ctx context.Context, symbol string) ([]exchange.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []exchange.Position
	for _, p := range g.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func (g *Gateway) GetAccountInfo(ctx context.Context) (exchange.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.account, nil
}
