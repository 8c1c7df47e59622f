package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"execution-core/internal/events"
	"execution-core/internal/monitor"
	"execution-core/internal/order"
	exchange "execution-core/pkg/exchanges/common"
)

// DefaultTrailInterval is the pause between two supervisor rounds.
const DefaultTrailInterval = 5 * time.Second

// TrailRunState is the coarse lifecycle state of a supervisor.
type TrailRunState string

const (
	TrailRunning TrailRunState = "RUNNING"
	TrailStopped TrailRunState = "STOPPED"
)

// StopReason explains why a supervisor reached TrailStopped.
type StopReason string

const (
	ReasonPositionClosed StopReason = "POSITION_CLOSED"
	ReasonCancelled      StopReason = "CANCELLED"
)

// Submitter sends an adjustment request. *order.Executor satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error)
}

// TrailState is the ratchet of one supervised ticket.
type TrailState struct {
	Ticket         uint64  `json:"ticket"`
	DistancePoints float64 `json:"distance_points"`
	LastStop       float64 `json:"last_stop"`
	applied        bool
}

// Improves reports whether candidate should be submitted for a position opened on side:
// the first candidate always qualifies, afterwards only a strictly better stop does.
func (s *TrailState) Improves(side exchange.Side, candidate float64) bool {
	if !s.applied {
		return true
	}
	if side == exchange.SideBuy {
		return candidate > s.LastStop
	}
	return candidate < s.LastStop
}

// Commit records an adjustment the venue accepted.
func (s *TrailState) Commit(stop float64) {
	s.LastStop = stop
	s.applied = true
}

// Applied reports whether any adjustment has been accepted yet.
func (s *TrailState) Applied() bool { return s.applied }

// CandidateStop trails price by distancePoints symbol points, below for BUY and above for
// SELL, rounded to the symbol's point.
func CandidateStop(side exchange.Side, price, distancePoints, point float64) float64 {
	p := decimal.NewFromFloat(price)
	pt := decimal.NewFromFloat(point)
	offset := decimal.NewFromFloat(distancePoints).Mul(pt)

	var stop decimal.Decimal
	if side == exchange.SideBuy {
		stop = p.Sub(offset)
	} else {
		stop = p.Add(offset)
	}
	if pt.IsPositive() {
		stop = stop.Div(pt).Round(0).Mul(pt)
	}
	f, _ := stop.Float64()
	return f
}

// TrailStatus is a snapshot of a supervisor.
type TrailStatus struct {
	Ticket      uint64        `json:"ticket"`
	State       TrailRunState `json:"state"`
	Reason      StopReason    `json:"reason,omitempty"`
	LastStop    float64       `json:"last_stop"`
	Adjustments int           `json:"adjustments"`
	Failures    int           `json:"failures"`
}

// TrailAdjustment is published for every accepted stop move.
type TrailAdjustment struct {
	Ticket uint64  `json:"ticket"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Stop   float64 `json:"stop"`
}

// TrailHandle controls one running supervisor.
type TrailHandle struct {
	Ticket         uint64
	DistancePoints float64

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	status TrailStatus
}

// Cancel asks the supervisor to exit. It does not wait.
func (h *TrailHandle) Cancel() { h.cancel() }

// Done is closed once the supervisor goroutine has returned.
func (h *TrailHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the supervisor exits and returns its final status.
func (h *TrailHandle) Wait() TrailStatus {
	<-h.done
	return h.Status()
}

// Status returns the current snapshot.
func (h *TrailHandle) Status() TrailStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *TrailHandle) update(fn func(*TrailStatus)) {
	h.mu.Lock()
	fn(&h.status)
	h.mu.Unlock()
}

// Supervisor runs trailing stop loops. Each Start spawns one goroutine that owns its
// TrailState; supervisors of different tickets share nothing mutable.
type Supervisor struct {
	Gateway   exchange.Gateway
	Submitter Submitter
	Bus       *events.Bus
	Metrics   *monitor.SystemMetrics
	Logger    *zap.Logger

	Interval time.Duration
}

func NewSupervisor(gw exchange.Gateway, sub Submitter, bus *events.Bus, metrics *monitor.SystemMetrics, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		Gateway:   gw,
		Submitter: sub,
		Bus:       bus,
		Metrics:   metrics,
		Logger:    logger,
		Interval:  DefaultTrailInterval,
	}
}

// Start begins supervising ticket. The loop lives until the position disappears, the
// handle is cancelled or ctx ends.
func (s *Supervisor) Start(ctx context.Context, ticket uint64, distancePoints float64) (*TrailHandle, error) {
	if ticket == 0 {
		return nil, &order.ValidationError{Field: "ticket", Reason: "must be set"}
	}
	if distancePoints <= 0 {
		return nil, &order.ValidationError{Field: "distance_points", Reason: "must be positive"}
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &TrailHandle{
		Ticket:         ticket,
		DistancePoints: distancePoints,
		cancel:         cancel,
		done:           make(chan struct{}),
		status:         TrailStatus{Ticket: ticket, State: TrailRunning},
	}
	t := &trail{
		sup:    s,
		handle: h,
		state:  TrailState{Ticket: ticket, DistancePoints: distancePoints},
		logger: s.Logger.With(zap.Uint64("ticket", ticket)),
	}

	s.Metrics.TrailStarted()
	go t.run(runCtx)
	return h, nil
}

// trail is the goroutine-private state of one supervisor.
type trail struct {
	sup    *Supervisor
	handle *TrailHandle
	state  TrailState
	point  float64
	logger *zap.Logger
}

func (t *trail) run(ctx context.Context) {
	defer close(t.handle.done)
	defer t.handle.cancel()
	defer t.sup.Metrics.TrailStopped()

	interval := t.sup.Interval
	if interval <= 0 {
		interval = DefaultTrailInterval
	}
	t.logger.Info("trailing stop started", zap.Float64("distance_points", t.state.DistancePoints))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if closed := t.step(ctx); closed {
			t.stop(ReasonPositionClosed)
			return
		}
		select {
		case <-ctx.Done():
			t.stop(ReasonCancelled)
			return
		case <-ticker.C:
		}
	}
}

func (t *trail) stop(reason StopReason) {
	t.handle.update(func(st *TrailStatus) {
		st.State = TrailStopped
		st.Reason = reason
	})
	status := t.handle.Status()
	t.logger.Info("trailing stop stopped",
		zap.String("reason", string(reason)),
		zap.Float64("last_stop", status.LastStop),
		zap.Int("adjustments", status.Adjustments))
	t.sup.Bus.Publish(events.EventTrailStopped, status)
}

// step runs one round. It returns true only when the position no longer exists; every
// other failure is logged and the loop carries on.
func (t *trail) step(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	gw := t.sup.Gateway

	pos, err := gw.GetPosition(ctx, t.state.Ticket)
	if errors.Is(err, exchange.ErrPositionNotFound) {
		return true
	}
	if err != nil {
		t.fail("get position", err)
		return false
	}
	if !pos.Side.Valid() {
		t.fail("position side", &order.InvalidSideError{Side: string(pos.Side)})
		return false
	}

	if t.point == 0 {
		info, err := gw.GetSymbolInfo(ctx, pos.Symbol)
		if err != nil {
			t.fail("get symbol info", err)
			return false
		}
		if info.Point <= 0 {
			t.fail("get symbol info", fmt.Errorf("symbol %s has no point size", pos.Symbol))
			return false
		}
		t.point = info.Point
	}

	tick, err := gw.GetTick(ctx, pos.Symbol)
	if err != nil {
		t.fail("get tick", err)
		return false
	}
	// the stop fires on the exit side of the book
	price := tick.PriceFor(pos.Side.Opposite())
	candidate := CandidateStop(pos.Side, price, t.state.DistancePoints, t.point)
	if !t.state.Improves(pos.Side, candidate) {
		return false
	}

	req := exchange.OrderRequest{
		Action:   exchange.ActionSLTP,
		Symbol:   pos.Symbol,
		Side:     pos.Side,
		Position: pos.Ticket,
		Magic:    pos.Magic,
		StopLoss: exchange.Float(candidate),
	}
	if pos.TakeProfit > 0 {
		req.TakeProfit = exchange.Float(pos.TakeProfit)
	}
	if _, err := t.sup.Submitter.Submit(ctx, req); err != nil {
		if errors.Is(err, order.ErrPositionNotFound) {
			return true
		}
		if ctx.Err() == nil {
			t.sup.Metrics.ObserveTrailAdjustment(false)
			t.fail("adjust stop", err)
		}
		return false
	}

	t.state.Commit(candidate)
	t.sup.Metrics.ObserveTrailAdjustment(true)
	t.handle.update(func(st *TrailStatus) {
		st.LastStop = candidate
		st.Adjustments++
	})
	t.logger.Info("stop loss moved",
		zap.String("symbol", pos.Symbol),
		zap.Float64("price", price),
		zap.Float64("stop", candidate))
	t.sup.Bus.Publish(events.EventTrailAdjusted, TrailAdjustment{
		Ticket: pos.Ticket,
		Symbol: pos.Symbol,
		Price:  price,
		Stop:   candidate,
	})
	return false
}

func (t *trail) fail(op string, err error) {
	t.handle.update(func(st *TrailStatus) { st.Failures++ })
	t.logger.Warn("trailing round failed", zap.String("op", op), zap.Error(err))
}

// Trailer keeps at most one supervisor per ticket.
type Trailer struct {
	sup *Supervisor

	mu      sync.Mutex
	handles map[uint64]*TrailHandle
}

func NewTrailer(sup *Supervisor) *Trailer {
	return &Trailer{sup: sup, handles: make(map[uint64]*TrailHandle)}
}

// Start supervises ticket, replacing any supervisor already running for it.
func (t *Trailer) Start(ctx context.Context, ticket uint64, distancePoints float64) (*TrailHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.handles[ticket]; ok {
		old.Cancel()
		<-old.Done()
		delete(t.handles, ticket)
	}

	h, err := t.sup.Start(ctx, ticket, distancePoints)
	if err != nil {
		return nil, err
	}
	t.handles[ticket] = h

	go func() {
		<-h.Done()
		t.mu.Lock()
		if t.handles[ticket] == h {
			delete(t.handles, ticket)
		}
		t.mu.Unlock()
	}()
	return h, nil
}

// Stop cancels the supervisor of ticket and waits for it. It reports false when no
// supervisor was running.
func (t *Trailer) Stop(ticket uint64) (TrailStatus, bool) {
	t.mu.Lock()
	h, ok := t.handles[ticket]
	t.mu.Unlock()
	if !ok {
		return TrailStatus{}, false
	}
	h.Cancel()
	return h.Wait(), true
}

// Get returns the running handle for ticket.
func (t *Trailer) Get(ticket uint64) (*TrailHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[ticket]
	return h, ok
}

// Active returns a snapshot of every running supervisor.
func (t *Trailer) Active() []TrailStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrailStatus, 0, len(t.handles))
	for _, h := range t.handles {
		out = append(out, h.Status())
	}
	return out
}

// StopAll cancels every supervisor and waits for all of them to exit.
func (t *Trailer) StopAll() {
	t.mu.Lock()
	handles := make([]*TrailHandle, 0, len(t.handles))
	for _, h := range t.handles {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, h := range handles {
		<-h.Done()
	}
}
