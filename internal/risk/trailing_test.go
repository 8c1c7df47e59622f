package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"execution-core/internal/events"
	"execution-core/internal/order"
	"execution-core/internal/venuetest"
	exchange "execution-core/pkg/exchanges/common"
)

func TestCandidateStop(t *testing.T) {
	tests := []struct {
		name     string
		side     exchange.Side
		price    float64
		distance float64
		point    float64
		want     float64
	}{
		{"buy below price", exchange.SideBuy, 1.10000, 50, 0.00001, 1.09950},
		{"sell above price", exchange.SideSell, 1.10020, 50, 0.00001, 1.10070},
		{"rounds to point", exchange.SideBuy, 2350.127, 100, 0.01, 2349.13},
		{"coarse point", exchange.SideBuy, 101, 2, 0.5, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CandidateStop(tt.side, tt.price, tt.distance, tt.point); got != tt.want {
				t.Fatalf("CandidateStop=%v, expected %v", got, tt.want)
			}
		})
	}
}

func TestTrailStateRatchet(t *testing.T) {
	tests := []struct {
		name       string
		side       exchange.Side
		candidates []float64
		want       []bool
	}{
		{"buy only moves up", exchange.SideBuy, []float64{100, 99, 100, 101}, []bool{true, false, false, true}},
		{"sell only moves down", exchange.SideSell, []float64{100, 101, 100, 99}, []bool{true, false, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := TrailState{Ticket: 1, DistancePoints: 10}
			for i, c := range tt.candidates {
				got := st.Improves(tt.side, c)
				if got != tt.want[i] {
					t.Fatalf("Improves(%v)=%v at step %d, expected %v", c, got, i, tt.want[i])
				}
				if got {
					st.Commit(c)
				}
			}
		})
	}
}

type fixture struct {
	gw   *venuetest.Gateway
	exec *order.Executor
	sup  *Supervisor
}

func newFixture(side exchange.Side, bids ...float64) *fixture {
	gw := venuetest.New()
	gw.SetSymbol(exchange.SymbolInfo{Symbol: "XYZ", Point: 0.5})
	gw.AddPosition(exchange.Position{Ticket: 7, Symbol: "XYZ", Side: side, Volume: 1, TakeProfit: 150})
	ticks := make([]exchange.Tick, 0, len(bids))
	for _, b := range bids {
		ticks = append(ticks, exchange.Tick{Bid: b, Ask: b + 0.5})
	}
	gw.SetTicks("XYZ", ticks...)

	exec := order.NewExecutor(gw, nil, nil, nil)
	exec.MaxAttempts = 1
	sup := NewSupervisor(gw, exec, nil, nil, nil)
	sup.Interval = time.Hour
	return &fixture{gw: gw, exec: exec, sup: sup}
}

func (f *fixture) trail(distance float64) *trail {
	h := &TrailHandle{Ticket: 7, cancel: func() {}, done: make(chan struct{})}
	return &trail{sup: f.sup, handle: h, state: TrailState{Ticket: 7, DistancePoints: distance}, logger: f.sup.Logger}
}

func TestStepRatchetsBuyStop(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101, 100, 102, 101.5, 103)
	tr := f.trail(2)

	for i := 0; i < 5; i++ {
		if closed := tr.step(context.Background()); closed {
			t.Fatalf("step %d reported position closed", i)
		}
	}

	reqs := f.gw.Requests()
	want := []float64{100, 101, 102}
	if len(reqs) != len(want) {
		t.Fatalf("adjustments=%d, expected %d", len(reqs), len(want))
	}
	for i, req := range reqs {
		if req.Action != exchange.ActionSLTP || req.Position != 7 {
			t.Fatalf("req=%+v, expected SLTP on ticket 7", req)
		}
		if *req.StopLoss != want[i] {
			t.Fatalf("stop[%d]=%v, expected %v", i, *req.StopLoss, want[i])
		}
		if req.TakeProfit == nil || *req.TakeProfit != 150 {
			t.Fatalf("tp=%v, expected existing 150 kept", req.TakeProfit)
		}
	}
	st := tr.handle.Status()
	if st.LastStop != 102 || st.Adjustments != 3 {
		t.Fatalf("status=%+v, expected last stop 102 after 3 adjustments", st)
	}
}

func TestStepSellUsesAsk(t *testing.T) {
	// asks are bid + 0.5
	f := newFixture(exchange.SideSell, 100, 101, 99)
	tr := f.trail(2)
	for i := 0; i < 3; i++ {
		tr.step(context.Background())
	}

	reqs := f.gw.Requests()
	want := []float64{101.5, 100.5}
	if len(reqs) != len(want) {
		t.Fatalf("adjustments=%d, expected %d", len(reqs), len(want))
	}
	for i, req := range reqs {
		if *req.StopLoss != want[i] {
			t.Fatalf("stop[%d]=%v, expected %v", i, *req.StopLoss, want[i])
		}
	}
}

func TestStepFailedAdjustmentDoesNotCommit(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101, 101)
	f.gw.Script(venuetest.Code(exchange.RetCodeInvalidStops), venuetest.Done())
	tr := f.trail(2)

	tr.step(context.Background())
	if tr.state.Applied() {
		t.Fatalf("state committed after a rejected adjustment")
	}
	if st := tr.handle.Status(); st.Failures != 1 {
		t.Fatalf("Failures=%d, expected 1", st.Failures)
	}

	tr.step(context.Background())
	if !tr.state.Applied() || tr.state.LastStop != 100 {
		t.Fatalf("state=%+v, expected stop 100 applied on retry", tr.state)
	}
}

func TestStepPositionGone(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	f.gw.RemovePosition(7)
	if closed := f.trail(2).step(context.Background()); !closed {
		t.Fatalf("step did not report the position as closed")
	}
}

func TestSupervisorStopsWhenPositionCloses(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	f.sup.Interval = 5 * time.Millisecond
	bus := events.NewBus()
	stream, unsub := bus.Subscribe(events.EventTrailStopped, 1)
	defer unsub()
	f.sup.Bus = bus

	h, err := f.sup.Start(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	f.gw.RemovePosition(7)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("supervisor did not exit after the position closed")
	}
	st := h.Status()
	if st.State != TrailStopped || st.Reason != ReasonPositionClosed {
		t.Fatalf("status=%+v, expected STOPPED/POSITION_CLOSED", st)
	}
	select {
	case env := <-stream:
		if got := env.Payload.(TrailStatus); got.Ticket != 7 {
			t.Fatalf("stopped ticket=%d, expected 7", got.Ticket)
		}
	case <-time.After(time.Second):
		t.Fatalf("trail.stopped not published")
	}
}

func TestStepStopsWhenSubmitFindsPositionClosed(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	f.gw.Script(venuetest.Code(exchange.RetCodePosClosed))
	tr := f.trail(2)
	if closed := tr.step(context.Background()); !closed {
		t.Fatalf("step did not report the position as closed")
	}
	if st := tr.handle.Status(); st.Failures != 0 {
		t.Fatalf("Failures=%d, expected 0", st.Failures)
	}
}

func TestSupervisorKeepsRunningOnRepeatedTimeouts(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	f.sup.Interval = 5 * time.Millisecond
	f.gw.Script(venuetest.Code(exchange.RetCodeTimeout))

	h, err := f.sup.Start(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer h.Cancel()

	deadline := time.Now().Add(2 * time.Second)
	for h.Status().Failures < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("status=%+v, expected repeated failures", h.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
	failures, sent := h.Status().Failures, len(f.gw.Requests())

	deadline = time.Now().Add(2 * time.Second)
	for h.Status().Failures <= failures || len(f.gw.Requests()) <= sent {
		if time.Now().After(deadline) {
			t.Fatalf("status=%+v requests=%d, expected both to keep growing", h.Status(), len(f.gw.Requests()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	st := h.Status()
	if st.State != TrailRunning || st.Adjustments != 0 {
		t.Fatalf("status=%+v, expected RUNNING with no adjustment", st)
	}
	for _, req := range f.gw.Requests() {
		if *req.StopLoss != 100 {
			t.Fatalf("stop=%v, expected the same candidate 100 resent", *req.StopLoss)
		}
	}
}

func TestSupervisorQuietAfterDone(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	f.sup.Interval = 2 * time.Millisecond

	h, err := f.sup.Start(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	f.gw.RemovePosition(7)
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("supervisor did not exit after the position closed")
	}

	calls, sent := f.gw.PositionCalls(), len(f.gw.Requests())
	time.Sleep(30 * time.Millisecond)
	if got := f.gw.PositionCalls(); got != calls {
		t.Fatalf("PositionCalls=%d after Done, expected %d", got, calls)
	}
	if got := len(f.gw.Requests()); got != sent {
		t.Fatalf("requests=%d after Done, expected %d", got, sent)
	}
}

func TestSupervisorSurvivesTransientErrors(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	f.sup.Interval = 5 * time.Millisecond
	f.gw.SetPositionErrs(7, errors.New("timeout"), errors.New("timeout"), nil)

	h, err := f.sup.Start(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer h.Cancel()

	deadline := time.Now().Add(2 * time.Second)
	for h.Status().Adjustments == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no adjustment after transient errors, status=%+v", h.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
	st := h.Status()
	if st.State != TrailRunning || st.Failures < 2 {
		t.Fatalf("status=%+v, expected RUNNING with at least 2 failures", st)
	}
}

func TestSupervisorCancel(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	h, err := f.sup.Start(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	h.Cancel()
	st := h.Wait()
	if st.State != TrailStopped || st.Reason != ReasonCancelled {
		t.Fatalf("status=%+v, expected STOPPED/CANCELLED", st)
	}
}

func TestSupervisorStartValidation(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	tests := []struct {
		name     string
		ticket   uint64
		distance float64
	}{
		{"zero ticket", 0, 10},
		{"zero distance", 7, 0},
		{"negative distance", 7, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sup.Start(context.Background(), tt.ticket, tt.distance)
			if !errors.Is(err, order.ErrValidation) {
				t.Fatalf("err=%v, expected validation error", err)
			}
		})
	}
}

func TestTrailerReplaceAndStopAll(t *testing.T) {
	f := newFixture(exchange.SideBuy, 101)
	f.gw.AddPosition(exchange.Position{Ticket: 8, Symbol: "XYZ", Side: exchange.SideBuy, Volume: 1})
	trailer := NewTrailer(f.sup)

	first, err := trailer.Start(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	second, err := trailer.Start(context.Background(), 7, 4)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	select {
	case <-first.Done():
	default:
		t.Fatalf("replaced supervisor still running")
	}
	if h, ok := trailer.Get(7); !ok || h != second || h.DistancePoints != 4 {
		t.Fatalf("Get(7) did not return the replacement")
	}

	if _, err := trailer.Start(context.Background(), 8, 2); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if n := len(trailer.Active()); n != 2 {
		t.Fatalf("Active=%d, expected 2", n)
	}

	trailer.StopAll()
	deadline := time.Now().Add(time.Second)
	for len(trailer.Active()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Active=%d after StopAll, expected 0", len(trailer.Active()))
		}
		time.Sleep(time.Millisecond)
	}
	if _, ok := trailer.Stop(7); ok {
		t.Fatalf("Stop(7) reported a running supervisor after StopAll")
	}
}
