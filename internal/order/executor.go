package order

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"execution-core/internal/events"
	"execution-core/internal/monitor"
	exchange "execution-core/pkg/exchanges/common"
)

// DefaultMaxAttempts bounds venue round-trips per submission.
const DefaultMaxAttempts = 3

// BuildFunc produces the request for one attempt. It is called again before every retry
// so that market requests re-bind a fresh price.
type BuildFunc func(ctx context.Context) (exchange.OrderRequest, error)

// SubmissionEvent is published on the bus for every submission lifecycle step.
type SubmissionEvent struct {
	Request  exchange.OrderRequest `json:"request"`
	Result   exchange.OrderResult  `json:"result"`
	Attempt  int                   `json:"attempt"`
	ErrorMsg string                `json:"error,omitempty"`
}

// Executor sends requests to the venue gateway with bounded retry. It is the single place
// where venue return codes are classified; callers only see a result or a typed error.
// An Executor holds no per-call state and is safe for concurrent use.
type Executor struct {
	Gateway exchange.Gateway
	Bus     *events.Bus
	Metrics *monitor.SystemMetrics
	Logger  *zap.Logger

	MaxAttempts int
	RetryDelay  time.Duration // pause between attempts; zero retries immediately
}

func NewExecutor(gw exchange.Gateway, bus *events.Bus, metrics *monitor.SystemMetrics, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Gateway:     gw,
		Bus:         bus,
		Metrics:     metrics,
		Logger:      logger,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Submit sends a fixed request.
func (e *Executor) Submit(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	return e.SubmitBuilt(ctx, func(context.Context) (exchange.OrderRequest, error) {
		return req, nil
	})
}

// SubmitBuilt runs the retry loop, rebuilding the request before each attempt.
//
//   - DONE returns immediately.
//   - NO_MONEY fails fast with *RejectionError.
//   - POSITION_CLOSED fails fast with *PositionNotFoundError.
//   - A session error fails fast with *SessionError.
//   - Anything else is transient; after MaxAttempts a *SubmissionExhaustedError carries the last answer.
func (e *Executor) SubmitBuilt(ctx context.Context, build BuildFunc) (exchange.OrderResult, error) {
	limit := e.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}

	var (
		req     exchange.OrderRequest
		last    exchange.OrderResult
		lastErr error
	)
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 && e.RetryDelay > 0 {
			timer := time.NewTimer(e.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			e.Metrics.ObserveSubmission(string(req.Action), monitor.OutcomeCancelled, attempt-1)
			if attempt == 1 {
				return exchange.OrderResult{}, err
			}
			return last, &SubmissionExhaustedError{Attempts: attempt - 1, LastResult: last, LastErr: err}
		}

		built, err := build(ctx)
		if err != nil {
			if !retryable(err) {
				e.finish(req, last, attempt-1, err)
				return exchange.OrderResult{}, err
			}
			e.Logger.Warn("build order failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			continue
		}
		req = built
		if attempt == 1 {
			e.Bus.Publish(events.EventOrderSubmitted, SubmissionEvent{Request: req, Attempt: attempt})
		}

		timer := e.Metrics.NewTimer("submit_attempt")
		res, err := e.Gateway.SubmitOrder(ctx, req)
		timer.Stop()

		if err != nil {
			if errors.Is(err, exchange.ErrSessionUnavailable) {
				serr := &SessionError{Op: "order send", Err: err}
				e.finish(req, last, attempt, serr)
				return exchange.OrderResult{}, serr
			}
			e.Logger.Warn("order send failed",
				zap.String("symbol", req.Symbol),
				zap.Int("attempt", attempt),
				zap.Error(err))
			lastErr = err
			e.Bus.Publish(events.EventOrderRetry, SubmissionEvent{Request: req, Attempt: attempt, ErrorMsg: err.Error()})
			continue
		}

		switch res.RetCode {
		case exchange.RetCodeDone:
			e.finish(req, res, attempt, nil)
			return res, nil
		case exchange.RetCodeNoMoney:
			rerr := &RejectionError{Result: res}
			e.finish(req, res, attempt, rerr)
			return res, rerr
		case exchange.RetCodePosClosed:
			// the position went away between lookup and send
			nerr := &PositionNotFoundError{Ticket: req.Position}
			e.finish(req, res, attempt, nerr)
			return res, nerr
		}

		e.Logger.Info("order not accepted, retrying",
			zap.String("symbol", req.Symbol),
			zap.Stringer("retcode", res.RetCode),
			zap.String("comment", res.Comment),
			zap.Int("attempt", attempt))
		last, lastErr = res, nil
		e.Bus.Publish(events.EventOrderRetry, SubmissionEvent{Request: req, Result: res, Attempt: attempt})
	}

	exhausted := &SubmissionExhaustedError{Attempts: limit, LastResult: last, LastErr: lastErr}
	e.finish(req, last, limit, exhausted)
	return last, exhausted
}

// finish logs, counts and publishes the terminal outcome of a submission.
func (e *Executor) finish(req exchange.OrderRequest, res exchange.OrderResult, attempts int, err error) {
	action := string(req.Action)
	if err == nil {
		e.Metrics.ObserveSubmission(action, monitor.OutcomeAccepted, attempts)
		e.Logger.Info("order accepted",
			zap.String("action", action),
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Float64("volume", req.Volume),
			zap.Uint64("order", res.Order),
			zap.Int("attempts", attempts))
		e.Bus.Publish(events.EventOrderAccepted, SubmissionEvent{Request: req, Result: res, Attempt: attempts})
		return
	}

	outcome := monitor.OutcomeExhausted
	switch {
	case errors.Is(err, ErrStructuralRejection):
		outcome = monitor.OutcomeRejected
	case errors.Is(err, ErrSession):
		outcome = monitor.OutcomeSession
	case errors.Is(err, ErrValidation), errors.Is(err, ErrPositionNotFound):
		// caller-side outcomes, not venue rejections
		return
	}
	e.Metrics.ObserveSubmission(action, outcome, attempts)
	e.Logger.Warn("order failed",
		zap.String("action", action),
		zap.String("symbol", req.Symbol),
		zap.String("outcome", outcome),
		zap.Int("attempts", attempts),
		zap.Error(err))
	e.Bus.Publish(events.EventOrderRejected, SubmissionEvent{Request: req, Result: res, Attempt: attempts, ErrorMsg: err.Error()})
}

// retryable reports whether a build failure may succeed on another attempt.
func retryable(err error) bool {
	return !errors.Is(err, ErrValidation) &&
		!errors.Is(err, ErrSession) &&
		!errors.Is(err, ErrPositionNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
