package engine

import (
	"errors"
	"time"
)

// ErrTrailNotRunning is returned when stopping a ticket that has no supervisor.
var ErrTrailNotRunning = errors.New("no trailing stop running for ticket")

// BalanceInfo represents the trading account snapshot.
type BalanceInfo struct {
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Profit   float64 `json:"profit"`
	Leverage int     `json:"leverage"`
	Currency string  `json:"currency"`
}

// SystemStatus represents the system runtime status.
type SystemStatus struct {
	Venue        string    `json:"venue"`
	SessionUp    bool      `json:"session_up"`
	Bots         int       `json:"bots"`
	ActiveTrails int       `json:"active_trails"`
	Version      string    `json:"version"`
	ServerTime   time.Time `json:"server_time"`
}
