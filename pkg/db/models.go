package db

import "time"

// Account is the single paper trading account.
type Account struct {
	Login     int64
	Currency  string
	Balance   float64
	Leverage  int64
	UpdatedAt time.Time
}

// Symbol is the contract specification of a tradable symbol.
type Symbol struct {
	Symbol       string
	Point        float64
	Digits       int
	ContractSize float64
	TickValue    float64
	TickSize     float64
}

// Position is an open paper position.
type Position struct {
	Ticket     int64
	Symbol     string
	Side       string
	Volume     float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
	Magic      int64
	Comment    string
	OpenedAt   time.Time
}

// Deal records one fill, opening ("IN") or closing ("OUT") a position.
type Deal struct {
	Deal      int64
	Ticket    int64
	Symbol    string
	Side      string
	Entry     string
	Volume    float64
	Price     float64
	Profit    float64
	CreatedAt time.Time
}

// Deal entry directions.
const (
	EntryIn  = "IN"
	EntryOut = "OUT"
)
