package common

import (
	"fmt"
	"strings"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that flattens a position opened on s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is one of the two canonical sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide normalizes a side case-insensitively. It never coerces unknown input.
func ParseSide(raw string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(SideBuy):
		return SideBuy, nil
	case string(SideSell):
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q", raw)
}

// Action is the kind of trade request sent to the venue.
type Action string

const (
	ActionDeal Action = "DEAL" // market execution (open or close)
	ActionSLTP Action = "SLTP" // modify stop-loss / take-profit of an open position
)

// TimePolicy captures order expiration semantics.
type TimePolicy string

const (
	TimeGTC       TimePolicy = "GTC"
	TimeDay       TimePolicy = "DAY"
	TimeSpecified TimePolicy = "SPECIFIED"
)

// FillPolicy captures how partial fills are handled by the venue.
type FillPolicy string

const (
	FillFOK    FillPolicy = "FOK"
	FillIOC    FillPolicy = "IOC"
	FillReturn FillPolicy = "RETURN"
)

// RetCode is the venue's trade server return code.
type RetCode uint32

const (
	RetCodeRequote      RetCode = 10004
	RetCodeReject       RetCode = 10006
	RetCodeDone         RetCode = 10009
	RetCodeError        RetCode = 10011
	RetCodeTimeout      RetCode = 10012
	RetCodeInvalid      RetCode = 10013
	RetCodeInvalidVol   RetCode = 10014
	RetCodeInvalidStops RetCode = 10016
	RetCodeMarketClosed RetCode = 10018
	RetCodeNoMoney      RetCode = 10019
	RetCodePriceChanged RetCode = 10020
	RetCodePriceOff     RetCode = 10021
	RetCodeConnection   RetCode = 10031
	RetCodePosClosed    RetCode = 10036
)

var retCodeNames = map[RetCode]string{
	RetCodeRequote:      "REQUOTE",
	RetCodeReject:       "REJECT",
	RetCodeDone:         "DONE",
	RetCodeError:        "ERROR",
	RetCodeTimeout:      "TIMEOUT",
	RetCodeInvalid:      "INVALID",
	RetCodeInvalidVol:   "INVALID_VOLUME",
	RetCodeInvalidStops: "INVALID_STOPS",
	RetCodeMarketClosed: "MARKET_CLOSED",
	RetCodeNoMoney:      "NO_MONEY",
	RetCodePriceChanged: "PRICE_CHANGED",
	RetCodePriceOff:     "PRICE_OFF",
	RetCodeConnection:   "CONNECTION",
	RetCodePosClosed:    "POSITION_CLOSED",
}

func (c RetCode) String() string {
	if name, ok := retCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("RETCODE_%d", uint32(c))
}

// Tick is a live ask/bid pair.
type Tick struct {
	Symbol string  `json:"symbol"`
	Ask    float64 `json:"ask"`
	Bid    float64 `json:"bid"`
	TimeMs int64   `json:"time_msc"`
}

// PriceFor returns the price a market order on side executes at.
func (t Tick) PriceFor(side Side) float64 {
	if side == SideBuy {
		return t.Ask
	}
	return t.Bid
}

// SymbolInfo holds the contract metadata of a symbol.
type SymbolInfo struct {
	Symbol       string  `json:"symbol"`
	Point        float64 `json:"point"`
	Digits       int     `json:"digits"`
	ContractSize float64 `json:"contract_size"`
	TickValue    float64 `json:"tick_value"`
	TickSize     float64 `json:"tick_size"`
}

// AccountInfo is the trading account snapshot.
type AccountInfo struct {
	Login    uint64  `json:"login"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Leverage int     `json:"leverage"`
	Profit   float64 `json:"profit"`
	Currency string  `json:"currency"`
}

// Position is an open position as reported by the venue. Identity is the ticket.
type Position struct {
	Ticket     uint64  `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"type"`
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"price_open"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Profit     float64 `json:"profit"`
	Magic      uint64  `json:"magic"`
	Comment    string  `json:"comment"`
}

// OrderRequest captures a trade request in the venue's wire shape.
// StopLoss and TakeProfit are omitted from the payload when nil.
type OrderRequest struct {
	Action     Action     `json:"action"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"type,omitempty"`
	Volume     float64    `json:"volume,omitempty"`
	Price      float64    `json:"price,omitempty"`
	StopLoss   *float64   `json:"sl,omitempty"`
	TakeProfit *float64   `json:"tp,omitempty"`
	Deviation  int        `json:"deviation,omitempty"`
	Magic      uint64     `json:"magic,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	TimePolicy TimePolicy `json:"type_time,omitempty"`
	FillPolicy FillPolicy `json:"type_filling,omitempty"`
	Position   uint64     `json:"position,omitempty"`
}

// OrderResult is the venue's answer to a single SubmitOrder call.
type OrderResult struct {
	RetCode RetCode `json:"retcode"`
	Order   uint64  `json:"order,omitempty"`
	Deal    uint64  `json:"deal,omitempty"`
	Volume  float64 `json:"volume,omitempty"`
	Price   float64 `json:"price,omitempty"`
	Comment string  `json:"comment,omitempty"`
}

// Accepted is true only for the canonical DONE status.
func (r OrderResult) Accepted() bool {
	return r.RetCode == RetCodeDone
}

// Float returns a pointer to v, for the optional request fields.
func Float(v float64) *float64 {
	return &v
}
