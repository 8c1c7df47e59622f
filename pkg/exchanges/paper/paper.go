// Package paper implements a simulated venue on an in-memory SQLite book.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"execution-core/pkg/db"
	exchange "execution-core/pkg/exchanges/common"
)

// Config holds paper account settings.
type Config struct {
	Login    int64
	Currency string
	Balance  float64
	Leverage int64
	Symbols  []exchange.SymbolInfo
}

// DefaultConfig returns a 10k USD account with a few FX and metal symbols.
func DefaultConfig() Config {
	return Config{
		Login:    1,
		Currency: "USD",
		Balance:  10000,
		Leverage: 100,
		Symbols: []exchange.SymbolInfo{
			{Symbol: "EURUSD", Point: 0.00001, Digits: 5, ContractSize: 100000, TickValue: 1, TickSize: 0.00001},
			{Symbol: "GBPUSD", Point: 0.00001, Digits: 5, ContractSize: 100000, TickValue: 1, TickSize: 0.00001},
			{Symbol: "XAUUSD", Point: 0.01, Digits: 2, ContractSize: 100, TickValue: 1, TickSize: 0.01},
		},
	}
}

// Venue is a gateway and session backed by a private in-memory book. The book outlives
// individual sessions and is dropped by Close.
type Venue struct {
	cfg    Config
	logger *zap.Logger

	database *db.Database
	book     *db.BookQueries

	mu        sync.RWMutex
	ticks     map[string]exchange.Tick
	connected bool

	orderSeq atomic.Uint64
}

// New opens the book and seeds the account and symbols.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Venue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 100
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	database, err := db.New(db.MemoryPath)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(database); err != nil {
		database.Close()
		return nil, err
	}
	book := database.Book()
	if err := book.UpsertAccount(ctx, db.Account{
		Login:    cfg.Login,
		Currency: cfg.Currency,
		Balance:  cfg.Balance,
		Leverage: cfg.Leverage,
	}); err != nil {
		database.Close()
		return nil, err
	}

	v := &Venue{
		cfg:      cfg,
		logger:   logger,
		database: database,
		book:     book,
		ticks:    make(map[string]exchange.Tick),
	}
	for _, s := range cfg.Symbols {
		if err := v.SetSymbol(ctx, s); err != nil {
			database.Close()
			return nil, err
		}
	}
	return v, nil
}

// Initialize establishes the session.
func (v *Venue) Initialize(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.database == nil {
		return errors.New("paper venue closed")
	}
	if !v.connected {
		v.connected = true
		v.logger.Info("paper session initialized", zap.Int64("login", v.cfg.Login))
	}
	return nil
}

// Shutdown ends the session. Positions stay in the book.
func (v *Venue) Shutdown() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connected {
		v.connected = false
		v.logger.Info("paper session shut down")
	}
	return nil
}

// Ping reports whether the session is up.
func (v *Venue) Ping(ctx context.Context) error {
	return v.ready()
}

// Close drops the book.
func (v *Venue) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = false
	if v.database == nil {
		return nil
	}
	err := v.database.Close()
	v.database = nil
	return err
}

func (v *Venue) ready() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.connected {
		return exchange.ErrSessionUnavailable
	}
	return nil
}

// SetSymbol adds or replaces a symbol specification.
func (v *Venue) SetSymbol(ctx context.Context, s exchange.SymbolInfo) error {
	if s.Symbol == "" || s.Point <= 0 {
		return fmt.Errorf("invalid symbol spec %+v", s)
	}
	if s.TickSize <= 0 {
		s.TickSize = s.Point
	}
	if s.TickValue <= 0 {
		s.TickValue = s.ContractSize * s.TickSize
	}
	return v.book.UpsertSymbol(ctx, db.Symbol{
		Symbol:       s.Symbol,
		Point:        s.Point,
		Digits:       s.Digits,
		ContractSize: s.ContractSize,
		TickValue:    s.TickValue,
		TickSize:     s.TickSize,
	})
}

// SetTick publishes a quote and closes positions on that symbol whose stop loss or take
// profit the quote reaches.
func (v *Venue) SetTick(t exchange.Tick) {
	if t.TimeMs == 0 {
		t.TimeMs = time.Now().UnixMilli()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ticks[t.Symbol] = t
	if err := v.triggerStops(context.Background(), t); err != nil {
		v.logger.Warn("paper stop check failed", zap.String("symbol", t.Symbol), zap.Error(err))
	}
}

// triggerStops closes every position of t.Symbol whose stop is hit at the exit side of t.
// Callers hold v.mu.
func (v *Venue) triggerStops(ctx context.Context, t exchange.Tick) error {
	rows, err := v.book.GetPositionsBySymbol(ctx, t.Symbol)
	if err != nil || len(rows) == 0 {
		return err
	}
	spec, err := v.book.GetSymbol(ctx, t.Symbol)
	if err != nil {
		return err
	}
	for _, row := range rows {
		side := exchange.Side(row.Side)
		price := t.PriceFor(side.Opposite())
		reason := stopHit(side, price, row.StopLoss, row.TakeProfit)
		if reason == "" {
			continue
		}
		profit := pnl(spec, side, row.Volume, row.OpenPrice, price)
		if _, err := v.book.ClosePosition(ctx, v.cfg.Login, row, price, profit); err != nil {
			return err
		}
		v.logger.Info("paper stop triggered",
			zap.Int64("ticket", row.Ticket),
			zap.String("trigger", reason),
			zap.Float64("price", price),
			zap.Float64("profit", profit))
	}
	return nil
}

// stopHit reports "sl" or "tp" when price reaches a set level, "" otherwise.
func stopHit(side exchange.Side, price, sl, tp float64) string {
	if price <= 0 {
		return ""
	}
	if side == exchange.SideBuy {
		switch {
		case sl > 0 && price <= sl:
			return "sl"
		case tp > 0 && price >= tp:
			return "tp"
		}
		return ""
	}
	switch {
	case sl > 0 && price >= sl:
		return "sl"
	case tp > 0 && price <= tp:
		return "tp"
	}
	return ""
}

func (v *Venue) GetTick(ctx context.Context, symbol string) (exchange.Tick, error) {
	if err := v.ready(); err != nil {
		return exchange.Tick{}, err
	}
	v.mu.RLock()
	t, ok := v.ticks[symbol]
	v.mu.RUnlock()
	if !ok {
		return exchange.Tick{}, fmt.Errorf("no quotes for %s", symbol)
	}
	return t, nil
}

func (v *Venue) GetSymbolInfo(ctx context.Context, symbol string) (exchange.SymbolInfo, error) {
	if err := v.ready(); err != nil {
		return exchange.SymbolInfo{}, err
	}
	s, err := v.book.GetSymbol(ctx, symbol)
	if errors.Is(err, db.ErrNotFound) {
		return exchange.SymbolInfo{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	if err != nil {
		return exchange.SymbolInfo{}, err
	}
	return toSymbolInfo(s), nil
}

func (v *Venue) GetPosition(ctx context.Context, ticket uint64) (exchange.Position, error) {
	if err := v.ready(); err != nil {
		return exchange.Position{}, err
	}
	row, err := v.book.GetPosition(ctx, int64(ticket))
	if errors.Is(err, db.ErrNotFound) {
		return exchange.Position{}, exchange.ErrPositionNotFound
	}
	if err != nil {
		return exchange.Position{}, err
	}
	return v.markToMarket(ctx, row)
}

func (v *Venue) GetPositionsBySymbol(ctx context.Context, symbol string) ([]exchange.Position, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	rows, err := v.book.GetPositionsBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]exchange.Position, 0, len(rows))
	for _, row := range rows {
		pos, err := v.markToMarket(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

func (v *Venue) GetAccountInfo(ctx context.Context) (exchange.AccountInfo, error) {
	if err := v.ready(); err != nil {
		return exchange.AccountInfo{}, err
	}
	acct, err := v.book.GetAccount(ctx, v.cfg.Login)
	if err != nil {
		return exchange.AccountInfo{}, err
	}
	floating, _, err := v.exposure(ctx)
	if err != nil {
		return exchange.AccountInfo{}, err
	}
	return exchange.AccountInfo{
		Login:    uint64(acct.Login),
		Balance:  acct.Balance,
		Equity:   round2(acct.Balance + floating),
		Leverage: int(acct.Leverage),
		Profit:   floating,
		Currency: acct.Currency,
	}, nil
}

// SubmitOrder executes market deals and stop modifications against the book.
func (v *Venue) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if err := v.ready(); err != nil {
		return exchange.OrderResult{}, err
	}
	// serialize fills so margin checks see a consistent book
	v.mu.Lock()
	defer v.mu.Unlock()

	switch req.Action {
	case exchange.ActionDeal:
		if req.Position != 0 {
			return v.closeDeal(ctx, req)
		}
		return v.openDeal(ctx, req)
	case exchange.ActionSLTP:
		return v.modifyStops(ctx, req)
	default:
		return reject(exchange.RetCodeInvalid, "unsupported action"), nil
	}
}

func (v *Venue) openDeal(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if !req.Side.Valid() {
		return reject(exchange.RetCodeInvalid, "invalid order type"), nil
	}
	if req.Volume <= 0 {
		return reject(exchange.RetCodeInvalidVol, "invalid volume"), nil
	}
	spec, tick, res, ok := v.quote(ctx, req)
	if !ok {
		return res, nil
	}
	price := tick.PriceFor(req.Side)

	sl, tp := deref(req.StopLoss), deref(req.TakeProfit)
	if !stopsValid(req.Side, price, sl, tp) {
		return reject(exchange.RetCodeInvalidStops, "invalid stops"), nil
	}

	acct, err := v.book.GetAccount(ctx, v.cfg.Login)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	floating, used, err := v.exposureLocked(ctx)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	free := acct.Balance + floating - used
	if margin(spec, req.Volume, price, acct.Leverage) > free {
		return reject(exchange.RetCodeNoMoney, "no money"), nil
	}

	ticket, deal, err := v.book.OpenPosition(ctx, db.Position{
		Symbol:     req.Symbol,
		Side:       string(req.Side),
		Volume:     req.Volume,
		OpenPrice:  price,
		StopLoss:   sl,
		TakeProfit: tp,
		Magic:      int64(req.Magic),
		Comment:    req.Comment,
	})
	if err != nil {
		return exchange.OrderResult{}, err
	}
	v.logger.Debug("paper position opened",
		zap.Int64("ticket", ticket),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("volume", req.Volume),
		zap.Float64("price", price))
	return exchange.OrderResult{
		RetCode: exchange.RetCodeDone,
		Order:   uint64(ticket),
		Deal:    uint64(deal),
		Volume:  req.Volume,
		Price:   price,
		Comment: "Request executed",
	}, nil
}

func (v *Venue) closeDeal(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	row, err := v.book.GetPosition(ctx, int64(req.Position))
	if errors.Is(err, db.ErrNotFound) {
		return reject(exchange.RetCodePosClosed, "position closed"), nil
	}
	if err != nil {
		return exchange.OrderResult{}, err
	}
	side := exchange.Side(row.Side)
	if req.Side != side.Opposite() {
		return reject(exchange.RetCodeInvalid, "close must be opposite to position"), nil
	}
	if math.Abs(req.Volume-row.Volume) > 1e-9 {
		return reject(exchange.RetCodeInvalidVol, "partial close not supported"), nil
	}
	req.Symbol = row.Symbol
	spec, tick, res, ok := v.quote(ctx, req)
	if !ok {
		return res, nil
	}
	price := tick.PriceFor(req.Side)
	profit := pnl(spec, side, row.Volume, row.OpenPrice, price)

	deal, err := v.book.ClosePosition(ctx, v.cfg.Login, row, price, profit)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	v.logger.Debug("paper position closed",
		zap.Int64("ticket", row.Ticket),
		zap.Float64("price", price),
		zap.Float64("profit", profit))
	return exchange.OrderResult{
		RetCode: exchange.RetCodeDone,
		Order:   v.orderSeq.Add(1),
		Deal:    uint64(deal),
		Volume:  row.Volume,
		Price:   price,
		Comment: "Request executed",
	}, nil
}

func (v *Venue) modifyStops(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	row, err := v.book.GetPosition(ctx, int64(req.Position))
	if errors.Is(err, db.ErrNotFound) {
		return reject(exchange.RetCodePosClosed, "position closed"), nil
	}
	if err != nil {
		return exchange.OrderResult{}, err
	}
	tick, ok := v.ticks[row.Symbol]
	if !ok {
		return reject(exchange.RetCodePriceOff, "no quotes"), nil
	}
	side := exchange.Side(row.Side)
	sl, tp := deref(req.StopLoss), deref(req.TakeProfit)
	// stops are checked against the price the position would close at
	if !stopsValid(side, tick.PriceFor(side.Opposite()), sl, tp) {
		return reject(exchange.RetCodeInvalidStops, "invalid stops"), nil
	}
	if err := v.book.UpdateStops(ctx, row.Ticket, sl, tp); err != nil {
		return exchange.OrderResult{}, err
	}
	return exchange.OrderResult{RetCode: exchange.RetCodeDone, Comment: "Request executed"}, nil
}

// quote resolves spec and tick for req and applies the deviation check. ok is false
// when res holds a rejection. Callers hold v.mu.
func (v *Venue) quote(ctx context.Context, req exchange.OrderRequest) (db.Symbol, exchange.Tick, exchange.OrderResult, bool) {
	spec, err := v.book.GetSymbol(ctx, req.Symbol)
	if err != nil {
		return db.Symbol{}, exchange.Tick{}, reject(exchange.RetCodeInvalid, "unknown symbol"), false
	}
	tick, ok := v.ticks[req.Symbol]
	if !ok {
		return db.Symbol{}, exchange.Tick{}, reject(exchange.RetCodePriceOff, "no quotes"), false
	}
	market := tick.PriceFor(req.Side)
	if req.Price > 0 {
		allowed := float64(req.Deviation) * spec.Point
		if math.Abs(req.Price-market) > allowed+spec.Point/2 {
			res := reject(exchange.RetCodeRequote, "requote")
			res.Price = market
			return db.Symbol{}, exchange.Tick{}, res, false
		}
	}
	return spec, tick, exchange.OrderResult{}, true
}

func (v *Venue) markToMarket(ctx context.Context, row db.Position) (exchange.Position, error) {
	pos := toPosition(row)
	spec, err := v.book.GetSymbol(ctx, row.Symbol)
	if err != nil {
		return pos, err
	}
	v.mu.RLock()
	tick, ok := v.ticks[row.Symbol]
	v.mu.RUnlock()
	if ok {
		pos.Profit = pnl(spec, pos.Side, pos.Volume, pos.OpenPrice, tick.PriceFor(pos.Side.Opposite()))
	}
	return pos, nil
}

func (v *Venue) exposure(ctx context.Context) (floating, used float64, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.exposureLocked(ctx)
}

// exposureLocked sums floating profit and used margin over the book. Callers hold v.mu.
func (v *Venue) exposureLocked(ctx context.Context) (floating, used float64, err error) {
	acct, err := v.book.GetAccount(ctx, v.cfg.Login)
	if err != nil {
		return 0, 0, err
	}
	rows, err := v.book.ListPositions(ctx)
	if err != nil {
		return 0, 0, err
	}
	specs := make(map[string]db.Symbol)
	for _, row := range rows {
		spec, ok := specs[row.Symbol]
		if !ok {
			if spec, err = v.book.GetSymbol(ctx, row.Symbol); err != nil {
				return 0, 0, err
			}
			specs[row.Symbol] = spec
		}
		side := exchange.Side(row.Side)
		used += margin(spec, row.Volume, row.OpenPrice, acct.Leverage)
		if tick, ok := v.ticks[row.Symbol]; ok {
			floating += pnl(spec, side, row.Volume, row.OpenPrice, tick.PriceFor(side.Opposite()))
		}
	}
	return round2(floating), used, nil
}

// pnl converts a price move into account currency through tick value and tick size.
func pnl(spec db.Symbol, side exchange.Side, volume, open, exit float64) float64 {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(open))
	if side == exchange.SideSell {
		diff = diff.Neg()
	}
	tickSize := decimal.NewFromFloat(spec.TickSize)
	if !tickSize.IsPositive() {
		tickSize = decimal.NewFromFloat(spec.Point)
	}
	p := diff.Div(tickSize).
		Mul(decimal.NewFromFloat(spec.TickValue)).
		Mul(decimal.NewFromFloat(volume)).
		Round(2)
	f, _ := p.Float64()
	return f
}

func margin(spec db.Symbol, volume, price float64, leverage int64) float64 {
	if leverage <= 0 {
		leverage = 1
	}
	m := decimal.NewFromFloat(volume).
		Mul(decimal.NewFromFloat(spec.ContractSize)).
		Mul(decimal.NewFromFloat(price)).
		Div(decimal.NewFromInt(leverage))
	f, _ := m.Float64()
	return f
}

// stopsValid checks that sl sits on the losing side and tp on the winning side of price.
// Zero means "not set".
func stopsValid(side exchange.Side, price, sl, tp float64) bool {
	if side == exchange.SideBuy {
		return (sl == 0 || sl < price) && (tp == 0 || tp > price)
	}
	return (sl == 0 || sl > price) && (tp == 0 || tp < price)
}

func reject(code exchange.RetCode, comment string) exchange.OrderResult {
	return exchange.OrderResult{RetCode: code, Comment: comment}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func round2(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}

func toSymbolInfo(s db.Symbol) exchange.SymbolInfo {
	return exchange.SymbolInfo{
		Symbol:       s.Symbol,
		Point:        s.Point,
		Digits:       s.Digits,
		ContractSize: s.ContractSize,
		TickValue:    s.TickValue,
		TickSize:     s.TickSize,
	}
}

func toPosition(row db.Position) exchange.Position {
	return exchange.Position{
		Ticket:     uint64(row.Ticket),
		Symbol:     row.Symbol,
		Side:       exchange.Side(row.Side),
		Volume:     row.Volume,
		OpenPrice:  row.OpenPrice,
		StopLoss:   row.StopLoss,
		TakeProfit: row.TakeProfit,
		Magic:      uint64(row.Magic),
		Comment:    row.Comment,
	}
}
