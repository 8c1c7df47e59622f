package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// BookQueries reads and writes the paper trading book.
type BookQueries struct {
	db *sql.DB
}

// NewBookQueries creates a new BookQueries instance.
func NewBookQueries(db *sql.DB) *BookQueries {
	return &BookQueries{db: db}
}

// ----------------------------------------
// Account Queries
// ----------------------------------------

// UpsertAccount creates the account or resets its balance and leverage.
func (q *BookQueries) UpsertAccount(ctx context.Context, a Account) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (login, currency, balance, leverage, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(login) DO UPDATE SET
			currency = excluded.currency,
			balance = excluded.balance,
			leverage = excluded.leverage,
			updated_at = CURRENT_TIMESTAMP
	`, a.Login, a.Currency, a.Balance, a.Leverage)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// GetAccount returns the account with the given login.
func (q *BookQueries) GetAccount(ctx context.Context, login int64) (Account, error) {
	var a Account
	err := q.db.QueryRowContext(ctx, `
		SELECT login, currency, balance, leverage, updated_at
		FROM accounts WHERE login = ?
	`, login).Scan(&a.Login, &a.Currency, &a.Balance, &a.Leverage, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// AddBalance books realized profit (or loss) on the account.
func (q *BookQueries) AddBalance(ctx context.Context, login int64, delta float64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
		WHERE login = ?
	`, delta, login)
	if err != nil {
		return fmt.Errorf("add balance: %w", err)
	}
	return expectOne(res)
}

// ----------------------------------------
// Symbol Queries
// ----------------------------------------

// UpsertSymbol stores a contract specification.
func (q *BookQueries) UpsertSymbol(ctx context.Context, s Symbol) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO symbols (symbol, point, digits, contract_size, tick_value, tick_size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			point = excluded.point,
			digits = excluded.digits,
			contract_size = excluded.contract_size,
			tick_value = excluded.tick_value,
			tick_size = excluded.tick_size
	`, s.Symbol, s.Point, s.Digits, s.ContractSize, s.TickValue, s.TickSize)
	if err != nil {
		return fmt.Errorf("upsert symbol: %w", err)
	}
	return nil
}

// GetSymbol returns the specification of symbol.
func (q *BookQueries) GetSymbol(ctx context.Context, symbol string) (Symbol, error) {
	var s Symbol
	err := q.db.QueryRowContext(ctx, `
		SELECT symbol, point, digits, contract_size, tick_value, tick_size
		FROM symbols WHERE symbol = ?
	`, symbol).Scan(&s.Symbol, &s.Point, &s.Digits, &s.ContractSize, &s.TickValue, &s.TickSize)
	if errors.Is(err, sql.ErrNoRows) {
		return Symbol{}, ErrNotFound
	}
	if err != nil {
		return Symbol{}, fmt.Errorf("get symbol: %w", err)
	}
	return s, nil
}

// ----------------------------------------
// Position Queries
// ----------------------------------------

const positionColumns = `ticket, symbol, side, volume, open_price, sl, tp, magic, comment, opened_at`

func scanPosition(row interface{ Scan(...any) error }) (Position, error) {
	var p Position
	err := row.Scan(&p.Ticket, &p.Symbol, &p.Side, &p.Volume, &p.OpenPrice,
		&p.StopLoss, &p.TakeProfit, &p.Magic, &p.Comment, &p.OpenedAt)
	return p, err
}

// OpenPosition inserts a position together with its opening deal and returns both ids.
func (q *BookQueries) OpenPosition(ctx context.Context, p Position) (ticket, deal int64, err error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO positions (symbol, side, volume, open_price, sl, tp, magic, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Symbol, p.Side, p.Volume, p.OpenPrice, p.StopLoss, p.TakeProfit, p.Magic, p.Comment)
	if err != nil {
		return 0, 0, fmt.Errorf("insert position: %w", err)
	}
	if ticket, err = res.LastInsertId(); err != nil {
		return 0, 0, err
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO deals (ticket, symbol, side, entry, volume, price)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ticket, p.Symbol, p.Side, EntryIn, p.Volume, p.OpenPrice)
	if err != nil {
		return 0, 0, fmt.Errorf("insert deal: %w", err)
	}
	if deal, err = res.LastInsertId(); err != nil {
		return 0, 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return ticket, deal, nil
}

// GetPosition returns the open position with the given ticket.
func (q *BookQueries) GetPosition(ctx context.Context, ticket int64) (Position, error) {
	p, err := scanPosition(q.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE ticket = ?`, ticket))
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// GetPositionsBySymbol lists open positions of symbol by ticket.
func (q *BookQueries) GetPositionsBySymbol(ctx context.Context, symbol string) ([]Position, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE symbol = ? ORDER BY ticket`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListPositions returns every open position.
func (q *BookQueries) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY ticket`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpdateStops replaces the stop loss and take profit of a position.
func (q *BookQueries) UpdateStops(ctx context.Context, ticket int64, sl, tp float64) error {
	res, err := q.db.ExecContext(ctx, `UPDATE positions SET sl = ?, tp = ? WHERE ticket = ?`, sl, tp, ticket)
	if err != nil {
		return fmt.Errorf("update stops: %w", err)
	}
	return expectOne(res)
}

// ClosePosition deletes the position, records the closing deal and books profit on
// the account in one transaction.
func (q *BookQueries) ClosePosition(ctx context.Context, login int64, p Position, price, profit float64) (deal int64, err error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE ticket = ?`, p.Ticket)
	if err != nil {
		return 0, fmt.Errorf("delete position: %w", err)
	}
	if err = expectOne(res); err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO deals (ticket, symbol, side, entry, volume, price, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Ticket, p.Symbol, p.Side, EntryOut, p.Volume, price, profit)
	if err != nil {
		return 0, fmt.Errorf("insert deal: %w", err)
	}
	if deal, err = res.LastInsertId(); err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP WHERE login = ?
	`, profit, login); err != nil {
		return 0, fmt.Errorf("book profit: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return deal, nil
}

// GetDeals returns the deals of a ticket in insertion order.
func (q *BookQueries) GetDeals(ctx context.Context, ticket int64) ([]Deal, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT deal, ticket, symbol, side, entry, volume, price, profit, created_at
		FROM deals WHERE ticket = ? ORDER BY deal
	`, ticket)
	if err != nil {
		return nil, fmt.Errorf("query deals: %w", err)
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.Deal, &d.Ticket, &d.Symbol, &d.Side, &d.Entry,
			&d.Volume, &d.Price, &d.Profit, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
