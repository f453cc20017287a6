package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adg-dev/khaata/internal/model"
)

// providerTable describes one provider's expense table: its DDL, its insert
// statement, and how a model.Expense maps onto the insert parameters.
type providerTable struct {
	values func(e model.Expense) []any
	name   string
	ddl    string
	insert string
}

var providerTables = map[string]providerTable{
	"dominos": {
		name: "dominos_expense",
		ddl: `CREATE TABLE IF NOT EXISTS dominos_expense (
			order_id TEXT UNIQUE,
			cost REAL,
			date TEXT,
			food_items TEXT
		)`,
		insert: `INSERT OR IGNORE INTO dominos_expense
			(order_id, cost, date, food_items) VALUES (?, ?, ?, ?)`,
		values: func(e model.Expense) []any {
			return []any{e.OrderID, e.Cost, e.Date.Format(model.DateLayout), e.FoodItems}
		},
	},
	"swiggy": {
		name: "swiggy_expense",
		ddl: `CREATE TABLE IF NOT EXISTS swiggy_expense (
			order_id TEXT UNIQUE,
			cost REAL,
			date TEXT,
			restaurant_name TEXT,
			food_items TEXT,
			post_status TEXT
		)`,
		insert: `INSERT OR IGNORE INTO swiggy_expense
			(order_id, cost, date, restaurant_name, food_items, post_status) VALUES (?, ?, ?, ?, ?, ?)`,
		values: func(e model.Expense) []any {
			return []any{e.OrderID, e.Cost, e.Date.Format(model.DateLayout), e.Restaurant, e.FoodItems, e.PostStatus}
		},
	},
	"zomato": {
		name: "zomato_expense",
		ddl: `CREATE TABLE IF NOT EXISTS zomato_expense (
			order_id TEXT UNIQUE,
			cost REAL,
			date TEXT,
			restaurant_name TEXT,
			food_items TEXT
		)`,
		insert: `INSERT OR IGNORE INTO zomato_expense
			(order_id, cost, date, restaurant_name, food_items) VALUES (?, ?, ?, ?, ?)`,
		values: func(e model.Expense) []any {
			return []any{e.OrderID, e.Cost, e.Date.Format(model.DateLayout), e.Restaurant, e.FoodItems}
		},
	},
}

func table(provider string) (providerTable, error) {
	t, ok := providerTables[provider]
	if !ok {
		return providerTable{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return t, nil
}

// EnsureSchema creates the provider's expense table if it does not exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context, provider string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	t, err := table(provider)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, t.ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.name, err)
	}
	return nil
}

// SaveExpenses persists one page's worth of expenses in a single transaction.
// Rows violating the order_id uniqueness constraint are silently skipped so
// re-ingesting an order is a no-op. Returns the rows actually inserted.
func (s *SQLiteStore) SaveExpenses(ctx context.Context, provider string, expenses []model.Expense) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	t, err := table(provider)
	if err != nil {
		return 0, err
	}
	if len(expenses) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, t.insert)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, e := range expenses {
		res, execErr := stmt.ExecContext(ctx, t.values(e)...)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert order %s: %w", e.OrderID, execErr)
		}
		if n, raErr := res.RowsAffected(); raErr == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expenses: %w", err)
	}
	return inserted, nil
}

// HasData reports whether the provider's expense table exists at all.
func (s *SQLiteStore) HasData(ctx context.Context, provider string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	t, err := table(provider)
	if err != nil {
		return false, err
	}

	var name string
	err = s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, t.name).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", t.name, err)
	}
	return true, nil
}

// Summary aggregates one provider's stored expenses.
type Summary struct {
	First  time.Time
	Last   time.Time
	Orders int
	Total  float64
}

// Summary returns order count, total cost and the first/last order dates for
// a provider. A provider with no rows yields a zero Summary.
func (s *SQLiteStore) Summary(ctx context.Context, provider string) (*Summary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	t, err := table(provider)
	if err != nil {
		return nil, err
	}

	var orders int
	var total sql.NullFloat64
	var first, last sql.NullString
	query := fmt.Sprintf(`SELECT COUNT(*), SUM(cost), MIN(date), MAX(date) FROM %s`, t.name)
	if err := s.db.QueryRowContext(ctx, query).Scan(&orders, &total, &first, &last); err != nil {
		return nil, fmt.Errorf("failed to query %s summary: %w", t.name, err)
	}

	sum := &Summary{Orders: orders, Total: total.Float64}
	if first.Valid {
		if sum.First, err = time.Parse(model.DateLayout, first.String); err != nil {
			return nil, fmt.Errorf("failed to parse first order date: %w", err)
		}
	}
	if last.Valid {
		if sum.Last, err = time.Parse(model.DateLayout, last.String); err != nil {
			return nil, fmt.Errorf("failed to parse last order date: %w", err)
		}
	}
	return sum, nil
}

// CostSince sums a provider's order costs from the given instant onwards.
func (s *SQLiteStore) CostSince(ctx context.Context, provider string, since time.Time) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	t, err := table(provider)
	if err != nil {
		return 0, err
	}

	var total sql.NullFloat64
	query := fmt.Sprintf(`SELECT SUM(cost) FROM %s WHERE date >= ?`, t.name)
	if err := s.db.QueryRowContext(ctx, query, since.Format(model.DateLayout)).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to query %s cost: %w", t.name, err)
	}
	return total.Float64, nil
}

// CostBetween sums a provider's order costs over [from, to].
func (s *SQLiteStore) CostBetween(ctx context.Context, provider string, from, to time.Time) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	t, err := table(provider)
	if err != nil {
		return 0, err
	}

	var total sql.NullFloat64
	query := fmt.Sprintf(`SELECT SUM(cost) FROM %s WHERE date >= ? AND date <= ?`, t.name)
	err = s.db.QueryRowContext(ctx, query,
		from.Format(model.DateLayout), to.Format(model.DateLayout)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to query %s cost: %w", t.name, err)
	}
	return total.Float64, nil
}
