// Package service defines the interfaces shared between the CLI, the
// ingestion pipeline, and the persistence layer.
package service

import (
	"context"

	"github.com/adg-dev/khaata/internal/model"
)

// Prompter collects a value from the user, blocking until it is confirmed.
// Implementations re-prompt until the user answers yes to the confirmation.
type Prompter interface {
	Ask(ctx context.Context, label string) (string, error)
}

// ExpenseStore is the persistence contract used by the ingestion pipeline.
type ExpenseStore interface {
	// EnsureSchema creates the provider's expense table if missing.
	EnsureSchema(ctx context.Context, provider string) error
	// SaveExpenses persists one page batch in a single transaction with
	// insert-or-ignore semantics, returning the rows actually inserted.
	SaveExpenses(ctx context.Context, provider string, expenses []model.Expense) (int, error)
}
