// Package provider contains the generic order-ingestion pipeline and the
// transport plumbing shared by the concrete provider implementations.
package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/adg-dev/khaata/internal/model"
)

// Context is the authorized transport produced by a completed login flow: the
// HTTP client carrying the provider's session cookies plus the header set
// every subsequent request must send.
type Context struct {
	Client  *http.Client
	Headers map[string]string
}

// Session drives a provider's challenge/response login flow.
type Session interface {
	// Authenticate runs the full login sequence and returns the authorized
	// transport context. A failed bootstrap step is unrecoverable.
	Authenticate(ctx context.Context) (*Context, error)
	// Logout tears the session down. Callers treat failures as best-effort.
	Logout(ctx context.Context) error
}

// Page is one page of raw order payloads plus the provider's cursor state.
type Page struct {
	// Cursor points at the next page in the provider's own vocabulary: an
	// opaque link href or a last-seen order id. Empty means exhausted for
	// cursor-driven providers.
	Cursor string
	Orders []json.RawMessage
	// Number is the 1-based position of this page in the walk.
	Number int
}

// Pager walks a provider's order history one page at a time.
type Pager interface {
	// First fetches the head of the order history. Failure here invalidates
	// the whole session and is not retried.
	First(ctx context.Context, ac *Context) (*Page, error)
	// Next fetches the page after prev, or returns a nil page when the
	// history is exhausted.
	Next(ctx context.Context, ac *Context, prev *Page) (*Page, error)
}

// RandomAccessPager is implemented by providers whose pages are independently
// addressable. The pipeline defers failed pages for such providers instead of
// aborting, and revisits them once after the main walk.
type RandomAccessPager interface {
	Pager
	// TotalPages is known once First has returned.
	TotalPages() int
	FetchPage(ctx context.Context, ac *Context, page int) (*Page, error)
}

// Parser normalizes raw order payloads. Orders whose status does not carry
// the provider's success token are dropped (counted in skipped), never
// persisted.
type Parser interface {
	ParseOrders(orders []json.RawMessage) ([]model.Expense, int, error)
}

// Provider bundles everything the pipeline needs from one food-delivery
// platform.
type Provider interface {
	Session
	Pager
	Parser
	Name() string
}
