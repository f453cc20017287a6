package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adg-dev/khaata/internal/common"
	"github.com/adg-dev/khaata/internal/service"
	"github.com/schollz/progressbar/v3"
)

// maxPageRetries is the retry budget for one order page beyond its initial
// attempt. The first page is never retried: if it fails, the session as a
// whole is invalid.
const maxPageRetries = 2

// Pipeline walks one provider's order history page by page, normalizes each
// page, and persists it as a single idempotent batch. Strictly sequential:
// a page is fetched, parsed and committed before the next one is requested.
type Pipeline struct {
	Provider Provider
	Store    service.ExpenseStore
	// Trail receives every raw order payload; written once at run end.
	Trail *Trail
	// Delay draws one backoff/politeness pause; defaults to the shared
	// candidate set.
	Delay func() time.Duration
	// Sleep overrides the blocking sleep, for tests.
	Sleep func(time.Duration)
	// Progress enables the terminal progress bar.
	Progress bool

	seen      int
	persisted int
}

// Run authenticates, ingests every page, writes the audit artifact and logs
// out. Logout and the audit write are best-effort; their failures are logged
// and do not fail the run.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	if p.Delay == nil {
		p.Delay = common.RandomDelay(common.DefaultDelays)
	}

	ac, authErr := p.Provider.Authenticate(ctx)
	if authErr != nil {
		return authErr
	}
	defer func() {
		if logoutErr := p.Provider.Logout(ctx); logoutErr != nil {
			slog.Error("Logout unsuccessful", "provider", p.Provider.Name(), "error", logoutErr)
		} else {
			slog.Info("Logout successful", "provider", p.Provider.Name())
		}
	}()

	slog.Info("Parsing orders", "provider", p.Provider.Name())
	first, firstErr := p.Provider.First(ctx, ac)
	if firstErr != nil {
		return fmt.Errorf("%w: first page: %v", common.ErrPageUnavailable, firstErr)
	}

	bar := p.newProgressBar()
	defer func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}()

	if err := p.ingestPage(ctx, first, bar); err != nil {
		return err
	}

	if rap, ok := p.Provider.(RandomAccessPager); ok {
		err = p.walkRandomAccess(ctx, ac, rap, first, bar)
	} else {
		err = p.walkSequential(ctx, ac, first, bar)
	}
	if err != nil {
		return err
	}

	if flushErr := p.Trail.Flush(); flushErr != nil {
		slog.Error("Failed to write audit trail", "path", p.Trail.Path(), "error", flushErr)
	}
	slog.Info("Ingestion complete",
		"provider", p.Provider.Name(),
		"orders_seen", p.seen,
		"persisted", p.persisted)
	return nil
}

// walkSequential follows cursors that can only be derived from the previous
// response. A page that stays unavailable after the retry budget aborts the
// run, since later pages cannot be addressed without it.
func (p *Pipeline) walkSequential(ctx context.Context, ac *Context, first *Page, bar *progressbar.ProgressBar) error {
	prev := first
	for {
		var next *Page
		err := common.WithRetry(ctx, func() error {
			var opErr error
			next, opErr = p.Provider.Next(ctx, ac, prev)
			return opErr
		}, common.RetryOptions{MaxRetries: maxPageRetries, Delay: p.Delay, Sleep: p.Sleep})
		if err != nil {
			return fmt.Errorf("%w: after page %d: %v", common.ErrPageUnavailable, prev.Number, err)
		}
		if next == nil {
			return nil
		}

		if err := p.ingestPage(ctx, next, bar); err != nil {
			return err
		}
		if err := p.pause(ctx); err != nil {
			return err
		}
		prev = next
	}
}

// walkRandomAccess drives page numbers 2..TotalPages directly. Pages that
// stay unavailable after the retry budget are deferred and revisited once at
// the end; a second failure drops the page.
func (p *Pipeline) walkRandomAccess(ctx context.Context, ac *Context, rap RandomAccessPager, first *Page, bar *progressbar.ProgressBar) error {
	total := rap.TotalPages()
	var failed []int

	for n := first.Number + 1; n <= total; n++ {
		if err := p.pause(ctx); err != nil {
			return err
		}

		var page *Page
		err := common.WithRetry(ctx, func() error {
			var opErr error
			page, opErr = rap.FetchPage(ctx, ac, n)
			return opErr
		}, common.RetryOptions{MaxRetries: maxPageRetries, Delay: p.Delay, Sleep: p.Sleep})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			slog.Warn("Unable to fetch order page, deferring", "page", n, "error", err)
			failed = append(failed, n)
			continue
		}

		if err := p.ingestPage(ctx, page, bar); err != nil {
			return err
		}
	}

	if len(failed) == 0 {
		return nil
	}

	slog.Info("Retrying failed pages", "provider", p.Provider.Name(), "pages", len(failed))
	for _, n := range failed {
		if err := p.pause(ctx); err != nil {
			return err
		}

		page, err := rap.FetchPage(ctx, ac, n)
		if err != nil {
			slog.Warn("Dropping order page after retry pass", "page", n, "error", err)
			continue
		}
		if err := p.ingestPage(ctx, page, bar); err != nil {
			return err
		}
	}
	return nil
}

// ingestPage records the raw payloads for the audit trail, normalizes them
// and commits the batch.
func (p *Pipeline) ingestPage(ctx context.Context, page *Page, bar *progressbar.ProgressBar) error {
	p.Trail.Append(page.Orders...)
	p.seen += len(page.Orders)

	expenses, skipped, err := p.Provider.ParseOrders(page.Orders)
	if err != nil {
		return fmt.Errorf("failed to parse page %d: %w", page.Number, err)
	}

	saved, err := p.Store.SaveExpenses(ctx, p.Provider.Name(), expenses)
	if err != nil {
		return fmt.Errorf("failed to save page %d: %w", page.Number, err)
	}
	p.persisted += saved

	if bar != nil {
		_ = bar.Add(1)
	}
	slog.Info("Ingested order page",
		"provider", p.Provider.Name(),
		"page", page.Number,
		"orders", len(page.Orders),
		"skipped", skipped,
		"saved", saved)
	return nil
}

// pause sleeps one jittered delay between page fetches so the walk does not
// trip provider-side rate limiting.
func (p *Pipeline) pause(ctx context.Context) error {
	return common.SleepContext(ctx, p.Delay(), p.Sleep)
}

func (p *Pipeline) newProgressBar() *progressbar.ProgressBar {
	if !p.Progress {
		return nil
	}

	total := int64(-1)
	if rap, ok := p.Provider.(RandomAccessPager); ok {
		total = int64(rap.TotalPages())
	}
	return progressbar.Default(total, "order pages")
}
