package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adg-dev/khaata/internal/common"
	"github.com/adg-dev/khaata/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records saved batches in memory.
type fakeStore struct {
	saved  []model.Expense
	tables []string
}

func (f *fakeStore) EnsureSchema(_ context.Context, provider string) error {
	f.tables = append(f.tables, provider)
	return nil
}

func (f *fakeStore) SaveExpenses(_ context.Context, _ string, expenses []model.Expense) (int, error) {
	f.saved = append(f.saved, expenses...)
	return len(expenses), nil
}

// linkProvider serves a scripted sequence of link-chained pages. failAt maps
// a page number to how many times its fetch should fail before succeeding.
type linkProvider struct {
	pages   []*Page
	failAt  map[int]int
	fetches int
	logouts int
}

func (l *linkProvider) Name() string { return "fake" }

func (l *linkProvider) Authenticate(_ context.Context) (*Context, error) {
	return &Context{Headers: map[string]string{}}, nil
}

func (l *linkProvider) Logout(_ context.Context) error {
	l.logouts++
	return nil
}

func (l *linkProvider) fetch(number int) (*Page, error) {
	l.fetches++
	if remaining := l.failAt[number]; remaining > 0 {
		l.failAt[number] = remaining - 1
		return nil, errors.New("status 502")
	}
	return l.pages[number-1], nil
}

func (l *linkProvider) First(_ context.Context, _ *Context) (*Page, error) {
	return l.fetch(1)
}

func (l *linkProvider) Next(_ context.Context, _ *Context, prev *Page) (*Page, error) {
	if prev.Cursor == "" {
		return nil, nil
	}
	return l.fetch(prev.Number + 1)
}

func (l *linkProvider) ParseOrders(orders []json.RawMessage) ([]model.Expense, int, error) {
	expenses := make([]model.Expense, 0, len(orders))
	for _, raw := range orders {
		var o struct {
			ID   string  `json:"id"`
			Cost float64 `json:"cost"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, 0, err
		}
		expenses = append(expenses, model.Expense{OrderID: o.ID, Cost: o.Cost, Date: time.Now()})
	}
	return expenses, 0, nil
}

// makeLinkPages builds n pages of one order each, chained by cursor, with the
// last page carrying no cursor.
func makeLinkPages(n int) []*Page {
	pages := make([]*Page, n)
	for i := range pages {
		raw := json.RawMessage(fmt.Sprintf(`{"id":"order-%d","cost":100}`, i+1))
		pages[i] = &Page{Orders: []json.RawMessage{raw}, Number: i + 1}
		if i < n-1 {
			pages[i].Cursor = fmt.Sprintf("page/%d", i+2)
		}
	}
	return pages
}

func newTestPipeline(t *testing.T, prov Provider, store *fakeStore) *Pipeline {
	t.Helper()
	return &Pipeline{
		Provider: prov,
		Store:    store,
		Trail:    NewTrail(t.TempDir(), prov.Name()),
		Delay:    common.RandomDelay(common.DefaultDelays),
		Sleep:    func(time.Duration) {},
	}
}

func TestPipeline_LinkPaginationTerminates(t *testing.T) {
	const n = 4
	prov := &linkProvider{pages: makeLinkPages(n), failAt: map[int]int{}}
	store := &fakeStore{}

	err := newTestPipeline(t, prov, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, n, prov.fetches, "one fetch per page, then stop on the absent link")
	assert.Len(t, store.saved, n)
	assert.Equal(t, 1, prov.logouts)
}

func TestPipeline_RetryBudgetRecovers(t *testing.T) {
	prov := &linkProvider{
		pages: makeLinkPages(2),
		// Page 2 fails twice, then succeeds on the third attempt.
		failAt: map[int]int{2: 2},
	}
	store := &fakeStore{}

	err := newTestPipeline(t, prov, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, prov.fetches, "page 1 once, page 2 three times")
	assert.Len(t, store.saved, 2)
}

func TestPipeline_SequentialPageExhaustionAborts(t *testing.T) {
	prov := &linkProvider{
		pages:  makeLinkPages(2),
		failAt: map[int]int{2: 100},
	}
	store := &fakeStore{}

	err := newTestPipeline(t, prov, store).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPageUnavailable)

	// Initial attempt plus exactly two retries for the broken page.
	assert.Equal(t, 4, prov.fetches)
	assert.Len(t, store.saved, 1, "page 1 stays persisted")
	assert.Equal(t, 1, prov.logouts, "logout still attempted on abort")
}

func TestPipeline_FirstPageFailureIsFatalWithoutRetry(t *testing.T) {
	prov := &linkProvider{
		pages:  makeLinkPages(1),
		failAt: map[int]int{1: 100},
	}
	store := &fakeStore{}

	err := newTestPipeline(t, prov, store).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPageUnavailable)
	assert.Equal(t, 1, prov.fetches, "the first page is never retried")
	assert.Empty(t, store.saved)
}

func TestPipeline_BackoffDrawnFromCandidateSet(t *testing.T) {
	prov := &linkProvider{
		pages:  makeLinkPages(3),
		failAt: map[int]int{2: 2},
	}
	store := &fakeStore{}

	var slept []time.Duration
	pipe := newTestPipeline(t, prov, store)
	pipe.Sleep = func(d time.Duration) { slept = append(slept, d) }

	err := pipe.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, slept)
	for _, d := range slept {
		assert.Contains(t, common.DefaultDelays, d, "every pause must come from the candidate set")
	}
}

// pagedProvider is a count-based provider whose pages are independently
// addressable.
type pagedProvider struct {
	linkProvider
	total int
}

func (p *pagedProvider) First(_ context.Context, _ *Context) (*Page, error) {
	return p.fetch(1)
}

func (p *pagedProvider) Next(_ context.Context, _ *Context, prev *Page) (*Page, error) {
	if prev.Number >= p.total {
		return nil, nil
	}
	return p.fetch(prev.Number + 1)
}

func (p *pagedProvider) TotalPages() int { return p.total }

func (p *pagedProvider) FetchPage(_ context.Context, _ *Context, page int) (*Page, error) {
	return p.fetch(page)
}

// makeNumberedPages builds n pages of one order each with no cursors.
func makeNumberedPages(n int) []*Page {
	pages := makeLinkPages(n)
	for _, pg := range pages {
		pg.Cursor = ""
	}
	return pages
}

func TestPipeline_RandomAccessDefersFailedPages(t *testing.T) {
	prov := &pagedProvider{
		linkProvider: linkProvider{
			pages: makeNumberedPages(3),
			// Page 2 fails through its retry budget, then recovers in the
			// deferred pass.
			failAt: map[int]int{2: 3},
		},
		total: 3,
	}
	store := &fakeStore{}

	err := newTestPipeline(t, prov, store).Run(context.Background())
	require.NoError(t, err)

	// Pages 1 and 3 once each, page 2 three failures plus one deferred success.
	assert.Equal(t, 6, prov.fetches)
	assert.Len(t, store.saved, 3, "the deferred page is still persisted")
}

func TestPipeline_RandomAccessDropsPageAfterRetryPass(t *testing.T) {
	prov := &pagedProvider{
		linkProvider: linkProvider{
			pages:  makeNumberedPages(3),
			failAt: map[int]int{2: 100},
		},
		total: 3,
	}
	store := &fakeStore{}

	err := newTestPipeline(t, prov, store).Run(context.Background())
	require.NoError(t, err, "a dropped page does not fail the run")

	// Page 2: three attempts in the walk, one in the retry pass.
	assert.Equal(t, 6, prov.fetches)
	assert.Len(t, store.saved, 2)
}

func TestPipeline_AuditTrailWritten(t *testing.T) {
	prov := &linkProvider{pages: makeLinkPages(2), failAt: map[int]int{}}
	store := &fakeStore{}

	dir := t.TempDir()
	pipe := newTestPipeline(t, prov, store)
	pipe.Trail = NewTrail(dir, prov.Name())

	require.NoError(t, pipe.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "fake_orders.json"))
	require.NoError(t, err)

	var orders []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &orders))
	assert.Len(t, orders, 2)
}

func TestPipeline_AuthFailureAborts(t *testing.T) {
	prov := &failingAuthProvider{}
	store := &fakeStore{}

	err := newTestPipeline(t, prov, store).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrAuthFailed)
	assert.Zero(t, prov.logouts, "no logout without a session")
}

type failingAuthProvider struct {
	linkProvider
}

func (f *failingAuthProvider) Authenticate(_ context.Context) (*Context, error) {
	return nil, fmt.Errorf("%w: bootstrap returned 403", common.ErrAuthFailed)
}
