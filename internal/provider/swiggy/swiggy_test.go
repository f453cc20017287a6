package swiggy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adg-dev/khaata/internal/common"
	"github.com/adg-dev/khaata/internal/model"
	"github.com/adg-dev/khaata/internal/provider"
	"github.com/adg-dev/khaata/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPrompter struct {
	answers []string
}

func (s *scriptedPrompter) Ask(_ context.Context, label string) (string, error) {
	if len(s.answers) == 0 {
		return "", fmt.Errorf("no answer scripted for %q", label)
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

func writeHeaderFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swiggy_headers")
	require.NoError(t, os.WriteFile(path, []byte("user-agent: test-agent\n"), 0600))
	return path
}

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	prov, err := New(writeHeaderFile(t), &scriptedPrompter{answers: []string{"9876543210", "123456"}})
	require.NoError(t, err)
	prov.BaseURL = baseURL
	return prov
}

func TestAuthenticate_FullFlow(t *testing.T) {
	var otpPayload, verifyPayload string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dapi/cart":
			fmt.Fprint(w, `{"csrfToken":"csrf-1","statusCode":0}`)
		case "/dapi/auth/sms-otp":
			body, _ := io.ReadAll(r.Body)
			otpPayload = string(body)
			fmt.Fprint(w, `{"statusCode":0}`)
		case "/dapi/auth/otp-verify":
			body, _ := io.ReadAll(r.Body)
			verifyPayload = string(body)
			fmt.Fprint(w, `{"statusCode":0}`)
		case "/dapi/order/all":
			fmt.Fprint(w, `{"statusCode":0,"csrfToken":"csrf-2","data":{"orders":[]}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	prov := newTestProvider(t, srv.URL)

	ac, err := prov.Authenticate(context.Background())
	require.NoError(t, err)

	assert.Contains(t, otpPayload, `"mobile": "9876543210"`)
	assert.Contains(t, otpPayload, `"_csrf":"csrf-1"`)
	assert.Contains(t, verifyPayload, `"otp":"123456"`)
	assert.Equal(t, "csrf-2", prov.csrf, "the post-login token replaces the bootstrap token")
	assert.Equal(t, "test-agent", ac.Headers["user-agent"])
}

func TestAuthenticate_NonZeroStatusCodeIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dapi/cart":
			fmt.Fprint(w, `{"csrfToken":"csrf-1"}`)
		case "/dapi/auth/sms-otp":
			// HTTP 200 carrying Swiggy's in-band failure shape.
			fmt.Fprint(w, `{"statusCode":1,"statusMessage":"too many attempts"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	prov := newTestProvider(t, srv.URL)

	_, err := prov.Authenticate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrAuthFailed)
	assert.Contains(t, err.Error(), "too many attempts")
}

func TestAuthenticate_MissingCsrfIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	prov := newTestProvider(t, srv.URL)

	_, err := prov.Authenticate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrAuthFailed)
}

func TestPagination_CursorsByLastOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dapi/order/all", r.URL.Path)
		switch r.URL.Query().Get("order_id") {
		case "":
			fmt.Fprint(w, `{"data":{"total_orders":3,"orders":[{"order_id":101},{"order_id":100}]}}`)
		case "100":
			fmt.Fprint(w, `{"data":{"orders":[{"order_id":99}]}}`)
		case "99":
			fmt.Fprint(w, `{"data":{"orders":[]}}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("order_id"))
		}
	}))
	defer srv.Close()

	prov := newTestProvider(t, srv.URL)
	ac := &provider.Context{Client: http.DefaultClient, Headers: map[string]string{}}

	first, err := prov.First(context.Background(), ac)
	require.NoError(t, err)
	assert.Equal(t, "100", first.Cursor, "the cursor is the last order on the page")
	assert.Len(t, first.Orders, 2)

	second, err := prov.Next(context.Background(), ac, first)
	require.NoError(t, err)
	assert.Equal(t, "99", second.Cursor)

	third, err := prov.Next(context.Background(), ac, second)
	require.NoError(t, err)
	assert.Empty(t, third.Cursor)
	assert.Empty(t, third.Orders)

	done, err := prov.Next(context.Background(), ac, third)
	require.NoError(t, err)
	assert.Nil(t, done, "an empty page ends the walk")
}

func TestParseOrders_FiltersAndNormalizes(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{
			"order_id": 101,
			"order_status": "Delivered",
			"post_status": "completed",
			"order_total_with_tip": 285.0,
			"order_time": "2021-06-05 20:15:00",
			"restaurant_name": "Biryani House",
			"order_items": [{"quantity": "1", "name": "Chicken Biryani"}]
		}`),
		json.RawMessage(`{
			"order_id": 100,
			"order_status": "Cancelled",
			"post_status": "refunded",
			"order_total_with_tip": 120.0,
			"order_time": "2021-06-04 13:00:00",
			"order_items": []
		}`),
		json.RawMessage(`{
			"order_id": 99,
			"order_status": "DELIVERED",
			"post_status": "completed",
			"order_total_with_tip": "90.50",
			"order_time": "2021-06-01 12:30:00",
			"order_items": [{"quantity": "2", "name": "Masala Dosa"}]
		}`),
	}

	prov := &Provider{}
	expenses, skipped, err := prov.ParseOrders(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, expenses, 2)

	assert.Equal(t, "101", expenses[0].OrderID)
	assert.Equal(t, "Biryani House", expenses[0].Restaurant)
	assert.Equal(t, "1 x Chicken Biryani", expenses[0].FoodItems)
	assert.Equal(t, "completed", expenses[0].PostStatus)
	assert.Equal(t, "2021-06-05T20:15:00", expenses[0].Date.Format(model.DateLayout))

	// Missing restaurant name falls back to the placeholder, and the status
	// match is case-insensitive.
	assert.Equal(t, "99", expenses[1].OrderID)
	assert.Equal(t, model.MissingRestaurant, expenses[1].Restaurant)
	assert.InDelta(t, 90.50, expenses[1].Cost, 0.001)
}

// TestPipeline_TwoPageWalkPersistsDeliveredOnly runs the full pipeline against
// a scripted server and a real store: two pages, one delivered and one
// cancelled order, then an empty page.
func TestPipeline_TwoPageWalkPersistsDeliveredOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dapi/cart":
			fmt.Fprint(w, `{"csrfToken":"csrf-1"}`)
		case "/dapi/auth/sms-otp", "/dapi/auth/otp-verify", "/dapi/auth/logout":
			fmt.Fprint(w, `{"statusCode":0}`)
		case "/dapi/order/all":
			switch r.URL.Query().Get("order_id") {
			case "":
				fmt.Fprint(w, `{"statusCode":0,"csrfToken":"csrf-2","data":{"total_orders":2,"orders":[
					{"order_id":201,"order_status":"Delivered","post_status":"completed",
					 "order_total_with_tip":150.0,"order_time":"2021-07-01 19:00:00",
					 "restaurant_name":"Pasta Point","order_items":[{"quantity":"1","name":"Penne Arrabbiata"}]},
					{"order_id":200,"order_status":"Cancelled","post_status":"refunded",
					 "order_total_with_tip":99.0,"order_time":"2021-06-30 18:00:00","order_items":[]}
				]}}`)
			case "200":
				fmt.Fprint(w, `{"statusCode":0,"data":{"orders":[]}}`)
			default:
				t.Errorf("unexpected cursor %q", r.URL.Query().Get("order_id"))
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	prov := newTestProvider(t, srv.URL)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "expenses.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx, Name))

	pipe := &provider.Pipeline{
		Provider: prov,
		Store:    store,
		Trail:    provider.NewTrail(t.TempDir(), Name),
		Sleep:    func(time.Duration) {},
	}
	require.NoError(t, pipe.Run(ctx))

	summary, err := store.Summary(ctx, Name)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Orders, "only the delivered order is persisted")
	assert.InDelta(t, 150.0, summary.Total, 0.001)
}
