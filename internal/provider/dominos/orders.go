package dominos

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adg-dev/khaata/internal/model"
	"github.com/adg-dev/khaata/internal/provider"
)

// orderDateLayout combines the separate orderDate and orderTime fields.
const orderDateLayout = "2006-01-02 15:04:05"

type ordersPage struct {
	Orders []json.RawMessage `json:"orders"`
	Link   *struct {
		Href string `json:"href"`
	} `json:"link"`
}

type order struct {
	OrderID    string      `json:"orderId"`
	OrderState string      `json:"orderState"`
	NetPrice   json.Number `json:"netPrice"`
	Store      struct {
		OrderDate string `json:"orderDate"`
		OrderTime string `json:"orderTime"`
	} `json:"store"`
	Items []struct {
		Quantity json.Number `json:"quantity"`
		Product  struct {
			Name string `json:"name"`
		} `json:"product"`
	} `json:"items"`
}

// First fetches the head of the logged-in user's order history.
func (p *Provider) First(ctx context.Context, ac *provider.Context) (*provider.Page, error) {
	url := fmt.Sprintf("%s/order-service/ve1/orders?userid=%s", p.BaseURL, ac.Headers["userid"])
	return p.fetch(ctx, ac, url, 1)
}

// Next follows the opaque link from the previous page; an absent link means
// the history is exhausted.
func (p *Provider) Next(ctx context.Context, ac *provider.Context, prev *provider.Page) (*provider.Page, error) {
	if prev.Cursor == "" {
		return nil, nil
	}
	return p.fetch(ctx, ac, fmt.Sprintf("%s/%s", p.BaseURL, prev.Cursor), prev.Number+1)
}

func (p *Provider) fetch(ctx context.Context, ac *provider.Context, url string, number int) (*provider.Page, error) {
	reply, err := provider.Do(ctx, ac.Client, http.MethodGet, url, ac.Headers, "")
	if err != nil {
		return nil, err
	}
	if !reply.OK() {
		return nil, fmt.Errorf("order page returned %d: %s", reply.Status, reply.Body)
	}

	var page ordersPage
	if err := reply.Decode(&page); err != nil {
		return nil, err
	}

	out := &provider.Page{Orders: page.Orders, Number: number}
	if page.Link != nil {
		out.Cursor = page.Link.Href
	}
	return out, nil
}

// ParseOrders normalizes raw Dominos orders. Only orders whose state carries
// the success token are kept.
func (p *Provider) ParseOrders(raw []json.RawMessage) ([]model.Expense, int, error) {
	expenses := make([]model.Expense, 0, len(raw))
	skipped := 0
	for _, msg := range raw {
		var o order
		if err := json.Unmarshal(msg, &o); err != nil {
			return nil, 0, fmt.Errorf("failed to decode order: %w", err)
		}

		if !strings.Contains(strings.ToLower(o.OrderState), "success") {
			slog.Info("Skipping order", "provider", Name, "order_id", o.OrderID, "state", o.OrderState)
			skipped++
			continue
		}

		cost, err := o.NetPrice.Float64()
		if err != nil {
			return nil, 0, fmt.Errorf("order %s: invalid net price %q: %w", o.OrderID, o.NetPrice.String(), err)
		}
		date, err := time.Parse(orderDateLayout, o.Store.OrderDate+" "+o.Store.OrderTime)
		if err != nil {
			return nil, 0, fmt.Errorf("order %s: %w", o.OrderID, err)
		}

		items := make([]model.Item, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, model.Item{Quantity: it.Quantity.String(), Name: it.Product.Name})
		}

		expenses = append(expenses, model.Expense{
			OrderID:   o.OrderID,
			Cost:      cost,
			Date:      date,
			FoodItems: model.FormatItems(items),
		})
	}
	return expenses, skipped, nil
}
