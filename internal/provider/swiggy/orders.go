package swiggy

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

const orderTimeLayout = "2006-01-02 15:04:05"

type ordersEnvelope struct {
	Data struct {
		TotalOrders json.Number       `json:"total_orders"`
		Orders      []json.RawMessage `json:"orders"`
	} `json:"data"`
}

type order struct {
	OrderID      json.Number `json:"order_id"`
	OrderStatus  string      `json:"order_status"`
	PostStatus   string      `json:"post_status"`
	TotalWithTip json.Number `json:"order_total_with_tip"`
	OrderTime    string      `json:"order_time"`
	Restaurant   string      `json:"restaurant_name"`
	Items        []struct {
		Quantity string `json:"quantity"`
		Name     string `json:"name"`
	} `json:"order_items"`
}

// First fetches the newest slice of the order history and logs the total the
// server claims to hold.
func (p *Provider) First(ctx context.Context, ac *provider.Context) (*provider.Page, error) {
	page, env, err := p.fetch(ctx, ac, "", 1)
	if err != nil {
		return nil, err
	}
	slog.Info("Total orders", "provider", Name, "total", env.Data.TotalOrders.String())
	return page, nil
}

// Next fetches the slice after the last seen order id; an empty previous page
// means the history is exhausted.
func (p *Provider) Next(ctx context.Context, ac *provider.Context, prev *provider.Page) (*provider.Page, error) {
	if prev.Cursor == "" {
		return nil, nil
	}
	page, _, err := p.fetch(ctx, ac, prev.Cursor, prev.Number+1)
	return page, err
}

func (p *Provider) fetch(ctx context.Context, ac *provider.Context, lastID string, number int) (*provider.Page, *ordersEnvelope, error) {
	url := fmt.Sprintf("%s/dapi/order/all?order_id=%s", p.BaseURL, lastID)
	reply, err := provider.Do(ctx, ac.Client, http.MethodGet, url, ac.Headers, "")
	if err != nil {
		return nil, nil, err
	}
	if !reply.OK() {
		return nil, nil, fmt.Errorf("order page returned %d: %s", reply.Status, reply.Body)
	}

	var env ordersEnvelope
	if err := reply.Decode(&env); err != nil {
		return nil, nil, err
	}

	page := &provider.Page{Orders: env.Data.Orders, Number: number}
	if len(env.Data.Orders) > 0 {
		var last struct {
			OrderID json.Number `json:"order_id"`
		}
		if err := json.Unmarshal(env.Data.Orders[len(env.Data.Orders)-1], &last); err != nil {
			return nil, nil, fmt.Errorf("failed to read last order id: %w", err)
		}
		page.Cursor = last.OrderID.String()
	}
	return page, &env, nil
}

// ParseOrders normalizes raw Swiggy orders. Only delivered orders are kept.
func (p *Provider) ParseOrders(raw []json.RawMessage) ([]model.Expense, int, error) {
	expenses := make([]model.Expense, 0, len(raw))
	skipped := 0
	for _, msg := range raw {
		var o order
		if err := json.Unmarshal(msg, &o); err != nil {
			return nil, 0, fmt.Errorf("failed to decode order: %w", err)
		}

		if !strings.Contains(strings.ToLower(o.OrderStatus), "delivered") {
			slog.Info("Skipping order",
				"provider", Name,
				"order_id", o.OrderID.String(),
				"order_status", o.OrderStatus,
				"post_status", o.PostStatus)
			skipped++
			continue
		}

		cost, err := o.TotalWithTip.Float64()
		if err != nil {
			return nil, 0, fmt.Errorf("order %s: invalid total %q: %w", o.OrderID.String(), o.TotalWithTip.String(), err)
		}
		date, err := time.Parse(orderTimeLayout, o.OrderTime)
		if err != nil {
			return nil, 0, fmt.Errorf("order %s: %w", o.OrderID.String(), err)
		}

		restaurant := o.Restaurant
		if restaurant == "" {
			restaurant = model.MissingRestaurant
		}
		items := make([]model.Item, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, model.Item{Quantity: it.Quantity, Name: it.Name})
		}

		expenses = append(expenses, model.Expense{
			OrderID:    o.OrderID.String(),
			Cost:       cost,
			Date:       date,
			Restaurant: restaurant,
			FoodItems:  model.FormatItems(items),
			PostStatus: o.PostStatus,
		})
	}
	return expenses, skipped, nil
}
