package zomato

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adg-dev/khaata/internal/model"
	"github.com/adg-dev/khaata/internal/provider"
)

// orderDateLayout matches Zomato's human-facing timestamps, for example
// "March 14, 2021 at 7:30 PM".
const orderDateLayout = "January 2, 2006 at 3:04 PM"

type historyPage struct {
	Sections struct {
		OrderHistory struct {
			TotalPages json.Number `json:"totalPages"`
		} `json:"SECTION_USER_ORDER_HISTORY"`
	} `json:"sections"`
	Entities struct {
		// Orders arrive keyed by order id, not as an array.
		Order map[string]json.RawMessage `json:"ORDER"`
	} `json:"entities"`
}

type order struct {
	OrderID         json.Number `json:"orderId"`
	TotalCost       string      `json:"totalCost"`
	OrderDate       string      `json:"orderDate"`
	DishString      string      `json:"dishString"`
	DeliveryDetails struct {
		DeliveryLabel string `json:"deliveryLabel"`
	} `json:"deliveryDetails"`
	ResInfo struct {
		Name string `json:"name"`
	} `json:"resInfo"`
}

// First fetches page 1 and learns the total page count from it.
func (p *Provider) First(ctx context.Context, ac *provider.Context) (*provider.Page, error) {
	page, err := p.FetchPage(ctx, ac, 1)
	if err != nil {
		return nil, err
	}
	slog.Info("Total pages to parse", "provider", Name, "pages", p.totalPages)
	return page, nil
}

// Next steps to the following page number; pages past the total end the walk.
func (p *Provider) Next(ctx context.Context, ac *provider.Context, prev *provider.Page) (*provider.Page, error) {
	if prev.Number >= p.totalPages {
		return nil, nil
	}
	return p.FetchPage(ctx, ac, prev.Number+1)
}

// TotalPages reports the page count learned from the first page.
func (p *Provider) TotalPages() int { return p.totalPages }

// FetchPage fetches one directly addressed history page.
func (p *Provider) FetchPage(ctx context.Context, ac *provider.Context, number int) (*provider.Page, error) {
	url := fmt.Sprintf("%s/webroutes/user/orders?page=%d", p.BaseURL, number)
	reply, err := provider.Do(ctx, ac.Client, http.MethodGet, url, ac.Headers, "")
	if err != nil {
		return nil, err
	}
	if !reply.OK() {
		return nil, fmt.Errorf("order page returned %d: %s", reply.Status, reply.Body)
	}

	var page historyPage
	if err := reply.Decode(&page); err != nil {
		return nil, err
	}
	if number == 1 {
		total, err := page.Sections.OrderHistory.TotalPages.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid total page count %q: %w", page.Sections.OrderHistory.TotalPages.String(), err)
		}
		p.totalPages = int(total)
	}

	orders := make([]json.RawMessage, 0, len(page.Entities.Order))
	for _, raw := range page.Entities.Order {
		orders = append(orders, raw)
	}
	return &provider.Page{Orders: orders, Number: number}, nil
}

// ParseCost normalizes Zomato's display cost, stripping the currency glyph
// and thousands separators: "₹1,234.50" becomes 1234.50.
func ParseCost(cost string) (float64, error) {
	cleaned := strings.ReplaceAll(cost, "₹", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	value, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cost %q: %w", cost, err)
	}
	return value, nil
}

// ParseOrders normalizes raw Zomato orders. Only delivered orders are kept.
func (p *Provider) ParseOrders(raw []json.RawMessage) ([]model.Expense, int, error) {
	expenses := make([]model.Expense, 0, len(raw))
	skipped := 0
	for _, msg := range raw {
		var o order
		if err := json.Unmarshal(msg, &o); err != nil {
			return nil, 0, fmt.Errorf("failed to decode order: %w", err)
		}

		if !strings.Contains(strings.ToLower(o.DeliveryDetails.DeliveryLabel), "delivered") {
			slog.Info("Skipping order",
				"provider", Name,
				"order_id", o.OrderID.String(),
				"status", o.DeliveryDetails.DeliveryLabel)
			skipped++
			continue
		}

		cost, err := ParseCost(o.TotalCost)
		if err != nil {
			return nil, 0, fmt.Errorf("order %s: %w", o.OrderID.String(), err)
		}
		date, err := time.Parse(orderDateLayout, o.OrderDate)
		if err != nil {
			return nil, 0, fmt.Errorf("order %s: %w", o.OrderID.String(), err)
		}

		expenses = append(expenses, model.Expense{
			OrderID:    o.OrderID.String(),
			Cost:       cost,
			Date:       date,
			Restaurant: o.ResInfo.Name,
			FoodItems:  o.DishString,
		})
	}
	return expenses, skipped, nil
}
