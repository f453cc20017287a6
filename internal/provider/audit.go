package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Trail accumulates every raw order payload observed during a run, including
// orders the status filter later drops, and writes them to a JSON artifact
// when the run completes.
type Trail struct {
	path   string
	orders []json.RawMessage
}

// NewTrail creates an audit trail writing to <dir>/<provider>_orders.json.
func NewTrail(dir, provider string) *Trail {
	return &Trail{
		path:   filepath.Join(dir, provider+"_orders.json"),
		orders: make([]json.RawMessage, 0),
	}
}

// Append records raw order payloads in observed order.
func (t *Trail) Append(orders ...json.RawMessage) {
	t.orders = append(t.orders, orders...)
}

// Len returns the number of recorded payloads.
func (t *Trail) Len() int {
	return len(t.orders)
}

// Path returns the artifact location.
func (t *Trail) Path() string {
	return t.path
}

// Flush writes the accumulated payloads. Callers log failures and move on;
// the audit artifact never fails a run.
func (t *Trail) Flush() error {
	data, err := json.Marshal(t.orders)
	if err != nil {
		return fmt.Errorf("failed to marshal audit trail: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write audit trail: %w", err)
	}
	return nil
}
