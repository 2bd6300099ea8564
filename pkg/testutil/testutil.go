// Package testutil provides testing utilities for GridKit
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/gridkit/gridkit/pkg/models"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// Records builds a record slice from row maps, keyed by the given field.
// The key field's string form becomes the record key.
func Records(keyField string, rows ...map[string]interface{}) []*models.Record {
	out := make([]*models.Record, 0, len(rows))
	for i, data := range rows {
		key := models.Infer(data[keyField]).AsString()
		if key == "" {
			out = append(out, models.NewRecordAt(i, data))
			continue
		}
		out = append(out, models.NewRecord(key, data))
	}
	return out
}

// RowIDs projects the ids of a row sequence, for order assertions.
func RowIDs(rows []*models.Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}
