package testing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// SkipIfShort skips container-backed tests under -short
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// AssertEventually asserts that a condition becomes true within a timeout
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within timeout: %s", message)
			return
		}
	}
}

// AssertDecimalEqual compares decimals by value, so "3" equals "3.0000"
func AssertDecimalEqual(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) bool {
	t.Helper()
	want := decimal.RequireFromString(expected)
	if want.Equal(actual) {
		return true
	}
	return assert.Fail(t, "decimals differ: expected "+want.String()+", got "+actual.String(), msgAndArgs...)
}
