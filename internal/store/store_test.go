package store

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The terminal-transition rules live in the SQL predicates themselves, so the
// statements are pinned here: a changed guard is a changed state machine.
func TestTerminalTransitionGuards(t *testing.T) {
	t.Run("mark delivered never resurrects a failed row", func(t *testing.T) {
		assert.Contains(t, queryMarkDelivered, "status <> $4")
		assert.Contains(t, queryMarkDelivered, "GREATEST(attempt_count, $2)")
	})

	t.Run("mark failed only settles a pending row", func(t *testing.T) {
		assert.Contains(t, queryMarkFailed, "status = $5")
		assert.Contains(t, queryMarkFailed, "GREATEST(attempt_count, $2)")
	})

	t.Run("attempt progress never touches a settled row", func(t *testing.T) {
		assert.Contains(t, queryRecordAttempt, "status = $3")
		assert.Contains(t, queryRecordAttempt, "GREATEST(attempt_count, $1)")
		assert.NotContains(t, queryRecordAttempt, "SET status")
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: pqUniqueViolation}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}

func TestDelivery_IsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{status: StatusPending, want: false},
		{status: StatusDelivered, want: true},
		{status: StatusFailed, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			d := Delivery{Status: tt.status}
			assert.Equal(t, tt.want, d.IsTerminal())
		})
	}
}

func TestPayload_CanonicalDeterministic(t *testing.T) {
	p := Payload{
		MerchantID:    "m1",
		Amount:        1500,
		Currency:      "USD",
		TransactionID: "t1",
	}

	first, err := p.Canonical()
	require.NoError(t, err)
	second, err := p.Canonical()
	require.NoError(t, err)

	assert.Equal(t, first, second, "the same event must always sign identically")
	assert.JSONEq(t, `{"merchant_id":"m1","amount":1500,"currency":"USD","transaction_id":"t1"}`, string(first))
}
