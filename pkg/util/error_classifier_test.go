package util

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	var typeErr error
	if err := json.Unmarshal([]byte(`{"n":"x"}`), &struct {
		N int `json:"n"`
	}{}); err != nil {
		typeErr = err
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json type error", typeErr, false, "json_decode_error"},
		{"no rows", pgx.ErrNoRows, false, "user_not_found"},
		{"duplicate key", errors.New("duplicate key value violates unique constraint"), false, "duplicate_key"},
		{"connection refused", errors.New("dial tcp: connection refused"), true, "db_connection_error"},
		{"timeout string", errors.New("i/o timeout waiting for reply"), true, "db_connection_error"},
		{"deadline exceeded", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", errors.New("something odd"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.errType, errType)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(1, 5, false))
	assert.True(t, ShouldRetry(1, 5, true))
	assert.True(t, ShouldRetry(5, 5, true))
	assert.False(t, ShouldRetry(6, 5, true))
}

func TestFormatRetryKey(t *testing.T) {
	assert.Equal(t, "retry:cdc_event:42", FormatRetryKey("cdc_event", 42))
}
