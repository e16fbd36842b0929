package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Equal(t, 5, cfg.MaxSameErrorType)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	calls := 0
	want := errors.New("permission denied for table orders")
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return want
	})
	assert.Same(t, want, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	calls := 0
	err := Do(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("connection reset by peer")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("i/o timeout")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestDoWithResult_NilConfig(t *testing.T) {
	got, err := DoWithResult(context.Background(), nil, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

type explicitError struct{ retry bool }

func (e explicitError) Error() string     { return "explicit" }
func (e explicitError) IsRetryable() bool { return e.retry }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp 10.0.0.5:5432: connect: Connection Refused"), true},
		{"pg shutting down", errors.New("FATAL: the database system is shutting down (SQLSTATE 57P03)"), true},
		{"pg serialization", errors.New("ERROR: could not serialize access due to concurrent update"), true},
		{"pg too many clients", errors.New("FATAL: sorry, too many clients already"), true},
		{"pgx conn closed", errors.New("conn closed"), true},
		{"mssql transport", errors.New("mssql: A transport-level error has occurred when receiving results"), true},
		{"mssql deadlock victim", errors.New("Transaction (Process ID 52) was chosen as the deadlock victim"), true},
		{"driver bad connection", errors.New("driver: bad connection"), true},
		{"context deadline", fmt.Errorf("scan customers: %w", context.DeadlineExceeded), false},
		{"context canceled", context.Canceled, false},
		{"auth error", errors.New("password authentication failed for user \"scanner\""), false},
		{"syntax error", errors.New("ERROR: syntax error at or near \"FROM\""), false},
		{"undefined function", errors.New("ERROR: function regexp_like(text, text) does not exist"), false},
		{"explicit retryable", fmt.Errorf("wrapped: %w", explicitError{retry: true}), true},
		{"explicit permanent", explicitError{retry: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestDoIfRetryable_NonRetryableError(t *testing.T) {
	want := errors.New("permission denied for schema finance")
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		return want
	})
	assert.Same(t, want, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 3

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return errors.New("deadlock detected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated error (3 times, type=deadlock)")
	assert.Equal(t, 3, calls)
}

func TestDoIfRetryable_StopsAtDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	err := DoIfRetryable(ctx, fastConfig(5), func() error {
		calls++
		<-ctx.Done()
		return fmt.Errorf("query: %w", ctx.Err())
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestDoWithResultIfRetryable(t *testing.T) {
	calls := 0
	got, err := DoWithResultIfRetryable(context.Background(), fastConfig(3), func() ([]string, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("unexpected EOF")
		}
		return []string{"row"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"row"}, got)
	assert.Equal(t, 2, calls)

	_, err = DoWithResultIfRetryable(context.Background(), fastConfig(3), func() (int, error) {
		return 0, errors.New("relation \"missing\" does not exist")
	})
	assert.Error(t, err)
}

func TestIsRetryable_TypedDriverErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"pg serialization failure", &pgconn.PgError{Code: "40001", Message: "could not serialize access"}, true},
		{"pg deadlock", fmt.Errorf("scan: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"pg connection class", &pgconn.PgError{Code: "08006"}, true},
		{"pg insufficient resources class", &pgconn.PgError{Code: "53200"}, true},
		{"pg insufficient privilege", &pgconn.PgError{Code: "42501", Message: "permission denied for table orders"}, false},
		{"pg undefined function", &pgconn.PgError{Code: "42883", Message: "connection timeout in message text"}, false},
		{"mssql deadlock victim", mssql.Error{Number: 1205}, true},
		{"mssql database unavailable", fmt.Errorf("query: %w", mssql.Error{Number: 40613}), true},
		{"mssql invalid object", mssql.Error{Number: 208, Message: "Invalid object name 'orders'"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestClassifyErrorType(t *testing.T) {
	assert.Equal(t, "nil", classifyErrorType(nil))
	assert.Equal(t, "deadlock", classifyErrorType(&pgconn.PgError{Code: "40P01"}))
	assert.Equal(t, "capacity", classifyErrorType(mssql.Error{Number: 40501}))
	assert.Equal(t, "connection", classifyErrorType(errors.New("dial tcp: connection refused")))
	assert.Equal(t, "unknown", classifyErrorType(errors.New("something else")))
}

func TestDo_OnRetryHook(t *testing.T) {
	cfg := fastConfig(2)
	var attempts []int
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
		assert.Positive(t, delay)
	}

	err := Do(context.Background(), cfg, func() error { return errors.New("conn closed") })
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}
