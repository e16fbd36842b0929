// Package retry retries transient datasource failures with jittered exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0; 0.1 spreads each delay by +/-10%
	MaxSameErrorType int     // DoIfRetryable gives up after this many consecutive errors of one type; 0 disables

	// OnRetry, when set, is called before each wait with the 1-based attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns the defaults used for scan queries and pool creation:
// 3 retries from 100ms, doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// decision is what the loop does with a failed attempt.
type decision int

const (
	retryAttempt decision = iota
	stopAttempts
)

// run calls fn until it succeeds, classify says stop, retries run out or ctx ends.
func run(ctx context.Context, cfg *Config, fn func() error, classify func(error) (decision, error)) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if classify != nil {
			d, final := classify(err)
			if d == stopAttempts {
				return final
			}
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := applyJitter(delay, cfg.JitterFactor)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

// Do retries fn on any error. It returns nil on success or the last error once
// retries are exhausted, and ctx.Err() if ctx ends while waiting.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	return run(ctx, cfg, fn, nil)
}

// DoWithResult is Do for functions that return a value. The last result is
// returned even on error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// DoIfRetryable retries fn only while its errors are transient. A permanent error
// (bad SQL, missing privileges, failed authentication) is returned immediately,
// and MaxSameErrorType consecutive errors of one type are escalated to permanent.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastType string
	sameCount := 0
	return run(ctx, cfg, fn, func(err error) (decision, error) {
		if !IsRetryable(err) {
			return stopAttempts, err
		}
		errType := classifyErrorType(err)
		if errType == lastType {
			sameCount++
		} else {
			lastType, sameCount = errType, 1
		}
		if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
			return stopAttempts, fmt.Errorf("repeated error (%d times, type=%s): %w", sameCount, errType, err)
		}
		return retryAttempt, nil
	})
}

// DoWithResultIfRetryable is DoIfRetryable for functions that return a value.
func DoWithResultIfRetryable[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	var result T
	err := DoIfRetryable(ctx, cfg, func() error {
		r, err := fn()
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// RetryableError is implemented by errors that decide their own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// PostgreSQL SQLSTATE codes and classes worth retrying.
var (
	retryableSQLStates = map[string]string{
		"40001": "serialization", // serialization_failure
		"40P01": "deadlock",      // deadlock_detected
		"53300": "capacity",      // too_many_connections
		"55P03": "lock",          // lock_not_available
		"57P01": "shutdown",      // admin_shutdown
		"57P02": "shutdown",      // crash_shutdown
		"57P03": "shutdown",      // cannot_connect_now
		"58000": "system",        // system_error
		"58030": "system",        // io_error
	}
	retryableSQLStateClasses = map[string]string{
		"08": "connection", // connection_exception
		"53": "capacity",   // insufficient_resources
	}
)

// SQL Server error numbers worth retrying.
var retryableMSSQLErrors = map[int32]string{
	1205:  "deadlock",   // chosen as deadlock victim
	1222:  "lock",       // lock request timeout
	4060:  "connection", // cannot open database (often during failover)
	10928: "capacity",   // resource limit reached
	10929: "capacity",
	40197: "connection", // service error processing request
	40501: "capacity",   // service busy
	40613: "connection", // database unavailable
	49918: "capacity",
	49919: "capacity",
	49920: "capacity",
}

// retryablePatterns are lower-cased fragments of transient errors that reach us
// without a typed driver error (dial failures, database/sql wrappers).
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"network is unreachable",
	"unexpected eof",
	"server closed the connection",
	"conn closed",
	"bad connection",
	"too many connections",
	"too many clients",
	"deadlock",
	"could not serialize access",
	"the database system is starting up",
	"the database system is shutting down",
	"cannot connect now",
	"transport-level error",
	"was chosen as the deadlock victim",
	"is currently unavailable",
	"resource limit",
}

// IsRetryable reports whether err is transient. Context cancellation and deadlines
// never are; a RetryableError in the chain decides for itself; typed PostgreSQL and
// SQL Server errors are judged by SQLSTATE or error number; anything else is
// matched against known transient messages.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if t, ok := typedErrorType(err); ok {
		return t != ""
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// typedErrorType classifies driver errors that carry a code. ok is false when err
// has no typed driver error; an empty type means the code is permanent.
func typedErrorType(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if t, found := retryableSQLStates[pgErr.Code]; found {
			return t, true
		}
		if len(pgErr.Code) >= 2 {
			return retryableSQLStateClasses[pgErr.Code[:2]], true
		}
		return "", true
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return retryableMSSQLErrors[msErr.Number], true
	}
	return "", false
}

// classifyErrorType groups errors so repeated failures of one kind can be detected.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}
	if t, ok := typedErrorType(err); ok && t != "" {
		return t
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(msg, "deadlock"):
		return "deadlock"
	case strings.Contains(msg, "too many connections") || strings.Contains(msg, "too many clients"):
		return "capacity"
	}
	return "unknown"
}
