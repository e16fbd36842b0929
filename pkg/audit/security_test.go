package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-discover/pkg/middleware"
)

func newObservedAuditor() (*SecurityAuditor, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewSecurityAuditor(zap.New(core)), logs
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) map[string]any {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestLogInjectionAttempt(t *testing.T) {
	auditor, logs := newObservedAuditor()
	ctx := middleware.WithRequestID(context.Background(), "req-1")

	auditor.LogInjectionAttempt(ctx, InjectionDetails{
		Literal:     "1' OR '1'='1",
		Fingerprint: "s&sos",
		Template:    "SELECT * FROM t WHERE c = '1'' OR ''1''=''1'",
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "security_audit", entry.LoggerName)
	assert.Equal(t, "s&sos", entry.ContextMap()["fingerprint"])

	event := decodeEvent(t, entry)
	assert.Equal(t, string(EventSQLInjectionAttempt), event["event_type"])
	assert.Equal(t, "critical", event["severity"])
	assert.Equal(t, "req-1", event["request_id"])
	details := event["details"].(map[string]any)
	assert.Equal(t, "1' OR '1'='1", details["literal"])
}

func TestLogInjectionAttempt_TruncatesTemplate(t *testing.T) {
	auditor, logs := newObservedAuditor()

	auditor.LogInjectionAttempt(context.Background(), InjectionDetails{
		Template: "SELECT " + strings.Repeat("x, ", 200) + "y FROM t",
	})

	event := decodeEvent(t, logs.All()[0])
	details := event["details"].(map[string]any)
	assert.True(t, strings.HasSuffix(details["template"].(string), "..."))
	_, hasRequestID := event["request_id"]
	assert.False(t, hasRequestID)
}

func TestLogTemplateRejected(t *testing.T) {
	auditor, logs := newObservedAuditor()

	auditor.LogTemplateRejected(context.Background(), "SELECT [nope", errors.New("unterminated placeholder"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "unterminated placeholder", entry.ContextMap()["error"])

	event := decodeEvent(t, entry)
	assert.Equal(t, string(EventTemplateRejected), event["event_type"])
	assert.Equal(t, "warning", event["severity"])
}

func TestLogMsqlExecution(t *testing.T) {
	auditor, logs := newObservedAuditor()

	auditor.LogMsqlExecution(context.Background(), MsqlExecutionDetails{
		Template:   "SELECT [email] FROM [table]",
		Statements: 3,
		Rows:       12,
		Failures:   1,
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, int64(3), entry.ContextMap()["statements"])
	assert.Equal(t, false, entry.ContextMap()["dry_run"])

	event := decodeEvent(t, entry)
	details := event["details"].(map[string]any)
	assert.Equal(t, float64(12), details["rows"])
	assert.Equal(t, float64(1), details["failures"])
}
