// Package audit logs security-relevant events in a structured form that log
// pipelines can filter on the "security_audit" logger name.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
	"github.com/ekaya-inc/ekaya-discover/pkg/middleware"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a literal in an msql template.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventTemplateRejected is logged when an msql template fails validation for another reason.
	EventTemplateRejected SecurityEventType = "template_rejected"
	// EventMsqlExecution is logged for every executed (or dry-run) msql template.
	EventMsqlExecution SecurityEventType = "msql_execution"
)

// SecurityEvent is the JSON document attached to every audit entry.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a flagged msql template.
type InjectionDetails struct {
	Literal     string `json:"literal"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
	Template    string `json:"template"`
}

// MsqlExecutionDetails summarizes one msql call.
type MsqlExecutionDetails struct {
	Template   string `json:"template"`
	Statements int    `json:"statements"`
	Rows       int    `json:"rows"`
	Failures   int    `json:"failures"`
	DryRun     bool   `json:"dry_run"`
}

// SecurityAuditor logs security events.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a security auditor logging under "security_audit".
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a template rejected by the injection check.
// Logged at ERROR with "critical" severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details InjectionDetails) {
	details.Template = logging.SanitizeQuery(details.Template)
	details.Literal = logging.TruncateString(details.Literal, logging.MaxQueryLogLength)
	event := a.event(ctx, EventSQLInjectionAttempt, details, "critical")

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", event),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"))
}

// LogTemplateRejected records a template that failed validation.
// These are usually user errors, so they are logged at WARN.
func (a *SecurityAuditor) LogTemplateRejected(ctx context.Context, template string, reason error) {
	event := a.event(ctx, EventTemplateRejected, map[string]string{
		"template": logging.SanitizeQuery(template),
		"error":    logging.SanitizeError(reason),
	}, "warning")

	a.logger.Warn("msql template rejected",
		zap.String("event_json", event),
		zap.String("error", logging.SanitizeError(reason)),
		zap.String("severity", "warning"))
}

// LogMsqlExecution records an msql call that passed validation.
func (a *SecurityAuditor) LogMsqlExecution(ctx context.Context, details MsqlExecutionDetails) {
	details.Template = logging.SanitizeQuery(details.Template)
	event := a.event(ctx, EventMsqlExecution, details, "info")

	a.logger.Info("msql executed",
		zap.String("event_json", event),
		zap.Int("statements", details.Statements),
		zap.Int("rows", details.Rows),
		zap.Bool("dry_run", details.DryRun),
		zap.String("severity", "info"))
}

func (a *SecurityAuditor) event(ctx context.Context, eventType SecurityEventType, details any, severity string) string {
	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: middleware.RequestIDFromContext(ctx),
		Details:   details,
		Severity:  severity,
	})
	return string(eventJSON)
}
