// Package logging builds the zap logger and scrubs credentials from anything
// that may reach it: DSNs, driver errors and SQL text.
package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Key/value secrets in libpq DSNs, go-mssqldb query strings and driver errors:
	// password=xxx, pwd=xxx, pass=xxx, client_secret=xxx (until next delimiter).
	// URL-encoded keys ("client+secret") are included.
	secretPattern = regexp.MustCompile(`(?i)(password|pwd|pass|client[_ +-]?secret|access[_ +-]?token)=[^;&\s]+`)

	// user:pass@host in postgresql:// and sqlserver:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s/?]+@[^/\s?]+`)
)

func redact(s string) string {
	s = secretPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeConnectionString removes sensitive data from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return redact(connStr)
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error from datasource operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error())
}

// SanitizeQuery truncates and sanitizes a SQL query for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return redact(TruncateString(query, MaxQueryLogLength))
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
