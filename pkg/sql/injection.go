package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a string literal flagged by libinjection.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Literal     string // The literal that failed the check
}

func (r *InjectionCheckResult) Error() string {
	return fmt.Sprintf("string literal %q looks like SQL injection (fingerprint %s)", r.Literal, r.Fingerprint)
}

// CheckLiteralForInjection runs libinjection over one string literal.
// Returns nil if the literal is clean.
func CheckLiteralForInjection(literal string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(literal)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Literal:     literal,
	}
}

// CheckLiteralsForInjection checks every single-quoted literal in sqlText and returns
// the first one flagged, or nil.
func CheckLiteralsForInjection(sqlText string) *InjectionCheckResult {
	for _, lit := range stringLiterals(sqlText) {
		if res := CheckLiteralForInjection(lit); res != nil {
			return res
		}
	}
	return nil
}
