package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateRule     = errors.New("duplicate rule")
	ErrRuleNotFound      = errors.New("rule not found")
	ErrInvalidThreshold  = errors.New("invalid classification threshold")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrNoScanResult      = errors.New("no scan result available")
	ErrUnknownDatasource = errors.New("unknown datasource")
)

// ConfigurationError is returned before any scanning starts when an option is invalid.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err as a configuration error for field.
func NewConfigurationError(field string, err error) error {
	return &ConfigurationError{Field: field, Err: err}
}

// CatalogAccessError marks a catalog object that could not be read (permission denied,
// dropped between listing and describing, ...). Enumeration skips the object.
type CatalogAccessError struct {
	Object string
	Err    error
}

func (e *CatalogAccessError) Error() string {
	return fmt.Sprintf("cannot access %s: %v", e.Object, e.Err)
}

func (e *CatalogAccessError) Unwrap() error { return e.Err }

// CompilationError marks a table whose scan query could not be built.
type CompilationError struct {
	Table string
	Err   error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compile scan for %s: %v", e.Table, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// ExecutionError marks a table whose scan query failed in the execution engine,
// including timeouts and malformed result rows.
type ExecutionError struct {
	Table string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute scan for %s: %v", e.Table, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsCatalogAccessError reports whether err is (or wraps) a CatalogAccessError.
func IsCatalogAccessError(err error) bool {
	var target *CatalogAccessError
	return errors.As(err, &target)
}
