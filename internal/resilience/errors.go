// Package resilience carries the pipeline's error taxonomy and retry
// machinery. Validation and policy errors are fatal and never retried;
// transient storage errors are retried up to a configured bound; integrity
// errors halt further writes and always surface.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ValidationError marks a single batch item as malformed. Fatal per item,
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a per-item validation failure.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransientStorageError wraps a storage failure that is safe to retry
// (connectivity, lock contention, pool exhaustion).
type TransientStorageError struct {
	Err error
}

func (e *TransientStorageError) Error() string { return e.Err.Error() }
func (e *TransientStorageError) Unwrap() error { return e.Err }

// NewTransient wraps err as retriable.
func NewTransient(err error) *TransientStorageError {
	return &TransientStorageError{Err: err}
}

// PolicyViolation marks a workflow-rule breach, e.g. a separation-of-duties
// failure. Rejected outright, never silently corrected.
type PolicyViolation struct {
	Rule   string
	Detail string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Detail)
}

// IsPolicyViolation reports whether err is (or wraps) a PolicyViolation.
func IsPolicyViolation(err error) bool {
	var pv *PolicyViolation
	return errors.As(err, &pv)
}

// IntegrityError marks ledger tampering detected at read time. Fatal; the
// affected ledger halts further writes pending operator intervention.
type IntegrityError struct {
	EntryID string
	Detail  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity failure on entry %s: %s", e.EntryID, e.Detail)
}

// IsIntegrity reports whether err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// IsTransient reports whether the error (or any error in its chain) is an
// explicit TransientStorageError, or matches common transient storage and
// network failure patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientStorageError
	if errors.As(err, &te) {
		return true
	}

	// Validation and policy failures are fatal whatever they wrap.
	if IsValidation(err) || IsPolicyViolation(err) || IsIntegrity(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// String heuristics for wrapped driver errors.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"connection refused",
		"conn closed",
		"conn busy",
		"database is locked",      // sqlite contention
		"sqlite_busy",
		"too many clients",        // pg pool exhaustion
		"the database system is starting up",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
