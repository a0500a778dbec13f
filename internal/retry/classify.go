package retry

import (
	"errors"
	"strconv"
	"strings"
)

// OpError is the normalized shape of an external operational failure.
// Collaborator clients produce it at the boundary where their errors enter
// the engine, so classification inspects one closed type instead of many
// ad-hoc shapes.
type OpError struct {
	Code    string // machine-readable code, e.g. "ECONNRESET"
	Status  int    // numeric status (HTTP or protocol), 0 when absent
	Name    string // error class name, e.g. "TimeoutError"
	Message string
}

func (e *OpError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "operation failed"
}

// Classify decides whether err should be retried. Non-retryable patterns are
// checked first and take precedence; retryable patterns are checked next;
// with no lists configured errors are retryable unless proven otherwise.
func Classify(err error, retryable, nonRetryable []string) bool {
	if err == nil {
		return false
	}
	for _, p := range nonRetryable {
		if matches(err, p) {
			return false
		}
	}
	if len(retryable) > 0 {
		for _, p := range retryable {
			if matches(err, p) {
				return true
			}
		}
		return false
	}
	return true
}

// matches tests a single pattern against the error's normalized fields:
// exact (case-insensitive) code, numeric status, or name, or a substring of
// the message.
func matches(err error, pattern string) bool {
	if pattern == "" {
		return false
	}
	p := strings.ToLower(pattern)

	var oe *OpError
	if errors.As(err, &oe) {
		if strings.ToLower(oe.Code) == p {
			return true
		}
		if oe.Status != 0 && strconv.Itoa(oe.Status) == p {
			return true
		}
		if strings.ToLower(oe.Name) == p {
			return true
		}
		if strings.Contains(strings.ToLower(oe.Message), p) {
			return true
		}
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), p)
}
