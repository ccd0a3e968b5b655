package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// TransientError marks a failure worth retrying: rate limits, server
// errors, timeouts, overload responses.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient API error (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient API error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that ends the run immediately: bad
// credentials, exhausted cost budget.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
	}
	return "fatal: " + e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

// ParseError marks a model response that could not be interpreted. It
// is recoverable by re-asking with a correction.
type ParseError struct {
	Detail string
	Raw    string
}

func (e *ParseError) Error() string {
	return "unparseable model response: " + e.Detail
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// statusCode extracts the HTTP status from a provider SDK error.
func statusCode(err error) (int, bool) {
	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return anthErr.StatusCode, true
	}
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode, true
	}
	return 0, false
}

// wrapAPIError classifies a raw SDK error into the loop's taxonomy.
// Rate limits, timeouts, and server errors become TransientError; auth
// failures become FatalError; everything else is wrapped with context.
func wrapAPIError(context string, err error) error {
	status, ok := statusCode(err)
	if !ok {
		// Network-level failures have no HTTP status but are retryable.
		return &TransientError{Err: fmt.Errorf("%s: %w", context, err)}
	}
	switch {
	case status == 401 || status == 403:
		return &FatalError{Reason: "authentication failed", Err: fmt.Errorf("%s: HTTP %d: %w", context, status, err)}
	case status == 408 || status == 429 || status == 529 || status >= 500:
		return &TransientError{Status: status, Err: fmt.Errorf("%s: %w", context, err)}
	default:
		return fmt.Errorf("%s: HTTP %d: %w", context, status, err)
	}
}

// IsContextOverflow checks if an error indicates that the request
// exceeded the model's context window. It looks for HTTP 400/413 status
// codes combined with known error message patterns from various
// providers.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	status, ok := statusCode(err)
	if !ok || (status != 400 && status != 413) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context window") ||
		strings.Contains(msg, "too many tokens") ||
		strings.Contains(msg, "token limit") ||
		strings.Contains(msg, "prompt is too long") ||
		strings.Contains(msg, "maximum prompt length") ||
		strings.Contains(msg, "reduce the length") ||
		strings.Contains(msg, "input token count") ||
		(strings.Contains(msg, "maximum") && strings.Contains(msg, "token"))
}
