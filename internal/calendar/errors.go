package calendar

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ReauthURL sends the user back through consent to grant calendar access again.
const ReauthURL = "/user/google/login?force=1"

const (
	CodeScopeMissing      = "calendar_scope_missing"
	CodeRefreshFailed     = "calendar_refresh_failed"
	CodeReauthRequired    = "google_reauth_required"
	CodeRateLimited       = "rate_limited"
	CodeInsufficientScope = "insufficient_scope"
)

// AuthError is a recoverable outcome the client can act on, usually by
// following ReauthURL.
type AuthError struct {
	Code   string
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return "calendar: " + e.Code + ": " + e.Err.Error()
	}
	return "calendar: " + e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// Reauth reports whether the client should be pointed at ReauthURL.
func (e *AuthError) Reauth() bool {
	return e.Code != CodeRateLimited
}

func scopeMissing(err error) *AuthError {
	return &AuthError{Code: CodeScopeMissing, Status: http.StatusBadRequest, Err: err}
}

// ProviderError is any other failure talking to Google. Callers surface it
// as an opaque upstream error.
type ProviderError struct {
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("calendar provider: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("calendar provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type apiError struct {
	Error json.RawMessage `json:"error"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"errors"`
}

// errorTokens collects the normalised message and reason strings of a
// Google API error body.
func errorTokens(body []byte) map[string]bool {
	tokens := make(map[string]bool)
	add := func(s string) {
		s = strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(s))
		if s != "" {
			tokens[s] = true
		}
	}

	var env apiError
	if json.Unmarshal(body, &env) != nil || len(env.Error) == 0 {
		return tokens
	}
	var plain string
	if json.Unmarshal(env.Error, &plain) == nil {
		add(plain)
		return tokens
	}
	var detail apiErrorBody
	if json.Unmarshal(env.Error, &detail) == nil {
		add(detail.Message)
		for _, e := range detail.Errors {
			add(e.Reason)
			add(e.Message)
		}
	}
	return tokens
}

func hasAny(tokens map[string]bool, want ...string) bool {
	for _, w := range want {
		if tokens[w] {
			return true
		}
	}
	return false
}

// classify maps a failed events response onto an AuthError or ProviderError.
func classify(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return &AuthError{Code: CodeReauthRequired, Status: http.StatusUnauthorized}
	case http.StatusTooManyRequests:
		return &AuthError{Code: CodeRateLimited, Status: http.StatusTooManyRequests}
	}

	tokens := errorTokens(body)
	if hasAny(tokens, "calendaraccessdenied", "calendar_access_denied", "accessnotconfigured") {
		return scopeMissing(nil)
	}
	if status == http.StatusForbidden || hasAny(tokens, "insufficientpermissions", "insufficient_scope") {
		return &AuthError{Code: CodeInsufficientScope, Status: http.StatusForbidden}
	}
	return &ProviderError{Status: status, Err: fmt.Errorf("unexpected response")}
}
