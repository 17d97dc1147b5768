package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BradenHooton/tradeguard/internal/models"
)

var (
	// ErrConfigMissing is fatal at startup
	ErrConfigMissing = models.ErrBrokerConfigMissing

	ErrAuthExhausted         = errors.New("broker rejected every signing method")
	ErrInvalidClientID       = errors.New("broker rejected the client id")
	ErrSignatureVerification = errors.New("broker could not verify the request signature")
	ErrUnavailable           = errors.New("broker is unavailable")
)

// AuthError is a failed broker call. Message is the upstream detail and is
// meant for logs, not for end users; see UserMessage.
type AuthError struct {
	Status  int
	Code    string
	Message string
	Method  SigningMethod

	exhausted bool
	cause     error // ErrInvalidClientID, ErrSignatureVerification or nil
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("broker request failed with status %d via %s", e.Status, e.Method)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *AuthError) Unwrap() []error {
	var errs []error
	if e.exhausted {
		errs = append(errs, ErrAuthExhausted)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	if e.Status == http.StatusTooManyRequests || e.Status >= 500 {
		errs = append(errs, ErrUnavailable)
	}
	return errs
}

// upstreamError is the broker's error document
type upstreamError struct {
	Detail     string `json:"detail"`
	Message    string `json:"message"`
	Code       any    `json:"code"`
	StatusCode int    `json:"status_code"`
}

// newAuthError builds an AuthError from the final response of a chain
func newAuthError(status int, body []byte, method SigningMethod, exhausted bool) *AuthError {
	e := &AuthError{Status: status, Method: method, exhausted: exhausted}

	var doc upstreamError
	if json.Unmarshal(body, &doc) == nil {
		e.Message = doc.Detail
		if e.Message == "" {
			e.Message = doc.Message
		}
		if doc.Code != nil {
			e.Code = fmt.Sprint(doc.Code)
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	e.cause = classifyDetail(e.Message)
	return e
}

// classifyDetail matches the broker's known error details
func classifyDetail(detail string) error {
	d := strings.ToLower(detail)
	switch {
	case strings.Contains(d, "clientid") || strings.Contains(d, "client id"):
		if strings.Contains(d, "invalid") || strings.Contains(d, "unknown") || strings.Contains(d, "not found") {
			return ErrInvalidClientID
		}
	case strings.Contains(d, "signature"):
		return ErrSignatureVerification
	}
	return nil
}
