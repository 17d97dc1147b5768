package broker

import (
	"context"
	"errors"
	"net/http"
)

// Category is the actionable class of a broker failure
type Category int

const (
	CategoryGeneric Category = iota
	CategoryCredentialMismatch
	CategoryPermission
	CategoryTransient
)

// Classify maps any error returned by Client to a Category
func Classify(err error) Category {
	var authErr *AuthError
	switch {
	case err == nil:
		return CategoryGeneric
	case errors.Is(err, ErrInvalidClientID),
		errors.Is(err, ErrSignatureVerification),
		errors.Is(err, ErrAuthExhausted):
		return CategoryCredentialMismatch
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	case errors.As(err, &authErr) &&
		(authErr.Status == http.StatusForbidden || authErr.Status == http.StatusPaymentRequired):
		return CategoryPermission
	}
	return CategoryGeneric
}

// UserMessage renders err as one of a small set of messages that are safe to
// show to end users. Upstream JSON is never included.
func UserMessage(err error) string {
	switch Classify(err) {
	case CategoryCredentialMismatch:
		return "The broker rejected our credentials. Please contact support if this persists."
	case CategoryPermission:
		return "Your broker account or plan does not allow this action."
	case CategoryTransient:
		return "The broker is temporarily unavailable. Please try again in a few minutes."
	default:
		return "The broker request could not be completed."
	}
}

// HTTPStatus is the status our API answers with for a broker failure
func HTTPStatus(err error) int {
	switch Classify(err) {
	case CategoryPermission:
		return http.StatusForbidden
	case CategoryTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
