package broker

import (
	"context"
	"net/http"
)

// SigningAttemptResult records one step of a chain run
type SigningAttemptResult struct {
	Method     SigningMethod
	HTTPStatus int // 0 when no response was received
	Success    bool
}

// AttemptFunc performs one signed call and reports the upstream status.
// A non-nil error means no usable response was received.
type AttemptFunc func(ctx context.Context, strategy Strategy) (status int, err error)

// RunChain tries strategies in order. It stops at the first response that is
// not 401, at the first transport error, or when ctx is done; a step is never
// started after cancellation. If every strategy is rejected with 401 it
// returns ErrAuthExhausted.
func RunChain(ctx context.Context, strategies []Strategy, attempt AttemptFunc) ([]SigningAttemptResult, error) {
	results := make([]SigningAttemptResult, 0, len(strategies))

	for _, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		status, err := attempt(ctx, strategy)
		if err != nil {
			results = append(results, SigningAttemptResult{Method: strategy.Method})
			return results, err
		}

		results = append(results, SigningAttemptResult{
			Method:     strategy.Method,
			HTTPStatus: status,
			Success:    status >= 200 && status < 300,
		})
		if status != http.StatusUnauthorized {
			return results, nil
		}
	}

	return results, ErrAuthExhausted
}
