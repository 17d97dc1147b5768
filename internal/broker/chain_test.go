package broker

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers the i-th call with statuses[i]
func scripted(statuses ...int) (AttemptFunc, *[]SigningMethod) {
	var called []SigningMethod
	return func(_ context.Context, s Strategy) (int, error) {
		i := len(called)
		called = append(called, s.Method)
		return statuses[i], nil
	}, &called
}

func TestRunChain_AdvancesOnlyOn401(t *testing.T) {
	attempt, called := scripted(401, 401, 200)

	results, err := RunChain(context.Background(), DefaultChain(), attempt)

	require.NoError(t, err)
	assert.Equal(t, []SigningMethod{PrimaryApiKey, HmacStandard, HmacAlternate}, *called)
	require.Len(t, results, 3)
	assert.False(t, results[0].Success)
	assert.Equal(t, http.StatusUnauthorized, results[1].HTTPStatus)
	assert.True(t, results[2].Success)
}

func TestRunChain_NonAuthErrorStopsImmediately(t *testing.T) {
	for _, status := range []int{400, 403, 429, 500} {
		attempt, called := scripted(status)

		results, err := RunChain(context.Background(), DefaultChain(), attempt)

		require.NoError(t, err)
		assert.Len(t, *called, 1, "status %d", status)
		assert.Equal(t, status, results[0].HTTPStatus)
	}
}

func TestRunChain_AllRejected(t *testing.T) {
	attempt, called := scripted(401, 401, 401, 401, 401)

	results, err := RunChain(context.Background(), DefaultChain(), attempt)

	assert.ErrorIs(t, err, ErrAuthExhausted)
	assert.Len(t, *called, 5)
	assert.Len(t, results, 5)
}

func TestRunChain_FinalStepOutcomeIsFinal(t *testing.T) {
	attempt, called := scripted(401, 401, 401, 401, 403)

	results, err := RunChain(context.Background(), DefaultChain(), attempt)

	require.NoError(t, err)
	assert.Len(t, *called, 5)
	assert.Equal(t, 403, results[4].HTTPStatus)
}

func TestRunChain_TransportErrorStops(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")

	results, err := RunChain(context.Background(), DefaultChain(), func(context.Context, Strategy) (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].HTTPStatus)
}

func TestRunChain_CancellationPreventsLaterSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	results, err := RunChain(ctx, DefaultChain(), func(context.Context, Strategy) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return http.StatusUnauthorized, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
	assert.Len(t, results, 2)
}

func TestRunChain_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunChain(ctx, DefaultChain(), func(context.Context, Strategy) (int, error) {
		t.Fatal("no step may start after cancellation")
		return 0, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
