package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-relay/internal/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingTokenSource counts exchanges and mints a distinct token per call.
type countingTokenSource struct {
	calls  atomic.Int64
	expiry time.Duration
	err    error
}

func (s *countingTokenSource) CreateToken(_ context.Context, installationID int64) (core.AccessToken, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return core.AccessToken{}, s.err
	}
	return core.AccessToken{
		Value:     fmt.Sprintf("token-%d-%d", installationID, n),
		ExpiresAt: time.Now().Add(s.expiry),
	}, nil
}

func TestTokenBrokerCachesToken(t *testing.T) {
	source := &countingTokenSource{expiry: time.Hour}
	broker := NewTokenBroker(source, nil, discardLogger())

	first, err := broker.Token(context.Background(), 42)
	require.NoError(t, err)

	second, err := broker.Token(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, int64(1), source.calls.Load(), "cached token must be reused")
}

func TestTokenBrokerRefreshesNearExpiry(t *testing.T) {
	source := &countingTokenSource{expiry: time.Hour}
	broker := NewTokenBroker(source, nil, discardLogger())

	_, err := broker.Token(context.Background(), 42)
	require.NoError(t, err)

	// Jump to within the safety margin of the cached token's expiry.
	broker.now = func() time.Time { return time.Now().Add(time.Hour - 30*time.Second) }

	refreshed, err := broker.Token(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(2), source.calls.Load(), "token inside the margin must be refreshed")
	assert.Contains(t, refreshed.Value, "token-42-2")
}

func TestTokenBrokerIsolatesInstallations(t *testing.T) {
	source := &countingTokenSource{expiry: time.Hour}
	broker := NewTokenBroker(source, nil, discardLogger())

	tokA, err := broker.Token(context.Background(), 1)
	require.NoError(t, err)
	tokB, err := broker.Token(context.Background(), 2)
	require.NoError(t, err)

	assert.NotEqual(t, tokA.Value, tokB.Value)
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestTokenBrokerSingleFlight(t *testing.T) {
	source := &countingTokenSource{expiry: time.Hour}
	broker := NewTokenBroker(source, nil, discardLogger())

	const concurrency = 32
	var wg sync.WaitGroup
	tokens := make([]string, concurrency)

	for i := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := broker.Token(context.Background(), 42)
			assert.NoError(t, err)
			tokens[i] = tok.Value
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), source.calls.Load(), "concurrent refreshes must collapse into one exchange")
	for _, v := range tokens {
		assert.Equal(t, tokens[0], v)
	}
}

func TestTokenBrokerPropagatesExchangeError(t *testing.T) {
	source := &countingTokenSource{err: core.NewAuthError(nil, "token exchange rejected for installation 42")}
	broker := NewTokenBroker(source, nil, discardLogger())

	_, err := broker.Token(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAuth))

	// A failed exchange must not poison the cache.
	source.err = nil
	source.expiry = time.Hour
	tok, err := broker.Token(context.Background(), 42)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)
}
