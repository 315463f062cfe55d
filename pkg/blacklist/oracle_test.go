package blacklist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/pkg/config"
)

func newTestOracle(url string, ttl time.Duration) *Oracle {
	return NewOracle(config.BlacklistConfig{URL: url, CacheTTL: ttl}, zap.NewNop())
}

func TestIsBlacklisted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[{"address":"paw_1bad","alias":"mixer","type":"sanctioned"}]`))
	}))
	defer server.Close()

	oracle := newTestOracle(server.URL, time.Hour)
	ctx := context.Background()

	entry, err := oracle.IsBlacklisted(ctx, "paw_1bad")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "mixer", entry.Alias)
	assert.Equal(t, "sanctioned", entry.Type)

	entry, err = oracle.IsBlacklisted(ctx, "paw_1good")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Both lookups come from one fetch.
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsBlacklistedNoFeedConfigured(t *testing.T) {
	oracle := newTestOracle("", time.Hour)

	entry, err := oracle.IsBlacklisted(context.Background(), "paw_1any")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestIsBlacklistedServesStaleOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[{"address":"paw_1bad"}]`))
	}))
	defer server.Close()

	oracle := newTestOracle(server.URL, time.Nanosecond)
	ctx := context.Background()

	entry, err := oracle.IsBlacklisted(ctx, "paw_1bad")
	require.NoError(t, err)
	require.NotNil(t, entry)

	fail.Store(true)
	time.Sleep(time.Millisecond)

	entry, err = oracle.IsBlacklisted(ctx, "paw_1bad")
	require.NoError(t, err)
	assert.NotNil(t, entry, "stale snapshot keeps serving")
}

func TestIsBlacklistedFailsWithoutSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	oracle := newTestOracle(server.URL, time.Hour)

	_, err := oracle.IsBlacklisted(context.Background(), "paw_1any")
	assert.Error(t, err)
}
