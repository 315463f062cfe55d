// Package blacklist screens native addresses against an external
// sanctions feed. The feed is fetched lazily and cached; a fetch
// failure falls back to the last good snapshot rather than blocking
// the bridge on the oracle's availability.
package blacklist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/internal/metrics"
	"github.com/pawbridge/paw-middleware/pkg/config"
)

// Entry is one blacklisted native address.
type Entry struct {
	Address string `json:"address"`
	Alias   string `json:"alias"`
	Type    string `json:"type"`
}

// Oracle serves blacklist lookups from a TTL-cached snapshot.
type Oracle struct {
	url    string
	ttl    time.Duration
	client *http.Client
	logger *zap.Logger

	mu        sync.RWMutex
	entries   map[string]Entry
	fetchedAt time.Time
}

// NewOracle creates the oracle. The first lookup triggers the fetch.
func NewOracle(cfg config.BlacklistConfig, logger *zap.Logger) *Oracle {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Oracle{
		url:    cfg.URL,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// IsBlacklisted returns the matching entry, or nil when the address is
// clean. With no feed configured every address is clean. When the feed
// has never been fetched successfully, the lookup fails rather than
// letting funds through unscreened.
func (o *Oracle) IsBlacklisted(ctx context.Context, native string) (*Entry, error) {
	if o.url == "" {
		return nil, nil
	}

	entries, err := o.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if entry, ok := entries[native]; ok {
		return &entry, nil
	}
	return nil, nil
}

// snapshot returns the cached entries, refreshing them when stale.
func (o *Oracle) snapshot(ctx context.Context) (map[string]Entry, error) {
	o.mu.RLock()
	entries, fetchedAt := o.entries, o.fetchedAt
	o.mu.RUnlock()

	if entries != nil && time.Since(fetchedAt) < o.ttl {
		return entries, nil
	}

	fresh, err := o.fetch(ctx)
	if err != nil {
		if entries != nil {
			// Serve the stale snapshot; the next lookup retries.
			o.logger.Warn("Blacklist refresh failed, serving stale snapshot",
				zap.Time("fetched_at", fetchedAt), zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("blacklist", "refresh").Inc()
			return entries, nil
		}
		return nil, fmt.Errorf("fetch blacklist: %w", err)
	}

	o.mu.Lock()
	o.entries = fresh
	o.fetchedAt = time.Now()
	o.mu.Unlock()

	metrics.BlacklistCacheAge.Set(0)
	return fresh, nil
}

func (o *Oracle) fetch(ctx context.Context) (map[string]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blacklist feed returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	var list []Entry
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode blacklist feed: %w", err)
	}

	entries := make(map[string]Entry, len(list))
	for _, e := range list {
		entries[e.Address] = e
	}
	o.logger.Info("Blacklist refreshed", zap.Int("entries", len(entries)))
	return entries, nil
}
