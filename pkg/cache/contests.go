package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/timoknapp/contest-dashboard/pkg/contest"
	"github.com/timoknapp/contest-dashboard/pkg/logger"
	"github.com/timoknapp/contest-dashboard/pkg/models"
)

// FreshnessWindow is how long a successful fetch is served without refetching.
const FreshnessWindow = 5 * time.Minute

const fetchKey = "contests"

// ContestStats are counters exported through the metrics package
type ContestStats struct {
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Fetches       int64     `json:"fetches"`
	FetchFailures int64     `json:"fetch_failures"`
	StaleServes   int64     `json:"stale_serves"`
	EmptyServes   int64     `json:"empty_serves"`
	FetchedAt     time.Time `json:"fetched_at"`
	Size          int       `json:"size"`
}

// ContestCache is the single-slot response cache in front of a contest.Source.
// The slot is empty until the first successful fetch and is only ever replaced
// as a whole.
type ContestCache struct {
	source       contest.Source
	fetchTimeout time.Duration
	now          func() time.Time

	mu        sync.RWMutex
	data      []models.Contest
	fetchedAt time.Time
	populated bool
	stats     ContestStats

	group singleflight.Group
}

// timeoutSource is implemented by sources with their own per-call bound,
// such as *contest.Client.
type timeoutSource interface {
	Timeout() time.Duration
}

// NewContestCache creates an empty cache in front of source. A fetch is
// bounded by the source's Timeout when it has one, else contest.DefaultTimeout.
func NewContestCache(source contest.Source) *ContestCache {
	timeout := contest.DefaultTimeout
	if ts, ok := source.(timeoutSource); ok && ts.Timeout() > 0 {
		timeout = ts.Timeout()
	}
	return &ContestCache{source: source, fetchTimeout: timeout, now: time.Now}
}

// WithClock replaces the time source, used by tests
func (c *ContestCache) WithClock(now func() time.Time) *ContestCache {
	c.now = now
	return c
}

// GetContests returns the contest collection. It never fails: on a refresh
// error the previous snapshot is served regardless of age, else an empty slice.
func (c *ContestCache) GetContests(ctx context.Context) []models.Contest {
	contests, _ := c.Resolve(ctx)
	return contests
}

// Resolve is GetContests plus the availability of the returned data.
func (c *ContestCache) Resolve(ctx context.Context) ([]models.Contest, models.Availability) {
	c.mu.Lock()
	if c.populated && c.now().Sub(c.fetchedAt) < FreshnessWindow {
		c.stats.Hits++
		data := c.copyLocked()
		c.mu.Unlock()
		logger.Debug("Returning %d cached contests", len(data))
		return data, models.AvailabilityFresh
	}
	c.stats.Misses++
	c.mu.Unlock()

	return c.refresh(ctx)
}

// Refresh bypasses the freshness window. Failures follow the same fallback
// policy as GetContests.
func (c *ContestCache) Refresh(ctx context.Context) ([]models.Contest, models.Availability) {
	return c.refresh(ctx)
}

// Snapshot returns the cached collection without touching the network.
func (c *ContestCache) Snapshot() ([]models.Contest, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.populated {
		return nil, time.Time{}, false
	}
	return c.copyLocked(), c.fetchedAt, true
}

// Stats returns a copy of the cache counters
func (c *ContestCache) Stats() ContestStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.FetchedAt = c.fetchedAt
	s.Size = len(c.data)
	return s
}

func (c *ContestCache) refresh(ctx context.Context) ([]models.Contest, models.Availability) {
	// Concurrent misses share one outbound call. The fetch runs detached from
	// the first caller's cancellation so the others still get a result.
	ch := c.group.DoChan(fetchKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.fallback(res.Err)
		}
		return copyContests(res.Val.([]models.Contest)), models.AvailabilityFresh
	case <-ctx.Done():
		return c.fallback(ctx.Err())
	}
}

func (c *ContestCache) fetch(ctx context.Context) ([]models.Contest, error) {
	c.mu.Lock()
	c.stats.Fetches++
	c.mu.Unlock()

	contests, err := c.source.Fetch(ctx)
	if err != nil {
		c.mu.Lock()
		c.stats.FetchFailures++
		c.mu.Unlock()
		return nil, err
	}

	snapshot := copyContests(contests)
	c.mu.Lock()
	c.data = snapshot
	c.fetchedAt = c.now()
	c.populated = true
	c.mu.Unlock()

	logger.Info("Contest cache refreshed with %d contests", len(snapshot))
	return snapshot, nil
}

func (c *ContestCache) fallback(err error) ([]models.Contest, models.Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger.Error("Error fetching contests: %v", err)
	if c.populated {
		c.stats.StaleServes++
		logger.Warn("Returning stale cached contests (fetched at %s) due to an error", c.fetchedAt.UTC().Format(time.RFC3339))
		return c.copyLocked(), models.AvailabilityStale
	}
	c.stats.EmptyServes++
	return []models.Contest{}, models.AvailabilityUnavailable
}

func (c *ContestCache) copyLocked() []models.Contest {
	return copyContests(c.data)
}

func copyContests(in []models.Contest) []models.Contest {
	out := make([]models.Contest, len(in))
	copy(out, in)
	return out
}
