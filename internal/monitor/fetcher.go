package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calderhq/traderpulse/internal/domain"
)

// FetchResult partitions one cycle's fetches into validated snapshots and the
// entities whose fetch failed this cycle.
type FetchResult struct {
	Snapshots []domain.Snapshot
	Failed    []domain.EntityID
}

// Fetcher retrieves snapshots for all tracked entities concurrently. Each
// fetch is bounded by its own timeout; a timeout, transport error, or invalid
// payload marks only that entity as failed and never aborts the rest of the
// cycle.
type Fetcher struct {
	source  domain.SnapshotSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher over the given source with a per-entity fetch
// timeout.
func NewFetcher(source domain.SnapshotSource, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		source:  source,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "fetcher")),
	}
}

// FetchAll issues one fetch per entity, all concurrently. The tracked entity
// count is small, so no concurrency limit is applied. The returned result
// preserves the input order for snapshots and failures.
func (f *Fetcher) FetchAll(ctx context.Context, ids []domain.EntityID) FetchResult {
	snapshots := make([]*domain.Snapshot, len(ids))
	var (
		mu     sync.Mutex
		failed = make(map[domain.EntityID]bool, len(ids))
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			snap, err := f.source.GetSnapshot(fetchCtx, id)
			if err == nil {
				err = snap.Validate()
			}
			if err != nil {
				f.logger.WarnContext(ctx, "snapshot fetch failed",
					slog.String("entity", string(id)),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failed[id] = true
				mu.Unlock()
				return nil // per-entity failures never abort the group
			}

			snapshots[i] = &snap
			return nil
		})
	}
	_ = g.Wait()

	result := FetchResult{}
	for i, id := range ids {
		if snapshots[i] != nil {
			result.Snapshots = append(result.Snapshots, *snapshots[i])
		} else if failed[id] {
			result.Failed = append(result.Failed, id)
		}
	}
	return result
}
