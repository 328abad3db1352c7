package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderhq/traderpulse/internal/domain"
)

// fakeSource serves canned snapshots or errors per entity.
type fakeSource struct {
	mu        sync.Mutex
	snapshots map[domain.EntityID]domain.Snapshot
	errs      map[domain.EntityID]error
	calls     []domain.EntityID
}

func (f *fakeSource) GetSnapshot(ctx context.Context, id domain.EntityID) (domain.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return domain.Snapshot{}, err
	}
	if snap, ok := f.snapshots[id]; ok {
		return snap, nil
	}
	return domain.Snapshot{}, domain.ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validSnapshot(id domain.EntityID) domain.Snapshot {
	return domain.Snapshot{
		EntityID:  id,
		Timestamp: time.Now(),
	}
}

func TestFetcherPartitionsResults(t *testing.T) {
	source := &fakeSource{
		snapshots: map[domain.EntityID]domain.Snapshot{
			"a": validSnapshot("a"),
			"c": validSnapshot("c"),
		},
		errs: map[domain.EntityID]error{
			"b": domain.ErrProviderDown,
		},
	}
	fetcher := NewFetcher(source, time.Second, testLogger())

	result := fetcher.FetchAll(context.Background(), []domain.EntityID{"a", "b", "c"})

	require.Len(t, result.Snapshots, 2)
	assert.Equal(t, domain.EntityID("a"), result.Snapshots[0].EntityID)
	assert.Equal(t, domain.EntityID("c"), result.Snapshots[1].EntityID)
	assert.Equal(t, []domain.EntityID{"b"}, result.Failed)
}

func TestFetcherRejectsInvalidSnapshot(t *testing.T) {
	source := &fakeSource{
		snapshots: map[domain.EntityID]domain.Snapshot{
			"a": {EntityID: "a"}, // zero timestamp fails validation
			"b": validSnapshot("b"),
		},
	}
	fetcher := NewFetcher(source, time.Second, testLogger())

	result := fetcher.FetchAll(context.Background(), []domain.EntityID{"a", "b"})

	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, domain.EntityID("b"), result.Snapshots[0].EntityID)
	assert.Equal(t, []domain.EntityID{"a"}, result.Failed)
}

func TestFetcherAllFail(t *testing.T) {
	source := &fakeSource{
		errs: map[domain.EntityID]error{
			"a": errors.New("boom"),
			"b": domain.ErrRateLimited,
		},
	}
	fetcher := NewFetcher(source, time.Second, testLogger())

	result := fetcher.FetchAll(context.Background(), []domain.EntityID{"a", "b"})

	assert.Empty(t, result.Snapshots)
	assert.Equal(t, []domain.EntityID{"a", "b"}, result.Failed)
}

func TestFetcherFetchesAllEntities(t *testing.T) {
	source := &fakeSource{
		snapshots: map[domain.EntityID]domain.Snapshot{
			"a": validSnapshot("a"),
			"b": validSnapshot("b"),
			"c": validSnapshot("c"),
		},
	}
	fetcher := NewFetcher(source, time.Second, testLogger())

	result := fetcher.FetchAll(context.Background(), []domain.EntityID{"a", "b", "c"})

	require.Len(t, result.Snapshots, 3)
	assert.ElementsMatch(t, []domain.EntityID{"a", "b", "c"}, source.calls)
}

func TestFetcherEmptyEntityList(t *testing.T) {
	fetcher := NewFetcher(&fakeSource{}, time.Second, testLogger())

	result := fetcher.FetchAll(context.Background(), nil)

	assert.Empty(t, result.Snapshots)
	assert.Empty(t, result.Failed)
}
