package domain

import (
	"context"
	"io"
	"time"
)

// SnapshotSource retrieves the current trading-state snapshot for one entity
// from the external provider. Implementations are expected to be unreliable;
// callers bound each call with a timeout.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, id EntityID) (Snapshot, error)
}

// ScoreSink is the durable store for activity scores. Writes are best-effort
// from the pipeline's point of view: a sink failure is logged and never rolls
// back in-memory history.
type ScoreSink interface {
	InsertScore(ctx context.Context, score ActivityScore) error
	ListRange(ctx context.Context, id EntityID, from, to time.Time) ([]ActivityScore, error)
	ListBefore(ctx context.Context, before time.Time) ([]ActivityScore, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ScoreCache provides fast cross-process access to the latest score per
// entity.
type ScoreCache interface {
	SetLatest(ctx context.Context, score ActivityScore) error
	GetLatest(ctx context.Context, id EntityID) (ActivityScore, error)
	GetLatestAll(ctx context.Context, ids []EntityID) (map[EntityID]ActivityScore, error)
}

// ScoreDispatcher fans out freshly computed scores and heatmap refreshes to
// the connections currently watching each entity. Delivery is at-most-once
// per connection per event; delivery problems never surface as errors to the
// cycle pipeline.
type ScoreDispatcher interface {
	BroadcastScores(ctx context.Context, scores []ActivityScore)
	BroadcastHeatmaps(ctx context.Context, aggregates []HeatmapAggregate)
}

// SignalBus provides pub/sub fan-out and durable streams so that additional
// processes (relay servers, analytics consumers) can observe score events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// RateLimiter limits request rates per key across processes.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads archive objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
