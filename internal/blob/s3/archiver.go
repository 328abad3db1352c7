package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calderhq/traderpulse/internal/domain"
)

// multipartThreshold is the archive size above which the multipart upload
// path is used instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// AlertSender is the narrow notification surface the archiver needs.
type AlertSender interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Archiver exports old activity scores from the durable sink to cold object
// storage as JSONL, then prunes the exported rows. Deletion only happens
// after the upload succeeded, so a failed upload leaves the sink untouched.
type Archiver struct {
	writer  domain.BlobWriter
	sink    domain.ScoreSink
	alerter AlertSender
	logger  *slog.Logger

	interval time.Duration
	maxAge   time.Duration
}

// NewArchiver creates an Archiver. alerter may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	sink domain.ScoreSink,
	alerter AlertSender,
	interval, maxAge time.Duration,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:   writer,
		sink:     sink,
		alerter:  alerter,
		logger:   logger.With(slog.String("component", "archiver")),
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run archives on the configured interval until ctx is cancelled. A failed
// pass is logged and reported to the alerter; the loop keeps running.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", a.interval),
		slog.Duration("max_age", a.maxAge),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveScores(ctx, time.Now().UTC().Add(-a.maxAge)); err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed", slog.String("error", err.Error()))
				if a.alerter != nil {
					_ = a.alerter.Notify(ctx, "archive_failed", "Score archive failed", err.Error())
				}
			}
		}
	}
}

// ArchiveScores exports all scores older than the cutoff to S3 as a
// timestamped JSONL object, then deletes them from the sink. It returns the
// number of archived rows.
func (a *Archiver) ArchiveScores(ctx context.Context, before time.Time) (int64, error) {
	scores, err := a.sink.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scores query: %w", err)
	}
	if len(scores) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(scores)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scores marshal: %w", err)
	}

	path := archivePath("scores", before)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scores upload: %w", err)
	}

	deleted, err := a.sink.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(scores)), fmt.Errorf("s3blob: archive scores prune: %w", err)
	}

	a.logger.InfoContext(ctx, "scores archived",
		slog.String("path", path),
		slog.Int("archived", len(scores)),
		slog.Int64("pruned", deleted),
	)

	return int64(len(scores)), nil
}

// archivePath builds the S3 key for an archive file. Keys embed the full
// cutoff timestamp so successive passes within the same month never
// overwrite each other.
//
//	archive/scores/2025-01/20250115T120000.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl",
		kind, before.Format("2006-01"), before.Format("20060102T150405"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
