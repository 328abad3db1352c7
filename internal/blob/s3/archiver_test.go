package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderhq/traderpulse/internal/domain"
)

// memWriter captures uploads in memory.
type memWriter struct {
	objects    map[string][]byte
	multiparts map[string][]byte
	err        error
}

func newMemWriter() *memWriter {
	return &memWriter{
		objects:    make(map[string][]byte),
		multiparts: make(map[string][]byte),
	}
}

func (m *memWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = buf
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if m.err != nil {
		return m.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.multiparts[path] = buf
	return nil
}

// memSink holds scores in memory and tracks deletions.
type memSink struct {
	scores  []domain.ActivityScore
	listErr error
	delErr  error
	deleted []time.Time
}

func (m *memSink) InsertScore(ctx context.Context, score domain.ActivityScore) error {
	m.scores = append(m.scores, score)
	return nil
}

func (m *memSink) ListRange(ctx context.Context, id domain.EntityID, from, to time.Time) ([]domain.ActivityScore, error) {
	return nil, nil
}

func (m *memSink) ListBefore(ctx context.Context, before time.Time) ([]domain.ActivityScore, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.ActivityScore
	for _, s := range m.scores {
		if s.Timestamp.Before(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSink) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if m.delErr != nil {
		return 0, m.delErr
	}
	m.deleted = append(m.deleted, before)
	var kept []domain.ActivityScore
	var n int64
	for _, s := range m.scores {
		if s.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	m.scores = kept
	return n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestArchiver(writer domain.BlobWriter, sink domain.ScoreSink) *Archiver {
	return NewArchiver(writer, sink, nil, time.Hour, 24*time.Hour, testLogger())
}

func TestArchiveScoresExportsAndPrunes(t *testing.T) {
	cutoff := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	sink := &memSink{
		scores: []domain.ActivityScore{
			{EntityID: "t1", Timestamp: cutoff.Add(-2 * time.Hour), ActivityLevel: 0.1},
			{EntityID: "t2", Timestamp: cutoff.Add(-time.Hour), ActivityLevel: 0.2},
			{EntityID: "t1", Timestamp: cutoff.Add(time.Hour), ActivityLevel: 0.3}, // too new
		},
	}
	writer := newMemWriter()
	archiver := newTestArchiver(writer, sink)

	n, err := archiver.ArchiveScores(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.Len(t, writer.objects, 1)
	wantPath := "archive/scores/2026-08/20260826T000000.jsonl"
	data, ok := writer.objects[wantPath]
	require.True(t, ok, "expected object at %s, got %v", wantPath, writer.objects)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	var first domain.ActivityScore
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, domain.EntityID("t1"), first.EntityID)

	// Only the too-new score survives the prune.
	require.Len(t, sink.scores, 1)
	assert.InDelta(t, 0.3, sink.scores[0].ActivityLevel, 1e-9)
}

func TestArchiveScoresNothingToDo(t *testing.T) {
	writer := newMemWriter()
	archiver := newTestArchiver(writer, &memSink{})

	n, err := archiver.ArchiveScores(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.objects)
}

func TestArchiveScoresUploadFailureKeepsSink(t *testing.T) {
	cutoff := time.Now().UTC()
	sink := &memSink{
		scores: []domain.ActivityScore{
			{EntityID: "t1", Timestamp: cutoff.Add(-time.Hour)},
		},
	}
	writer := newMemWriter()
	writer.err = errors.New("bucket unavailable")
	archiver := newTestArchiver(writer, sink)

	_, err := archiver.ArchiveScores(context.Background(), cutoff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload")

	// No deletion after a failed upload.
	assert.Empty(t, sink.deleted)
	assert.Len(t, sink.scores, 1)
}

func TestArchiveScoresQueryFailure(t *testing.T) {
	sink := &memSink{listErr: errors.New("db down")}
	archiver := newTestArchiver(newMemWriter(), sink)

	_, err := archiver.ArchiveScores(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestMarshalJSONL(t *testing.T) {
	buf, err := marshalJSONL([]map[string]string{
		{"a": "1"},
		{"b": "<&>"},
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasSuffix(buf, []byte("\n")))
	lines := bytes.Split(bytes.TrimRight(buf, "\n"), []byte("\n"))
	require.Len(t, lines, 2)
	// HTML escaping is disabled for archive payloads.
	assert.Contains(t, string(lines[1]), "<&>")
}

func TestArchivePath(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "archive/scores/2026-01/20260115T120000.jsonl", archivePath("scores", ts))
}
