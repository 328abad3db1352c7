package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderhq/traderpulse/internal/domain"
	"github.com/calderhq/traderpulse/internal/monitor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSource serves a fixed snapshot for every entity.
type stubSource struct{}

func (stubSource) GetSnapshot(ctx context.Context, id domain.EntityID) (domain.Snapshot, error) {
	return domain.Snapshot{
		EntityID:  id,
		Timestamp: time.Now().UTC(),
		Trades: []domain.TradeFill{
			{Symbol: "BTC-USD", Side: "buy", Quantity: 1, Price: 5000},
		},
		Positions: []domain.Position{
			{Symbol: "BTC-USD", Quantity: 1},
		},
	}, nil
}

// stubCache answers GetLatestAll from a fixed map.
type stubCache struct {
	scores map[domain.EntityID]domain.ActivityScore
	err    error
}

func (s *stubCache) SetLatest(ctx context.Context, score domain.ActivityScore) error { return nil }

func (s *stubCache) GetLatest(ctx context.Context, id domain.EntityID) (domain.ActivityScore, error) {
	if score, ok := s.scores[id]; ok {
		return score, nil
	}
	return domain.ActivityScore{}, domain.ErrNotFound
}

func (s *stubCache) GetLatestAll(ctx context.Context, ids []domain.EntityID) (map[domain.EntityID]domain.ActivityScore, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

// stubSink answers ListRange from a fixed slice.
type stubSink struct {
	mu     sync.Mutex
	scores []domain.ActivityScore
	err    error
}

func (s *stubSink) InsertScore(ctx context.Context, score domain.ActivityScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, score)
	return nil
}

func (s *stubSink) ListRange(ctx context.Context, id domain.EntityID, from, to time.Time) ([]domain.ActivityScore, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ActivityScore
	for _, score := range s.scores {
		if score.EntityID == id {
			out = append(out, score)
		}
	}
	return out, nil
}

func (s *stubSink) ListBefore(ctx context.Context, before time.Time) ([]domain.ActivityScore, error) {
	return nil, nil
}

func (s *stubSink) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func schedulerBackedHandler(t *testing.T) (*MonitorHandler, *monitor.Scheduler) {
	t.Helper()
	logger := testLogger()
	history := monitor.NewHistoryStore(monitor.DefaultHistoryConfig())
	sched := monitor.NewScheduler(
		monitor.SchedulerConfig{Entities: []domain.EntityID{"t1"}, Interval: time.Hour},
		monitor.NewFetcher(stubSource{}, time.Second, logger),
		monitor.NewScorer(monitor.DefaultScoringParams()),
		history,
		nil, nil, nil, nil, nil,
		logger,
	)
	h := NewMonitorHandler(sched, history, nil, nil, []domain.EntityID{"t1"}, logger)
	return h, sched
}

func serverOnlyHandler(cache domain.ScoreCache, sink domain.ScoreSink) *MonitorHandler {
	return NewMonitorHandler(nil, nil, cache, sink, []domain.EntityID{"t1"}, testLogger())
}

func doRequest(h http.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func doRequestWithPath(h http.HandlerFunc, method, target, idValue string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.SetPathValue("id", idValue)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestTriggerCycleAndListScores(t *testing.T) {
	h, _ := schedulerBackedHandler(t)

	rec := doRequest(h.TriggerCycle, http.MethodPost, "/api/monitor/trigger")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(h.ListScores, http.MethodGet, "/api/scores")
	require.Equal(t, http.StatusOK, rec.Code)

	var scores map[domain.EntityID]domain.ActivityScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scores))
	require.Contains(t, scores, domain.EntityID("t1"))
	assert.Greater(t, scores["t1"].ActivityLevel, 0.0)
}

func TestGetStatusReflectsScheduler(t *testing.T) {
	h, sched := schedulerBackedHandler(t)

	rec := doRequest(h.GetStatus, http.MethodGet, "/api/monitor/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status monitor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.Entities)

	sched.TriggerNow(context.Background())
	rec = doRequest(h.GetStatus, http.MethodGet, "/api/monitor/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, uint64(1), status.Cycles)
}

func TestStartStopMonitor(t *testing.T) {
	h, sched := schedulerBackedHandler(t)

	rec := doRequest(h.StartMonitor, http.MethodPost, "/api/monitor/start")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return sched.Status().Running
	}, time.Second, 10*time.Millisecond)

	rec = doRequest(h.StopMonitor, http.MethodPost, "/api/monitor/stop")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sched.Status().Running)
}

func TestGetHeatmap(t *testing.T) {
	h, sched := schedulerBackedHandler(t)
	sched.TriggerNow(context.Background())

	rec := doRequestWithPath(h.GetHeatmap, http.MethodGet, "/api/heatmap/t1?hours=2", "t1")
	require.Equal(t, http.StatusOK, rec.Code)

	var agg domain.HeatmapAggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, domain.EntityID("t1"), agg.EntityID)
	assert.NotEmpty(t, agg.Slots)
}

func TestGetHeatmapMissingID(t *testing.T) {
	h, _ := schedulerBackedHandler(t)

	rec := doRequestWithPath(h.GetHeatmap, http.MethodGet, "/api/heatmap/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistoryFromWindow(t *testing.T) {
	h, sched := schedulerBackedHandler(t)
	sched.TriggerNow(context.Background())
	sched.TriggerNow(context.Background())

	rec := doRequestWithPath(h.GetHistory, http.MethodGet, "/api/history/t1", "t1")
	require.Equal(t, http.StatusOK, rec.Code)

	var scores []domain.ActivityScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scores))
	assert.Len(t, scores, 2)
}

func TestResetHistory(t *testing.T) {
	h, sched := schedulerBackedHandler(t)
	sched.TriggerNow(context.Background())
	require.Len(t, sched.LatestScores(), 1)

	rec := doRequest(h.ResetHistory, http.MethodPost, "/api/history/reset")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sched.LatestScores())
}

func TestServerOnlyControlEndpointsUnavailable(t *testing.T) {
	h := serverOnlyHandler(&stubCache{}, &stubSink{})

	for name, fn := range map[string]http.HandlerFunc{
		"start":   h.StartMonitor,
		"stop":    h.StopMonitor,
		"trigger": h.TriggerCycle,
		"status":  h.GetStatus,
		"reset":   h.ResetHistory,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(fn, http.MethodPost, "/api/monitor/x")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}

func TestServerOnlyListScoresFromCache(t *testing.T) {
	cache := &stubCache{
		scores: map[domain.EntityID]domain.ActivityScore{
			"t1": {EntityID: "t1", ActivityLevel: 0.5},
		},
	}
	h := serverOnlyHandler(cache, &stubSink{})

	rec := doRequest(h.ListScores, http.MethodGet, "/api/scores")
	require.Equal(t, http.StatusOK, rec.Code)

	var scores map[domain.EntityID]domain.ActivityScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scores))
	assert.InDelta(t, 0.5, scores["t1"].ActivityLevel, 1e-9)
}

func TestServerOnlyListScoresCacheError(t *testing.T) {
	h := serverOnlyHandler(&stubCache{err: errors.New("redis down")}, &stubSink{})

	rec := doRequest(h.ListScores, http.MethodGet, "/api/scores")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerOnlyHistoryFromSink(t *testing.T) {
	sink := &stubSink{
		scores: []domain.ActivityScore{
			{EntityID: "t1", Timestamp: time.Now().Add(-time.Hour), ActivityLevel: 0.2},
			{EntityID: "t1", Timestamp: time.Now(), ActivityLevel: 0.4},
			{EntityID: "t2", Timestamp: time.Now(), ActivityLevel: 0.9},
		},
	}
	h := serverOnlyHandler(&stubCache{}, sink)

	rec := doRequestWithPath(h.GetHistory, http.MethodGet, "/api/history/t1", "t1")
	require.Equal(t, http.StatusOK, rec.Code)

	var scores []domain.ActivityScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scores))
	assert.Len(t, scores, 2)
}

func TestServerOnlyHeatmapUnavailable(t *testing.T) {
	h := serverOnlyHandler(&stubCache{}, &stubSink{})

	rec := doRequestWithPath(h.GetHeatmap, http.MethodGet, "/api/heatmap/t1", "t1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
