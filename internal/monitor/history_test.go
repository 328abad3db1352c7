package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderhq/traderpulse/internal/domain"
)

func fixedHistory(cfg HistoryConfig, now time.Time) *HistoryStore {
	h := NewHistoryStore(cfg)
	h.now = func() time.Time { return now }
	return h
}

func scoreAt(id string, ts time.Time, level float64) domain.ActivityScore {
	return domain.ActivityScore{
		EntityID:      domain.EntityID(id),
		Timestamp:     ts,
		ActivityLevel: level,
		RawScore:      level,
	}
}

func TestHistoryStoreAppendCountBound(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h := fixedHistory(HistoryConfig{MaxSamples: 3, Retention: time.Hour, SlotWidth: 30 * time.Minute}, now)

	for i := 0; i < 5; i++ {
		h.Append(scoreAt("t1", now.Add(time.Duration(i-5)*time.Minute), float64(i)/10))
	}

	w := h.Window("t1", time.Hour)
	require.Len(t, w, 3)
	// Oldest two evicted FIFO.
	assert.InDelta(t, 0.2, w[0].ActivityLevel, 1e-9)
	assert.InDelta(t, 0.4, w[2].ActivityLevel, 1e-9)
}

func TestHistoryStoreAppendAgeBound(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h := fixedHistory(HistoryConfig{MaxSamples: 100, Retention: 10 * time.Minute, SlotWidth: 30 * time.Minute}, now)

	h.Append(scoreAt("t1", now.Add(-30*time.Minute), 0.1))
	h.Append(scoreAt("t1", now.Add(-15*time.Minute), 0.2))
	h.Append(scoreAt("t1", now.Add(-5*time.Minute), 0.3))

	w := h.Window("t1", time.Hour)
	require.Len(t, w, 1)
	assert.InDelta(t, 0.3, w[0].ActivityLevel, 1e-9)
}

func TestHistoryStoreWindowFiltersAndCopies(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h := fixedHistory(HistoryConfig{MaxSamples: 100, Retention: 24 * time.Hour, SlotWidth: 30 * time.Minute}, now)

	h.Append(scoreAt("t1", now.Add(-50*time.Minute), 0.1))
	h.Append(scoreAt("t1", now.Add(-20*time.Minute), 0.2))
	h.Append(scoreAt("t1", now.Add(-time.Minute), 0.3))

	w := h.Window("t1", 30*time.Minute)
	require.Len(t, w, 2)
	assert.True(t, w[0].Timestamp.Before(w[1].Timestamp))

	// Mutating the returned slice must not leak into the store.
	w[0].ActivityLevel = 99
	again := h.Window("t1", 30*time.Minute)
	assert.InDelta(t, 0.2, again[0].ActivityLevel, 1e-9)
}

func TestHistoryStoreWindowUnknownEntity(t *testing.T) {
	h := NewHistoryStore(DefaultHistoryConfig())
	assert.Nil(t, h.Window("nobody", time.Hour))
}

func TestHistoryStoreLatest(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h := fixedHistory(DefaultHistoryConfig(), now)

	_, ok := h.Latest("t1")
	assert.False(t, ok)

	h.Append(scoreAt("t1", now.Add(-2*time.Minute), 0.1))
	h.Append(scoreAt("t1", now.Add(-time.Minute), 0.7))
	h.Append(scoreAt("t2", now.Add(-time.Minute), 0.4))

	latest, ok := h.Latest("t1")
	require.True(t, ok)
	assert.InDelta(t, 0.7, latest.ActivityLevel, 1e-9)

	all := h.LatestAll()
	require.Len(t, all, 2)
	assert.InDelta(t, 0.7, all["t1"].ActivityLevel, 1e-9)
	assert.InDelta(t, 0.4, all["t2"].ActivityLevel, 1e-9)
}

func TestHistoryStoreBuildHeatmap(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h := fixedHistory(HistoryConfig{MaxSamples: 100, Retention: 24 * time.Hour, SlotWidth: 30 * time.Minute}, now)

	// Two scores in the 11:00-11:30 slot, one in 11:30-12:00.
	early1 := scoreAt("t1", now.Add(-55*time.Minute), 0.2)
	early1.TradeFrequency = 2
	early1.TradingVolume = 1000
	early2 := scoreAt("t1", now.Add(-40*time.Minute), 0.4)
	early2.TradeFrequency = 3
	early2.TradingVolume = 2000
	late := scoreAt("t1", now.Add(-10*time.Minute), 0.9)
	late.TradeFrequency = 5
	late.TradingVolume = 4000

	h.Append(early1)
	h.Append(early2)
	h.Append(late)

	agg := h.BuildHeatmap("t1", time.Hour)
	require.NotEmpty(t, agg.Slots)
	assert.Equal(t, domain.EntityID("t1"), agg.EntityID)
	assert.Equal(t, 30*time.Minute, agg.SlotWidth)

	slot1 := agg.Slots[0]
	assert.InDelta(t, 0.3, slot1.AvgActivity, 1e-9)
	assert.Equal(t, 5, slot1.TradeCount)
	assert.InDelta(t, 3000, slot1.Volume, 1e-9)
	assert.Equal(t, domain.BandFor(0.3), slot1.Band)

	slot2 := agg.Slots[1]
	assert.InDelta(t, 0.9, slot2.AvgActivity, 1e-9)
	assert.Equal(t, domain.BandFor(0.9), slot2.Band)

	// Empty slots report zero activity and the lowest band.
	for _, s := range agg.Slots[2:] {
		assert.Zero(t, s.AvgActivity)
		assert.Equal(t, domain.BandFor(0), s.Band)
	}
}

func TestHistoryStoreReset(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h := fixedHistory(DefaultHistoryConfig(), now)

	h.Append(scoreAt("t1", now, 0.5))
	h.Append(scoreAt("t2", now, 0.6))
	require.Len(t, h.LatestAll(), 2)

	h.Reset()
	assert.Empty(t, h.LatestAll())
	assert.Nil(t, h.Window("t1", time.Hour))
}
