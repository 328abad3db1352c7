package monitor

import (
	"sync"
	"time"

	"github.com/calderhq/traderpulse/internal/domain"
)

// HistoryConfig bounds the per-entity score window.
type HistoryConfig struct {
	// MaxSamples caps the number of retained scores per entity.
	MaxSamples int
	// Retention caps the age of retained scores.
	Retention time.Duration
	// SlotWidth is the bucket width used by BuildHeatmap.
	SlotWidth time.Duration
}

// DefaultHistoryConfig retains 24 hours at one sample per minute, bucketed
// into 30-minute heatmap slots.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxSamples: 1440,
		Retention:  24 * time.Hour,
		SlotWidth:  30 * time.Minute,
	}
}

// HistoryStore keeps a bounded, time-ordered sequence of activity scores per
// entity and derives heatmap aggregates on demand. It has a single writer
// (the cycle pipeline) and concurrent readers (the control surface), guarded
// by an RWMutex. It is the source of truth for live queries; the durable
// sink is written independently and best-effort.
type HistoryStore struct {
	cfg     HistoryConfig
	mu      sync.RWMutex
	windows map[domain.EntityID][]domain.ActivityScore
	now     func() time.Time
}

// NewHistoryStore creates an empty HistoryStore.
func NewHistoryStore(cfg HistoryConfig) *HistoryStore {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultHistoryConfig().MaxSamples
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultHistoryConfig().Retention
	}
	if cfg.SlotWidth <= 0 {
		cfg.SlotWidth = DefaultHistoryConfig().SlotWidth
	}
	return &HistoryStore{
		cfg:     cfg,
		windows: make(map[domain.EntityID][]domain.ActivityScore),
		now:     time.Now,
	}
}

// Append records a score at the end of its entity's window and evicts the
// oldest entries that exceed the count or age bound (FIFO).
func (h *HistoryStore) Append(score domain.ActivityScore) {
	h.mu.Lock()
	defer h.mu.Unlock()

	w := append(h.windows[score.EntityID], score)

	if excess := len(w) - h.cfg.MaxSamples; excess > 0 {
		w = w[excess:]
	}
	cutoff := h.now().Add(-h.cfg.Retention)
	i := 0
	for i < len(w) && w[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w = w[i:]
	}

	h.windows[score.EntityID] = w
}

// Window returns the ascending-time slice of scores within
// [now-duration, now] for the given entity. The returned slice is a copy.
func (h *HistoryStore) Window(id domain.EntityID, duration time.Duration) []domain.ActivityScore {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w := h.windows[id]
	if len(w) == 0 {
		return nil
	}

	from := h.now().Add(-duration)
	i := 0
	for i < len(w) && w[i].Timestamp.Before(from) {
		i++
	}
	if i == len(w) {
		return nil
	}
	out := make([]domain.ActivityScore, len(w)-i)
	copy(out, w[i:])
	return out
}

// Latest returns the most recent score for the entity, if any.
func (h *HistoryStore) Latest(id domain.EntityID) (domain.ActivityScore, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w := h.windows[id]
	if len(w) == 0 {
		return domain.ActivityScore{}, false
	}
	return w[len(w)-1], true
}

// LatestAll returns the most recent score for every entity that has one.
func (h *HistoryStore) LatestAll() map[domain.EntityID]domain.ActivityScore {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[domain.EntityID]domain.ActivityScore, len(h.windows))
	for id, w := range h.windows {
		if len(w) > 0 {
			out[id] = w[len(w)-1]
		}
	}
	return out
}

// BuildHeatmap buckets the entity's window over the given duration into
// fixed-width slots, computing per-slot mean activity, summed trade count,
// summed volume, and the discrete band.
func (h *HistoryStore) BuildHeatmap(id domain.EntityID, duration time.Duration) domain.HeatmapAggregate {
	scores := h.Window(id, duration)

	to := h.now()
	from := to.Add(-duration).Truncate(h.cfg.SlotWidth)
	slotCount := int(to.Sub(from)/h.cfg.SlotWidth) + 1

	agg := domain.HeatmapAggregate{
		EntityID:  id,
		From:      from,
		To:        to,
		SlotWidth: h.cfg.SlotWidth,
		Slots:     make([]domain.HeatmapSlot, slotCount),
	}

	sums := make([]float64, slotCount)
	counts := make([]int, slotCount)
	for i := range agg.Slots {
		agg.Slots[i].Start = from.Add(time.Duration(i) * h.cfg.SlotWidth)
		agg.Slots[i].End = agg.Slots[i].Start.Add(h.cfg.SlotWidth)
	}

	for _, s := range scores {
		i := int(s.Timestamp.Sub(from) / h.cfg.SlotWidth)
		if i < 0 || i >= slotCount {
			continue
		}
		sums[i] += s.ActivityLevel
		counts[i]++
		agg.Slots[i].TradeCount += s.TradeFrequency
		agg.Slots[i].Volume += s.TradingVolume
	}

	for i := range agg.Slots {
		if counts[i] > 0 {
			agg.Slots[i].AvgActivity = sums[i] / float64(counts[i])
		}
		agg.Slots[i].Band = domain.BandFor(agg.Slots[i].AvgActivity)
	}
	return agg
}

// Reset discards all retained history. Intended for testing and operational
// use via the control surface.
func (h *HistoryStore) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows = make(map[domain.EntityID][]domain.ActivityScore)
}
