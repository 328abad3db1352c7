// Package monitor implements the cycle-based activity monitoring pipeline:
// concurrent snapshot fetching, delta scoring, bounded in-memory history, and
// the scheduler that drives one fetch→score→store→broadcast pass per tick.
package monitor

import (
	"math"

	"github.com/calderhq/traderpulse/internal/domain"
)

// ScoringParams holds the weights and normalization ceilings used by the
// scoring engine. The defaults are inherited operating constants with no
// documented derivation, so they are kept configurable rather than replaced.
type ScoringParams struct {
	// Cold start (no previous snapshot).
	ColdTradeWeight     float64
	ColdPositionWeight  float64
	ColdVolumeWeight    float64
	ColdTradeCeiling    float64
	ColdPositionCeiling float64
	ColdVolumeCeiling   float64

	// Warm path (delta against previous snapshot). Each sub-score is
	// normalized to 0-100 against its ceiling before weighting.
	VolumeWeight          float64
	FrequencyWeight       float64
	PortfolioWeight       float64
	PnLWeight             float64
	VolumeChangeCeiling   float64
	FrequencyChangeCeiling float64
	PositionChangeCeiling float64
	QuantityDeltaCeiling  float64
	PnLChangeDivisor      float64
}

// DefaultScoringParams returns the standard scoring constants.
func DefaultScoringParams() ScoringParams {
	return ScoringParams{
		ColdTradeWeight:     0.4,
		ColdPositionWeight:  0.3,
		ColdVolumeWeight:    0.3,
		ColdTradeCeiling:    10,
		ColdPositionCeiling: 5,
		ColdVolumeCeiling:   100_000,

		VolumeWeight:           0.30,
		FrequencyWeight:        0.25,
		PortfolioWeight:        0.25,
		PnLWeight:              0.20,
		VolumeChangeCeiling:    50_000,
		FrequencyChangeCeiling: 10,
		PositionChangeCeiling:  5,
		QuantityDeltaCeiling:   1_000,
		PnLChangeDivisor:       1_000,
	}
}

// Scorer converts a (current, previous) snapshot pair into an ActivityScore.
// Calculate is a pure function: identical inputs always produce identical
// output.
type Scorer struct {
	params ScoringParams
}

// NewScorer creates a Scorer with the given parameters.
func NewScorer(params ScoringParams) *Scorer {
	return &Scorer{params: params}
}

// Calculate scores the current snapshot against the previous one. When
// previous is nil the cold-start formula is used and RawScore equals the
// resulting activity level; on the warm path RawScore is the 0-100 weighted
// delta composite and ActivityLevel is RawScore/100 clamped to [0, 1].
func (s *Scorer) Calculate(current domain.Snapshot, previous *domain.Snapshot) domain.ActivityScore {
	score := domain.ActivityScore{
		EntityID:         current.EntityID,
		Timestamp:        current.Timestamp,
		TradingVolume:    current.TradingVolume(),
		TradeFrequency:   len(current.Trades),
		PortfolioChanges: len(current.Positions),
	}

	if previous == nil {
		level := s.coldStart(current)
		score.RawScore = level
		score.ActivityLevel = level
		return score
	}

	raw := s.warmDelta(current, *previous)
	score.RawScore = raw
	score.ActivityLevel = clamp01(raw / 100)
	return score
}

// coldStart rates absolute activity in the first observed snapshot.
func (s *Scorer) coldStart(cur domain.Snapshot) float64 {
	p := s.params
	level := p.ColdTradeWeight*capRatio(float64(len(cur.Trades)), p.ColdTradeCeiling) +
		p.ColdPositionWeight*capRatio(float64(len(cur.Positions)), p.ColdPositionCeiling) +
		p.ColdVolumeWeight*capRatio(cur.TradingVolume(), p.ColdVolumeCeiling)
	return clamp01(level)
}

// warmDelta rates the change between two consecutive snapshots on a 0-100
// scale from four weighted sub-scores.
func (s *Scorer) warmDelta(cur, prev domain.Snapshot) float64 {
	p := s.params

	volumeChange := math.Min(
		math.Abs(cur.TradingVolume()-prev.TradingVolume())/p.VolumeChangeCeiling*100, 100)

	frequencyChange := math.Min(
		math.Abs(float64(len(cur.Trades)-len(prev.Trades)))/p.FrequencyChangeCeiling*100, 100)

	portfolioChange := s.portfolioDelta(cur, prev)

	pnlChange := math.Min(math.Abs(cur.TotalPnL-prev.TotalPnL)/p.PnLChangeDivisor, 100)

	return p.VolumeWeight*volumeChange +
		p.FrequencyWeight*frequencyChange +
		p.PortfolioWeight*portfolioChange +
		p.PnLWeight*pnlChange
}

// portfolioDelta measures portfolio turnover between snapshots: up to 50
// points for opened+closed positions, up to 50 points for total quantity
// drift across positions held in both snapshots.
func (s *Scorer) portfolioDelta(cur, prev domain.Snapshot) float64 {
	p := s.params

	curQty := cur.PositionQuantities()
	prevQty := prev.PositionQuantities()

	var opened, closed int
	var qtyDelta float64

	for sym, q := range curQty {
		pq, held := prevQty[sym]
		if !held {
			opened++
			continue
		}
		qtyDelta += math.Abs(q - pq)
	}
	for sym := range prevQty {
		if _, held := curQty[sym]; !held {
			closed++
		}
	}

	turnover := math.Min(float64(opened+closed)/p.PositionChangeCeiling*50, 50)
	drift := math.Min(qtyDelta/p.QuantityDeltaCeiling*50, 50)
	return turnover + drift
}

// capRatio returns value/ceiling capped at 1. A non-positive ceiling counts
// as already saturated.
func capRatio(value, ceiling float64) float64 {
	if ceiling <= 0 {
		return 1
	}
	return math.Min(value/ceiling, 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
