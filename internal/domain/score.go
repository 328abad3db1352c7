package domain

import "time"

// ActivityScore is the normalized activity measure produced for one entity in
// one cycle. Scores are immutable once created.
type ActivityScore struct {
	EntityID         EntityID  `json:"entity_id"`
	Timestamp        time.Time `json:"timestamp"`
	ActivityLevel    float64   `json:"activity_level"` // always in [0, 1]
	RawScore         float64   `json:"raw_score"`
	TradingVolume    float64   `json:"trading_volume"`
	TradeFrequency   int       `json:"trade_frequency"`
	PortfolioChanges int       `json:"portfolio_changes"`
}

// ActivityBand is the discrete color/level band derived from an activity
// level, used by heatmap consumers.
type ActivityBand string

const (
	BandVeryHigh ActivityBand = "very_high"
	BandHigh     ActivityBand = "high"
	BandMedium   ActivityBand = "medium"
	BandLow      ActivityBand = "low"
	BandVeryLow  ActivityBand = "very_low"
)

// BandFor maps an activity level onto its discrete band.
func BandFor(level float64) ActivityBand {
	switch {
	case level >= 0.8:
		return BandVeryHigh
	case level >= 0.6:
		return BandHigh
	case level >= 0.4:
		return BandMedium
	case level >= 0.2:
		return BandLow
	default:
		return BandVeryLow
	}
}

// HeatmapSlot is one fixed-width time bucket of a heatmap aggregate.
type HeatmapSlot struct {
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	AvgActivity float64      `json:"avg_activity"`
	TradeCount  int          `json:"trade_count"`
	Volume      float64      `json:"volume"`
	Band        ActivityBand `json:"band"`
}

// HeatmapAggregate is a derived, read-only view that buckets a history window
// into fixed-width slots. Slots with no samples carry zero values and the
// lowest band.
type HeatmapAggregate struct {
	EntityID  EntityID      `json:"entity_id"`
	From      time.Time     `json:"from"`
	To        time.Time     `json:"to"`
	SlotWidth time.Duration `json:"slot_width"`
	Slots     []HeatmapSlot `json:"slots"`
}
