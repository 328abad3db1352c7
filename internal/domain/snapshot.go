package domain

import (
	"fmt"
	"math"
	"time"
)

// Position is a single open position inside a snapshot.
type Position struct {
	Symbol        string
	Quantity      float64
	AvgPrice      float64
	CurrentPrice  float64
	UnrealizedPnL float64
	NotionalValue float64
}

// TradeFill is a single executed trade inside a snapshot.
type TradeFill struct {
	Symbol      string
	Side        string // "buy" or "sell"
	Quantity    float64
	Price       float64
	Timestamp   time.Time
	RealizedPnL float64
}

// Snapshot is a point-in-time read of one entity's trading state as reported
// by the external provider. Snapshots are consumed within a single cycle;
// only the most recent one per entity is retained for delta scoring.
type Snapshot struct {
	EntityID      EntityID
	Balance       float64
	TotalPnL      float64
	RealizedPnL   float64
	UnrealizedPnL float64
	Positions     []Position
	Trades        []TradeFill
	Timestamp     time.Time
}

// TradingVolume returns the summed quantity*price notional over the
// snapshot's trades.
func (s Snapshot) TradingVolume() float64 {
	var vol float64
	for _, t := range s.Trades {
		vol += t.Quantity * t.Price
	}
	return vol
}

// PositionQuantities returns per-symbol absolute quantities for the
// snapshot's positions. Duplicate symbols are summed.
func (s Snapshot) PositionQuantities() map[string]float64 {
	q := make(map[string]float64, len(s.Positions))
	for _, p := range s.Positions {
		q[p.Symbol] += math.Abs(p.Quantity)
	}
	return q
}

// Validate checks the snapshot for required fields and out-of-range numerics.
// It is applied at the fetcher boundary so that malformed provider payloads
// are rejected before they reach the scoring pipeline.
func (s Snapshot) Validate() error {
	if s.EntityID == "" {
		return fmt.Errorf("%w: missing entity id", ErrInvalidSnapshot)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSnapshot)
	}
	for _, v := range []float64{s.Balance, s.TotalPnL, s.RealizedPnL, s.UnrealizedPnL} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite balance/pnl value", ErrInvalidSnapshot)
		}
	}
	for i, p := range s.Positions {
		if p.Symbol == "" {
			return fmt.Errorf("%w: position %d missing symbol", ErrInvalidSnapshot, i)
		}
		if math.IsNaN(p.Quantity) || math.IsInf(p.Quantity, 0) {
			return fmt.Errorf("%w: position %s has non-finite quantity", ErrInvalidSnapshot, p.Symbol)
		}
	}
	for i, t := range s.Trades {
		if t.Symbol == "" {
			return fmt.Errorf("%w: trade %d missing symbol", ErrInvalidSnapshot, i)
		}
		if t.Quantity < 0 || t.Price < 0 {
			return fmt.Errorf("%w: trade %s has negative quantity or price", ErrInvalidSnapshot, t.Symbol)
		}
	}
	return nil
}
