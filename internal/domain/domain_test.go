package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityIDs(t *testing.T) {
	ids := ParseEntityIDs([]string{" t1 ", "t2", "", "t1", "  ", "t3"})
	assert.Equal(t, []EntityID{"t1", "t2", "t3"}, ids)

	assert.Empty(t, ParseEntityIDs(nil))
	assert.Empty(t, ParseEntityIDs([]string{"", "  "}))
}

func TestSnapshotTradingVolume(t *testing.T) {
	snap := Snapshot{
		Trades: []TradeFill{
			{Symbol: "BTC-USD", Quantity: 0.5, Price: 60000},
			{Symbol: "ETH-USD", Quantity: 2, Price: 3000},
		},
	}
	assert.InDelta(t, 36000, snap.TradingVolume(), 1e-9)
	assert.Zero(t, Snapshot{}.TradingVolume())
}

func TestSnapshotPositionQuantities(t *testing.T) {
	snap := Snapshot{
		Positions: []Position{
			{Symbol: "BTC-USD", Quantity: 1.5},
			{Symbol: "ETH-USD", Quantity: -2},
			{Symbol: "BTC-USD", Quantity: 0.5},
		},
	}
	q := snap.PositionQuantities()
	assert.InDelta(t, 2.0, q["BTC-USD"], 1e-9)
	assert.InDelta(t, 2.0, q["ETH-USD"], 1e-9)
}

func TestSnapshotValidate(t *testing.T) {
	valid := Snapshot{
		EntityID:  "t1",
		Timestamp: time.Now(),
		Positions: []Position{{Symbol: "BTC-USD", Quantity: 1}},
		Trades:    []TradeFill{{Symbol: "BTC-USD", Quantity: 1, Price: 100}},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"missing entity id", func(s *Snapshot) { s.EntityID = "" }},
		{"missing timestamp", func(s *Snapshot) { s.Timestamp = time.Time{} }},
		{"nan balance", func(s *Snapshot) { s.Balance = math.NaN() }},
		{"inf pnl", func(s *Snapshot) { s.TotalPnL = math.Inf(1) }},
		{"position without symbol", func(s *Snapshot) { s.Positions[0].Symbol = "" }},
		{"nan position quantity", func(s *Snapshot) { s.Positions[0].Quantity = math.NaN() }},
		{"trade without symbol", func(s *Snapshot) { s.Trades[0].Symbol = "" }},
		{"negative trade price", func(s *Snapshot) { s.Trades[0].Price = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := valid
			snap.Positions = append([]Position(nil), valid.Positions...)
			snap.Trades = append([]TradeFill(nil), valid.Trades...)
			tc.mutate(&snap)
			err := snap.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestBandFor(t *testing.T) {
	cases := []struct {
		level float64
		want  ActivityBand
	}{
		{0, BandVeryLow},
		{0.19, BandVeryLow},
		{0.2, BandLow},
		{0.4, BandMedium},
		{0.59, BandMedium},
		{0.6, BandHigh},
		{0.8, BandVeryHigh},
		{1.0, BandVeryHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BandFor(tc.level), "level %v", tc.level)
	}
}
