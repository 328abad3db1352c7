package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/calderhq/traderpulse/internal/config"
	"github.com/calderhq/traderpulse/internal/monitor"
)

func TestScoringParamsOverrides(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scoring.ColdTradeCeiling = 20
	cfg.Scoring.VolumeCeiling = 75000
	cfg.Scoring.PositionCeiling = 8
	cfg.Scoring.QuantityCeiling = 2500
	cfg.Scoring.PnLDivisor = 400

	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p := a.scoringParams()

	assert.Equal(t, 20.0, p.ColdTradeCeiling)
	assert.Equal(t, 75000.0, p.VolumeChangeCeiling)
	assert.Equal(t, 8.0, p.PositionChangeCeiling)
	assert.Equal(t, 2500.0, p.QuantityDeltaCeiling)
	assert.Equal(t, 400.0, p.PnLChangeDivisor)

	// Unset fields keep the built-in defaults.
	def := monitor.DefaultScoringParams()
	assert.Equal(t, def.ColdTradeWeight, p.ColdTradeWeight)
	assert.Equal(t, def.ColdVolumeCeiling, p.ColdVolumeCeiling)
	assert.Equal(t, def.FrequencyChangeCeiling, p.FrequencyChangeCeiling)
}
