package traderapi

import (
	"time"

	"github.com/calderhq/traderpulse/internal/domain"
)

// accountResponse is the provider's account snapshot payload.
type accountResponse struct {
	AccountID     string             `json:"account_id"`
	Balance       float64            `json:"balance"`
	TotalPnL      float64            `json:"total_pnl"`
	RealizedPnL   float64            `json:"realized_pnl"`
	UnrealizedPnL float64            `json:"unrealized_pnl"`
	Positions     []positionPayload  `json:"positions"`
	Trades        []tradeFillPayload `json:"recent_trades"`
	Timestamp     int64              `json:"timestamp"` // unix ms
}

type positionPayload struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	NotionalValue float64 `json:"notional_value"`
}

type tradeFillPayload struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	RealizedPnL float64 `json:"realized_pnl"`
	Timestamp   int64   `json:"timestamp"` // unix ms
}

// errorResponse is the provider's error payload.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toDomain converts the provider payload into a domain snapshot. A payload
// without a timestamp is stamped with the receive time.
func (r accountResponse) toDomain(entityID domain.EntityID) domain.Snapshot {
	snap := domain.Snapshot{
		EntityID:      entityID,
		Balance:       r.Balance,
		TotalPnL:      r.TotalPnL,
		RealizedPnL:   r.RealizedPnL,
		UnrealizedPnL: r.UnrealizedPnL,
		Timestamp:     time.Now().UTC(),
	}
	if r.Timestamp > 0 {
		snap.Timestamp = time.UnixMilli(r.Timestamp).UTC()
	}

	for _, p := range r.Positions {
		snap.Positions = append(snap.Positions, domain.Position{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AvgPrice:      p.AvgPrice,
			CurrentPrice:  p.CurrentPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			NotionalValue: p.NotionalValue,
		})
	}
	for _, t := range r.Trades {
		fill := domain.TradeFill{
			Symbol:      t.Symbol,
			Side:        t.Side,
			Quantity:    t.Quantity,
			Price:       t.Price,
			RealizedPnL: t.RealizedPnL,
		}
		if t.Timestamp > 0 {
			fill.Timestamp = time.UnixMilli(t.Timestamp).UTC()
		}
		snap.Trades = append(snap.Trades, fill)
	}

	return snap
}
