package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"perpRiskBot/internal/domain"
)

// qtyDecimals is the precision of every computed quantity.
const qtyDecimals = 6

// PositionSize returns the order quantity in base units.
//
// The risk leg sizes the position so that a stop-out at slPct loses exactly
// riskPct of the balance. The margin leg caps the notional at
// balance*maxMarginPct*leverage. The smaller of the two wins. Degenerate
// inputs yield 0, which callers treat as "skip this tick".
func PositionSize(price, balance, riskPct, slPct float64, leverage int, maxMarginPct float64) float64 {
	if price <= 0 {
		return 0
	}
	slMove := price * slPct / 100.0
	if slMove <= 0 {
		return 0
	}
	riskUSDT := balance * riskPct / 100.0
	qtyByRisk := riskUSDT / slMove

	maxMarginUSDT := balance * maxMarginPct / 100.0
	qtyByMargin := maxMarginUSDT * float64(leverage) / price

	qty := math.Max(0, math.Min(qtyByRisk, qtyByMargin))
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	return decimal.NewFromFloat(qty).Round(qtyDecimals).InexactFloat64()
}

// SizeFor applies PositionSize with the risk parameters from st.
func SizeFor(st domain.Settings, price, balance float64) float64 {
	return PositionSize(price, balance, st.RiskPct, st.SLPct, st.Leverage, st.MaxMarginPct)
}

// ProtectiveLevels returns stop-loss and take-profit for a fill at price.
func ProtectiveLevels(side domain.Side, price, slPct, tpPct float64) (sl, tp float64) {
	if side == domain.Short {
		return price * (1 + slPct/100.0), price * (1 - tpPct/100.0)
	}
	return price * (1 - slPct/100.0), price * (1 + tpPct/100.0)
}
