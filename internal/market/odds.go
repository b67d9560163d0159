package market

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var half = decimal.NewFromFloat(0.5)

// Odds is the pool-implied probability of each side.
type Odds struct {
	Yes decimal.Decimal `json:"yes"`
	No  decimal.Decimal `json:"no"`
}

// Odds returns yesShares/pool and noShares/pool. An empty pool is quoted at
// even odds.
func (m *Market) Odds() Odds {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.pool.IsZero() {
		return Odds{Yes: half, No: half}
	}
	pool := toDecimal(&m.pool)
	yes := toDecimal(&m.yesShares).Div(pool)
	return Odds{
		Yes: yes,
		No:  decimal.NewFromInt(1).Sub(yes),
	}
}

func toDecimal(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), 0)
}
