// Package economy provides market pricing, facility production ledgers,
// and loan arithmetic. Everything here is pure: persistence and scheduling
// live in other packages.
package economy

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Item is a tradeable commodity. The set is closed.
type Item string

const (
	ItemElectricity          Item = "electricity"
	ItemWater                Item = "water"
	ItemFood                 Item = "food"
	ItemClothing             Item = "clothing"
	ItemHousing              Item = "housing"
	ItemCar                  Item = "car"
	ItemBattery              Item = "battery"
	ItemConstructionMaterial Item = "construction_material"
	ItemComputingPower       Item = "computing_power"
	ItemEntertainment        Item = "entertainment"
)

// Items lists every commodity in seeding order.
var Items = []Item{
	ItemElectricity,
	ItemWater,
	ItemFood,
	ItemClothing,
	ItemHousing,
	ItemCar,
	ItemBattery,
	ItemConstructionMaterial,
	ItemComputingPower,
	ItemEntertainment,
}

// Valid reports whether i is a known commodity.
func (i Item) Valid() bool {
	for _, it := range Items {
		if it == i {
			return true
		}
	}
	return false
}

// Trend labels the current price relative to its base.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// HistoryLimit bounds the price history kept per item.
const HistoryLimit = 100

// MarketPrice is the shared supply/demand state for one commodity.
type MarketPrice struct {
	Item         Item    `db:"item" json:"item"`
	BasePrice    int64   `db:"base_price" json:"base_price"`
	CurrentPrice int64   `db:"current_price" json:"current_price"`
	Demand       float64 `db:"demand" json:"demand"`
	Supply       float64 `db:"supply" json:"supply"`
	Trend        Trend   `db:"trend" json:"trend"`
	Sentiment    float64 `db:"sentiment" json:"sentiment"`
	History      []int64 `db:"-" json:"history"`
	UpdatedAt    int64   `db:"updated_at" json:"updated_at"`
}

// NewMarketPrice seeds an item at its base price with balanced counters.
func NewMarketPrice(item Item, base int64, initial float64) *MarketPrice {
	return &MarketPrice{
		Item:         item,
		BasePrice:    base,
		CurrentPrice: base,
		Demand:       initial,
		Supply:       initial,
		Trend:        TrendStable,
		Sentiment:    1.0,
	}
}

// Ratio returns demand over supply, or 1 when there is no supply.
func (m *MarketPrice) Ratio() float64 {
	if m.Supply <= 0 {
		return 1.0
	}
	return m.Demand / m.Supply
}

// Reprice derives the current price, trend and sentiment from the
// demand/supply ratio alone. The result does not depend on the previous
// price, so calling it twice without a counter change is a no-op apart
// from the history entry.
func (m *MarketPrice) Reprice() {
	ratio := m.Ratio()
	m.Sentiment = SentimentFor(ratio)
	m.CurrentPrice = decimal.NewFromInt(m.BasePrice).
		Mul(decimal.NewFromFloat(AdjustmentFor(ratio))).
		Mul(decimal.NewFromFloat(m.Sentiment)).
		Floor().IntPart()
	m.Trend = TrendFor(m.CurrentPrice, m.BasePrice)

	m.History = append(m.History, m.CurrentPrice)
	if len(m.History) > HistoryLimit {
		m.History = m.History[len(m.History)-HistoryLimit:]
	}
}

// ErrCostOverflow rejects orders whose total cannot be represented as a
// balance.
var ErrCostOverflow = errors.New("order cost out of range")

var maxCost = decimal.NewFromInt(math.MaxInt64)

// OrderCost is ceil(price × qty). Quantities that are not finite and
// positive, and totals past the int64 range, are rejected.
func OrderCost(price int64, qty float64) (int64, error) {
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 || price < 0 {
		return 0, ErrCostOverflow
	}
	cost := decimal.NewFromInt(price).Mul(decimal.NewFromFloat(qty)).Ceil()
	if cost.GreaterThan(maxCost) {
		return 0, ErrCostOverflow
	}
	return cost.IntPart(), nil
}

// AdjustmentFor maps a demand/supply ratio to a price multiplier.
// Bands: >1.2 → 0.70, (1.0,1.2] → 0.85, 1.0 → 1.00, [0.8,1.0) → 1.35, <0.8 → 1.20.
func AdjustmentFor(ratio float64) float64 {
	switch {
	case ratio > 1.2:
		return 0.70
	case ratio > 1.0:
		return 0.85
	case ratio < 0.8:
		return 1.20
	case ratio < 1.0:
		return 1.35
	default:
		return 1.0
	}
}

// SentimentFor snaps the ratio to one of {0.8, 1.0, 1.2}.
func SentimentFor(ratio float64) float64 {
	switch {
	case ratio > 1.2:
		return 1.2
	case ratio < 0.8:
		return 0.8
	default:
		return 1.0
	}
}

// TrendFor labels price against base with a ±10% dead band.
func TrendFor(price, base int64) Trend {
	p, b := float64(price), float64(base)
	switch {
	case p > b*1.1:
		return TrendUp
	case p < b*0.9:
		return TrendDown
	default:
		return TrendStable
	}
}

// MarketCondition summarizes aggregate supply against aggregate demand.
type MarketCondition string

const (
	MarketOversupply MarketCondition = "oversupply"
	MarketShortage   MarketCondition = "shortage"
	MarketBalanced   MarketCondition = "balanced"
)

// Condition classifies a set of prices the same way individual items are
// banded: more than 20% surplus either way tips the label.
func Condition(prices []*MarketPrice) MarketCondition {
	var demand, supply float64
	for _, p := range prices {
		demand += p.Demand
		supply += p.Supply
	}
	switch {
	case supply > demand*1.2:
		return MarketOversupply
	case demand > supply*1.2:
		return MarketShortage
	default:
		return MarketBalanced
	}
}
