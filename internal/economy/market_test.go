package economy

import (
	"errors"
	"math"
	"testing"
)

func TestAdjustmentBands(t *testing.T) {
	cases := []struct {
		ratio float64
		want  float64
	}{
		{2.0, 0.70},
		{1.2000001, 0.70},
		{1.2, 0.85},
		{1.0000001, 0.85},
		{1.0, 1.00},
		{0.9999999, 1.35},
		{0.8, 1.35},
		{0.7999999, 1.20},
		{0.0, 1.20},
	}
	for _, tc := range cases {
		if got := AdjustmentFor(tc.ratio); got != tc.want {
			t.Fatalf("AdjustmentFor(%v) = %v, want %v", tc.ratio, got, tc.want)
		}
	}
}

func TestSentimentBands(t *testing.T) {
	cases := []struct {
		ratio float64
		want  float64
	}{
		{1.21, 1.2},
		{1.2, 1.0},
		{1.0, 1.0},
		{0.8, 1.0},
		{0.79, 0.8},
	}
	for _, tc := range cases {
		if got := SentimentFor(tc.ratio); got != tc.want {
			t.Fatalf("SentimentFor(%v) = %v, want %v", tc.ratio, got, tc.want)
		}
	}
}

func TestRepriceModerateExcessDemand(t *testing.T) {
	m := NewMarketPrice(ItemFood, 500, 1000)
	m.Demand = 1200
	m.Reprice()

	if m.CurrentPrice != 425 {
		t.Fatalf("price = %d, want 425", m.CurrentPrice)
	}
	if m.Trend != TrendDown {
		t.Fatalf("trend = %s, want down", m.Trend)
	}
	if m.Sentiment != 1.0 {
		t.Fatalf("sentiment = %v, want 1.0", m.Sentiment)
	}
}

func TestRepriceIsIdempotent(t *testing.T) {
	for _, demand := range []float64{0, 500, 790, 950, 1000, 1100, 1300, 5000} {
		m := NewMarketPrice(ItemClothing, 50, 1000)
		m.Demand = demand
		m.Reprice()
		first, trend := m.CurrentPrice, m.Trend
		m.Reprice()
		if m.CurrentPrice != first || m.Trend != trend {
			t.Fatalf("demand %v: second reprice changed %d/%s to %d/%s", demand, first, trend, m.CurrentPrice, m.Trend)
		}
	}
}

func TestRepriceWithoutSupply(t *testing.T) {
	m := NewMarketPrice(ItemWater, 5, 0)
	m.Demand = 10
	m.Reprice()
	if m.CurrentPrice != 5 || m.Trend != TrendStable {
		t.Fatalf("got %d/%s, want 5/stable", m.CurrentPrice, m.Trend)
	}
}

func TestRepriceScarcityRaisesPrice(t *testing.T) {
	m := NewMarketPrice(ItemBattery, 10, 1000)
	m.Demand = 500
	m.Reprice()
	// 10 × 1.20 × 0.8
	if m.CurrentPrice != 9 {
		t.Fatalf("price = %d, want 9", m.CurrentPrice)
	}
	m.Demand = 900
	m.Reprice()
	if m.CurrentPrice != 13 || m.Trend != TrendUp {
		t.Fatalf("got %d/%s, want 13/up", m.CurrentPrice, m.Trend)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	m := NewMarketPrice(ItemCar, 50000, 1000)
	for i := 0; i < HistoryLimit+25; i++ {
		m.Reprice()
	}
	if len(m.History) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(m.History), HistoryLimit)
	}
}

func TestCondition(t *testing.T) {
	glut := []*MarketPrice{{Demand: 100, Supply: 200}, {Demand: 100, Supply: 100}}
	if got := Condition(glut); got != MarketOversupply {
		t.Fatalf("Condition = %s, want oversupply", got)
	}
	short := []*MarketPrice{{Demand: 300, Supply: 100}}
	if got := Condition(short); got != MarketShortage {
		t.Fatalf("Condition = %s, want shortage", got)
	}
	if got := Condition(nil); got != MarketBalanced {
		t.Fatalf("Condition = %s, want balanced", got)
	}
}

func TestOrderCost(t *testing.T) {
	cases := []struct {
		price int64
		qty   float64
		want  int64
	}{
		{500, 2, 1000},
		{3, 0.5, 2},
		{100, 0.001, 1},
	}
	for _, c := range cases {
		got, err := OrderCost(c.price, c.qty)
		if err != nil {
			t.Fatalf("OrderCost(%d, %v): %v", c.price, c.qty, err)
		}
		if got != c.want {
			t.Errorf("OrderCost(%d, %v) = %d, want %d", c.price, c.qty, got, c.want)
		}
	}

	for _, qty := range []float64{0, -1, 1e17, 1e300, math.NaN(), math.Inf(1)} {
		if _, err := OrderCost(500, qty); !errors.Is(err, ErrCostOverflow) {
			t.Errorf("OrderCost(500, %v) = %v, want ErrCostOverflow", qty, err)
		}
	}
}
