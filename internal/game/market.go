package game

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/persistence"
)

// MarketPrices lists the current price row of every item.
func (s *Service) MarketPrices(ctx context.Context) ([]*economy.MarketPrice, error) {
	out, err := s.DB.ListMarket(ctx)
	if err != nil {
		return nil, translate(err, "market")
	}
	return out, nil
}

// MarketPrice returns one item's price row.
func (s *Service) MarketPrice(ctx context.Context, item economy.Item) (*economy.MarketPrice, error) {
	if !item.Valid() {
		return nil, invalid("unknown item %q", item)
	}
	p, err := s.DB.GetPrice(ctx, item)
	if err != nil {
		return nil, translate(err, "item "+string(item))
	}
	return p, nil
}

// MarketSummary is the aggregate view of the market.
type MarketSummary struct {
	Condition economy.MarketCondition `json:"condition"`
	Demand    float64                 `json:"total_demand"`
	Supply    float64                 `json:"total_supply"`
	Ratio     float64                 `json:"ratio"`
}

// MarketStatus classifies total supply against total demand.
func (s *Service) MarketStatus(ctx context.Context) (*MarketSummary, error) {
	prices, err := s.MarketPrices(ctx)
	if err != nil {
		return nil, err
	}
	st := &MarketSummary{Condition: economy.Condition(prices), Ratio: 1}
	for _, p := range prices {
		st.Demand += p.Demand
		st.Supply += p.Supply
	}
	if st.Supply > 0 {
		st.Ratio = st.Demand / st.Supply
	}
	return st, nil
}

// Order is one line of a purchase or consumption request.
type Order struct {
	Item     economy.Item `json:"item_type"`
	Quantity float64      `json:"quantity"`
}

// Receipt reports what an order cost.
type Receipt struct {
	Item      economy.Item `json:"item_type"`
	Quantity  float64      `json:"quantity"`
	UnitPrice int64        `json:"unit_price"`
	Cost      int64        `json:"total_cost"`
}

func (s *Service) checkOrder(o Order) error {
	if !o.Item.Valid() {
		return invalid("unknown item %q", o.Item)
	}
	if math.IsNaN(o.Quantity) || math.IsInf(o.Quantity, 0) || o.Quantity <= 0 {
		return invalid("quantity must be a positive number")
	}
	if o.Quantity > s.Game.MaxOrderQuantity {
		return invalid("quantity %g exceeds the per-order limit of %g", o.Quantity, s.Game.MaxOrderQuantity)
	}
	return nil
}

// Purchase buys qty of an item at the current price. The debit and the
// market update commit together: the item's demand rises and its supply
// falls by qty, or nothing changes.
func (s *Service) Purchase(ctx context.Context, agentID string, o Order) (*Receipt, error) {
	if err := s.checkOrder(o); err != nil {
		return nil, err
	}
	tr, err := s.DB.Buy(ctx, agentID, o.Item, o.Quantity)
	if err != nil {
		return nil, translate(err, "agent "+agentID)
	}
	slog.Debug("items purchased", "agent", agentID, "item", o.Item, "qty", o.Quantity, "cost", tr.Cost)
	return &Receipt{Item: tr.Item, Quantity: tr.Quantity, UnitPrice: tr.UnitPrice, Cost: tr.Cost}, nil
}

// Consumption reports a consume call.
type Consumption struct {
	Items        []Receipt `json:"items_consumed"`
	Cost         int64     `json:"total_cost"`
	Satisfaction float64   `json:"satisfaction_level"`
}

// satisfactionBonus is what consuming an item adds on top of the base.
var satisfactionBonus = map[economy.Item]float64{
	economy.ItemFood:          0.2,
	economy.ItemClothing:      0.1,
	economy.ItemHousing:       0.15,
	economy.ItemEntertainment: 0.1,
}

const baseSatisfaction = 0.5

// ConsumeSatisfaction is the base level plus the bonus of each consumed
// line, capped at 1.
func ConsumeSatisfaction(orders []Order) float64 {
	v := baseSatisfaction
	for _, o := range orders {
		v += satisfactionBonus[o.Item]
	}
	return min(v, 1.0)
}

// Consume records demand for goods the agent's population uses and resets
// its satisfaction from what was consumed. No money moves.
func (s *Service) Consume(ctx context.Context, agentID string, orders []Order) (*Consumption, error) {
	if len(orders) == 0 {
		return nil, invalid("items are required")
	}
	for _, o := range orders {
		if err := s.checkOrder(o); err != nil {
			return nil, err
		}
	}
	lines := make([]persistence.Trade, len(orders))
	for i, o := range orders {
		lines[i] = persistence.Trade{Item: o.Item, Quantity: o.Quantity}
	}
	level := ConsumeSatisfaction(orders)
	lines, err := s.DB.RecordConsumption(ctx, agentID, lines, level, s.Clock().UnixMilli())
	if err != nil {
		return nil, translate(err, "population")
	}

	out := &Consumption{Satisfaction: level}
	for _, l := range lines {
		out.Items = append(out.Items, Receipt{Item: l.Item, Quantity: l.Quantity, UnitPrice: l.UnitPrice, Cost: l.Cost})
		out.Cost += l.Cost
	}
	return out, nil
}

// Rankings is the leaderboard as last computed by the tick.
type Rankings struct {
	Standings  []agents.Standing `json:"standings"`
	ComputedAt time.Time         `json:"computed_at"`
	Stale      bool              `json:"stale"`
}

// Leaderboard returns the top n standings from the cached snapshot. The
// snapshot is never recomputed on read.
func (s *Service) Leaderboard(n int) *Rankings {
	if n <= 0 || n > s.Game.LeaderboardSize {
		n = s.Game.LeaderboardSize
	}
	if s.Sim == nil {
		return &Rankings{Standings: []agents.Standing{}}
	}
	lb := s.Sim.Leaders
	top := lb.Top(n)
	if top == nil {
		top = []agents.Standing{}
	}
	return &Rankings{Standings: top, ComputedAt: lb.ComputedAt(), Stale: lb.Stale(s.Clock())}
}
