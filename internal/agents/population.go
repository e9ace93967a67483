// Population dynamics: employment pools, daily consumption, growth and loss.
package agents

import (
	"errors"
	"math"

	"github.com/talgya/tycoon/internal/economy"
)

// Need is one of the four consumption categories, in purchase priority order.
type Need string

const (
	NeedFood          Need = "food"
	NeedClothing      Need = "clothing"
	NeedHousing       Need = "housing"
	NeedEntertainment Need = "entertainment"
)

// Needs lists the categories in the order they are bought.
var Needs = []Need{NeedFood, NeedClothing, NeedHousing, NeedEntertainment}

// Item is the market commodity that satisfies the need.
func (n Need) Item() economy.Item {
	return economy.Item(n)
}

// Rates are daily per-capita consumption quantities.
type Rates struct {
	Food          float64 `yaml:"food" json:"food"`
	Clothing      float64 `yaml:"clothing" json:"clothing"`
	Housing       float64 `yaml:"housing" json:"housing"`
	Entertainment float64 `yaml:"entertainment" json:"entertainment"`
}

// DefaultRates returns the stock per-capita rates.
func DefaultRates() Rates {
	return Rates{Food: 1, Clothing: 0.1, Housing: 0.01, Entertainment: 0.05}
}

// Of returns the rate for n.
func (r Rates) Of(n Need) float64 {
	switch n {
	case NeedFood:
		return r.Food
	case NeedClothing:
		return r.Clothing
	case NeedHousing:
		return r.Housing
	case NeedEntertainment:
		return r.Entertainment
	}
	return 0
}

// Sum is the total per-capita quantity across categories.
func (r Rates) Sum() float64 {
	return r.Food + r.Clothing + r.Housing + r.Entertainment
}

// CriticalSatisfaction is the threshold below which population declines.
const CriticalSatisfaction = 0.2

// ShortfallPenalty is subtracted from satisfaction when consumption is unmet.
const ShortfallPenalty = 0.2

var (
	ErrInvalidCount  = errors.New("worker count must be positive")
	ErrNotEnoughIdle = errors.New("not enough unemployed population")
	ErrNotEnoughJobs = errors.New("not enough employed population")
)

// Population is the per-agent workforce. Employed + Unemployed == Total.
type Population struct {
	AgentID          string  `db:"agent_id" json:"agent_id"`
	Total            int     `db:"total" json:"total"`
	Employed         int     `db:"employed" json:"employed"`
	Unemployed       int     `db:"unemployed" json:"unemployed"`
	Satisfaction     float64 `db:"satisfaction" json:"satisfaction"`
	GrowthRate       float64 `db:"growth_rate" json:"growth_rate"`
	FoodMet          float64 `db:"food_met" json:"food_met"`
	ClothingMet      float64 `db:"clothing_met" json:"clothing_met"`
	HousingMet       float64 `db:"housing_met" json:"housing_met"`
	EntertainmentMet float64 `db:"entertainment_met" json:"entertainment_met"`
	Shortage         string  `db:"shortage" json:"shortage,omitempty"`
	UpdatedAt        int64   `db:"updated_at" json:"updated_at"`
}

// NewPopulation returns a fully unemployed population.
func NewPopulation(agentID string, total int, growthRate float64) *Population {
	return &Population{
		AgentID:      agentID,
		Total:        total,
		Unemployed:   total,
		Satisfaction: 0.5,
		GrowthRate:   growthRate,
	}
}

// Employ moves n people from the unemployed pool into jobs.
func (p *Population) Employ(n int) error {
	if n <= 0 {
		return ErrInvalidCount
	}
	if p.Unemployed < n {
		return ErrNotEnoughIdle
	}
	p.Unemployed -= n
	p.Employed += n
	return nil
}

// Fire moves n people back into the unemployed pool.
func (p *Population) Fire(n int) error {
	if n <= 0 {
		return ErrInvalidCount
	}
	if p.Employed < n {
		return ErrNotEnoughJobs
	}
	p.Employed -= n
	p.Unemployed += n
	return nil
}

// Required is the quantity of n the whole population needs today.
func (p *Population) Required(r Rates, n Need) float64 {
	return float64(p.Total) * r.Of(n)
}

// Met returns the recorded met quantity for n.
func (p *Population) Met(n Need) float64 {
	switch n {
	case NeedFood:
		return p.FoodMet
	case NeedClothing:
		return p.ClothingMet
	case NeedHousing:
		return p.HousingMet
	case NeedEntertainment:
		return p.EntertainmentMet
	}
	return 0
}

// SetMet records the met quantity for n.
func (p *Population) SetMet(n Need, qty float64) {
	switch n {
	case NeedFood:
		p.FoodMet = qty
	case NeedClothing:
		p.ClothingMet = qty
	case NeedHousing:
		p.HousingMet = qty
	case NeedEntertainment:
		p.EntertainmentMet = qty
	}
}

// Grow adds floor(total × growthRate) newcomers, all unemployed.
func (p *Population) Grow() int {
	g := int(math.Floor(float64(p.Total) * p.GrowthRate))
	p.Total += g
	p.Unemployed += g
	return g
}

// Lose removes floor(total × lossRate) people, doubled for a food shortage.
// Employment is clamped to the new total. It returns the number lost and
// the number of jobs that disappeared.
func (p *Population) Lose(lossRate float64) (lost, laidOff int) {
	lost = int(math.Floor(float64(p.Total) * lossRate))
	if p.Shortage == string(NeedFood) {
		lost *= 2
	}
	lost = economy.Clamp(lost, 0, p.Total)
	p.Total -= lost
	if p.Employed > p.Total {
		laidOff = p.Employed - p.Total
		p.Employed = p.Total
	}
	p.Unemployed = p.Total - p.Employed
	return lost, laidOff
}

// AdvanceDay applies growth, or loss when satisfaction is critical.
// The returned delta is signed; laidOff counts jobs lost with the people.
func (p *Population) AdvanceDay(lossRate float64) (delta, laidOff int) {
	if p.Satisfaction < CriticalSatisfaction {
		lost, jobs := p.Lose(lossRate)
		return -lost, jobs
	}
	return p.Grow(), 0
}

// RecomputeSatisfaction sets satisfaction to met over required across all
// categories, clamped to [0, 1]. An empty population keeps its value.
func (p *Population) RecomputeSatisfaction(r Rates) float64 {
	required := float64(p.Total) * r.Sum()
	if required <= 0 {
		return p.Satisfaction
	}
	var met float64
	for _, n := range Needs {
		met += p.Met(n)
	}
	p.Satisfaction = economy.Clamp(met/required, 0, 1)
	return p.Satisfaction
}

// Purchase is what a population bought of one category.
type Purchase struct {
	Need     Need
	Quantity float64
	Cost     int64
}

// Basket is the outcome of one day's shopping.
type Basket struct {
	Purchases []Purchase
	Cost      int64
	Shortage  Need // first category not fully met, empty when none
}

// Shop buys required quantities in priority order at the given unit prices
// until the budget runs out. Partial quantities are allowed.
func Shop(p *Population, r Rates, prices map[economy.Item]int64, budget int64) Basket {
	var b Basket
	for _, n := range Needs {
		required := p.Required(r, n)
		if required <= 0 {
			continue
		}
		price := prices[n.Item()]
		remaining := budget - b.Cost

		qty := required
		if price > 0 {
			affordable := float64(remaining) / float64(price)
			if affordable < qty {
				qty = math.Max(affordable, 0)
			}
		}
		cost := int64(math.Ceil(qty*float64(price) - 1e-9))
		cost = economy.Clamp(cost, 0, economy.Clamp(remaining, 0, math.MaxInt64))

		if qty < required && b.Shortage == "" {
			b.Shortage = n
		}
		b.Purchases = append(b.Purchases, Purchase{Need: n, Quantity: qty, Cost: cost})
		b.Cost += cost
	}
	return b
}
