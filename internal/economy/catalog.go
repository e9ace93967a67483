package economy

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Catalog is the static numeric configuration of the economy.
type Catalog struct {
	Facilities map[FacilityType]FacilitySpec `yaml:"facilities" json:"facilities"`
	Loans      map[LoanType]LoanTerms        `yaml:"loans" json:"loans"`
	BasePrices map[Item]int64                `yaml:"base_prices" json:"base_prices"`
	// InitialVolume seeds both demand and supply for every item.
	InitialVolume float64 `yaml:"initial_volume" json:"initial_volume"`
}

// Facility returns the spec for t. Validate guarantees presence.
func (c Catalog) Facility(t FacilityType) FacilitySpec {
	return c.Facilities[t]
}

// Validate checks that every closed enum has a row.
func (c *Catalog) Validate() error {
	for _, t := range FacilityTypes {
		spec, ok := c.Facilities[t]
		if !ok {
			return fmt.Errorf("facility %q missing from catalog", t)
		}
		if !spec.Output.Valid() {
			return fmt.Errorf("facility %q outputs unknown item %q", t, spec.Output)
		}
	}
	for _, t := range LoanTypes {
		terms, ok := c.Loans[t]
		if !ok {
			return fmt.Errorf("loan type %q missing from catalog", t)
		}
		if terms.MaxAmount <= 0 || terms.MaxDays <= 0 || terms.DailyRate < 0 {
			return fmt.Errorf("loan type %q has invalid terms", t)
		}
	}
	for _, it := range Items {
		if p, ok := c.BasePrices[it]; !ok || p <= 0 {
			return fmt.Errorf("item %q has no base price", it)
		}
	}
	return nil
}

// DefaultCatalog returns the stock tables.
func DefaultCatalog() Catalog {
	return Catalog{
		Facilities: map[FacilityType]FacilitySpec{
			FacilityAgriculture:    {BuildCost: 2000, BaseProduction: 5, Output: ItemFood, FixedCost: 100, Wage: 20, BaseWorkers: 10, PowerDraw: 10},
			FacilityMining:         {BuildCost: 3000, BaseProduction: 10, Output: ItemConstructionMaterial, FixedCost: 150, Wage: 20, BaseWorkers: 15, PowerDraw: 20},
			FacilityForestry:       {BuildCost: 1500, BaseProduction: 20, Output: ItemConstructionMaterial, FixedCost: 80, Wage: 20, BaseWorkers: 8, PowerDraw: 5},
			FacilityFishery:        {BuildCost: 2500, BaseProduction: 3, Output: ItemFood, FixedCost: 120, Wage: 20, BaseWorkers: 10, PowerDraw: 10},
			FacilityFoodProcessing: {BuildCost: 5000, BaseProduction: 10, Output: ItemFood, FixedCost: 200, Wage: 30, BaseWorkers: 20, PowerDraw: 30},
			FacilityMachinery:      {BuildCost: 8000, BaseProduction: 5, Output: ItemCar, FixedCost: 300, Wage: 30, BaseWorkers: 25, PowerDraw: 40},
			FacilityTextile:        {BuildCost: 6000, BaseProduction: 100, Output: ItemClothing, FixedCost: 250, Wage: 30, BaseWorkers: 20, PowerDraw: 25},
			FacilityChemical:       {BuildCost: 10000, BaseProduction: 2, Output: ItemBattery, FixedCost: 400, Wage: 30, BaseWorkers: 20, PowerDraw: 50},
			FacilitySoftware:       {BuildCost: 15000, BaseProduction: 5, Output: ItemComputingPower, FixedCost: 500, Wage: 50, BaseWorkers: 10, PowerDraw: 30},
			FacilityRetail:         {BuildCost: 8000, BaseProduction: 20, Output: ItemClothing, FixedCost: 300, Wage: 30, BaseWorkers: 12, PowerDraw: 15},
			FacilityEducation:      {BuildCost: 10000, BaseProduction: 100, Output: ItemComputingPower, FixedCost: 400, Wage: 50, BaseWorkers: 15, PowerDraw: 15},
			FacilityMedical:        {BuildCost: 12000, BaseProduction: 50, Output: ItemWater, FixedCost: 450, Wage: 50, BaseWorkers: 15, PowerDraw: 25},
			FacilityEntertainment:  {BuildCost: 9000, BaseProduction: 10, Output: ItemEntertainment, FixedCost: 350, Wage: 50, BaseWorkers: 10, PowerDraw: 20},
			FacilityEnergy:         {BuildCost: 20000, BaseProduction: 1000, Output: ItemElectricity, FixedCost: 600, Wage: 30, BaseWorkers: 20, PowerDraw: 0},
		},
		Loans: map[LoanType]LoanTerms{
			LoanShort:     {MaxAmount: 5000, DailyRate: 0.005, MaxDays: 7},
			LoanMedium:    {MaxAmount: 20000, DailyRate: 0.003, MaxDays: 15},
			LoanLong:      {MaxAmount: 50000, DailyRate: 0.002, MaxDays: 30},
			LoanEmergency: {MaxAmount: 2000, DailyRate: 0.01, MaxDays: 3},
		},
		BasePrices: map[Item]int64{
			ItemElectricity:          1,
			ItemWater:                5,
			ItemFood:                 500,
			ItemClothing:             50,
			ItemHousing:              100000,
			ItemCar:                  50000,
			ItemBattery:              10,
			ItemConstructionMaterial: 100,
			ItemComputingPower:       1000,
			ItemEntertainment:        100,
		},
		InitialVolume: 1000,
	}
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
