package economy

import (
	"errors"
	"fmt"
	"time"
)

// Sector groups facility types for the staffing efficiency bonus.
type Sector uint8

const (
	SectorPrimary Sector = iota
	SectorSecondary
	SectorTertiary
)

func (s Sector) String() string {
	switch s {
	case SectorPrimary:
		return "primary"
	case SectorSecondary:
		return "secondary"
	case SectorTertiary:
		return "tertiary"
	}
	return fmt.Sprintf("sector(%d)", uint8(s))
}

// StaffingMultiplier is the efficiency gained per full base crew.
func (s Sector) StaffingMultiplier() float64 {
	switch s {
	case SectorSecondary:
		return 0.2
	case SectorTertiary:
		return 0.5
	}
	return 0.0
}

// FacilityType is one of the fourteen buildable categories.
type FacilityType string

const (
	FacilityAgriculture    FacilityType = "agriculture"
	FacilityMining         FacilityType = "mining"
	FacilityForestry       FacilityType = "forestry"
	FacilityFishery        FacilityType = "fishery"
	FacilityFoodProcessing FacilityType = "food_processing"
	FacilityMachinery      FacilityType = "machinery_manufacturing"
	FacilityTextile        FacilityType = "textile_clothing"
	FacilityChemical       FacilityType = "chemical"
	FacilitySoftware       FacilityType = "software_development"
	FacilityRetail         FacilityType = "retail_commerce"
	FacilityEducation      FacilityType = "education_training"
	FacilityMedical        FacilityType = "medical_healthcare"
	FacilityEntertainment  FacilityType = "entertainment_culture"
	FacilityEnergy         FacilityType = "energy_electricity"
)

// FacilityTypes lists every facility type.
var FacilityTypes = []FacilityType{
	FacilityAgriculture, FacilityMining, FacilityForestry, FacilityFishery,
	FacilityFoodProcessing, FacilityMachinery, FacilityTextile, FacilityChemical,
	FacilitySoftware, FacilityRetail, FacilityEducation, FacilityMedical,
	FacilityEntertainment, FacilityEnergy,
}

// Sector returns the economic sector of t.
func (t FacilityType) Sector() Sector {
	switch t {
	case FacilityAgriculture, FacilityMining, FacilityForestry, FacilityFishery:
		return SectorPrimary
	case FacilityFoodProcessing, FacilityMachinery, FacilityTextile, FacilityChemical:
		return SectorSecondary
	}
	return SectorTertiary
}

// Valid reports whether t is a known facility type.
func (t FacilityType) Valid() bool {
	for _, ft := range FacilityTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// FacilitySpec holds the static numbers for one facility type.
type FacilitySpec struct {
	BuildCost      int64   `yaml:"build_cost" json:"build_cost"`
	BaseProduction float64 `yaml:"base_production" json:"base_production"`
	Output         Item    `yaml:"output" json:"output"`
	FixedCost      float64 `yaml:"fixed_cost" json:"fixed_cost"`
	Wage           int64   `yaml:"wage" json:"wage"`
	BaseWorkers    int     `yaml:"base_workers" json:"base_workers"`
	PowerDraw      float64 `yaml:"power_draw" json:"power_draw"`
}

const (
	MinLevel = 1
	MaxLevel = 5
)

// levelTable is indexed by level-1.
var levelTable = [MaxLevel]struct {
	efficiency float64
	power      float64
	duration   time.Duration
}{
	{1.0, 1.0, time.Hour},
	{1.5, 0.9, 4 * time.Hour},
	{2.0, 0.8, 12 * time.Hour},
	{3.0, 0.7, 24 * time.Hour},
	{5.0, 0.5, 48 * time.Hour},
}

// BuildDuration is how long it takes to reach the given level.
func BuildDuration(level int) time.Duration {
	level = Clamp(level, MinLevel, MaxLevel)
	return levelTable[level-1].duration
}

// LevelEfficiency is the production multiplier granted by a level.
func LevelEfficiency(level int) float64 {
	return levelTable[Clamp(level, MinLevel, MaxLevel)-1].efficiency
}

// LevelPower is the power draw multiplier at a level.
func LevelPower(level int) float64 {
	return levelTable[Clamp(level, MinLevel, MaxLevel)-1].power
}

var (
	ErrWindowOpen = errors.New("facility is under construction or upgrade")
	ErrMaxLevel   = errors.New("facility is at maximum level")
	ErrNotEnough  = errors.New("not enough workers")
)

// Facility is a production building sited on a parcel.
type Facility struct {
	ID                string       `db:"id" json:"id"`
	ParcelID          string       `db:"parcel_id" json:"parcel_id"`
	OwnerID           string       `db:"owner_id" json:"owner_id"`
	Type              FacilityType `db:"type" json:"type"`
	Level             int          `db:"level" json:"level"`
	Efficiency        float64      `db:"efficiency" json:"efficiency"`
	PowerDraw         float64      `db:"power_draw" json:"power_draw"`
	Workers           int          `db:"workers" json:"workers"`
	ConstructionStart *int64       `db:"construction_start" json:"construction_start,omitempty"`
	ConstructionEnd   *int64       `db:"construction_end" json:"construction_end,omitempty"`
	UpgradeStart      *int64       `db:"upgrade_start" json:"upgrade_start,omitempty"`
	UpgradeEnd        *int64       `db:"upgrade_end" json:"upgrade_end,omitempty"`
	CreatedAt         int64        `db:"created_at" json:"created_at"`
}

// NewFacility returns a level-1 facility with its construction window open.
func NewFacility(id, parcelID, ownerID string, t FacilityType, spec FacilitySpec, now time.Time) *Facility {
	f := &Facility{
		ID:         id,
		ParcelID:   parcelID,
		OwnerID:    ownerID,
		Type:       t,
		Level:      MinLevel,
		Efficiency: 1.0,
		PowerDraw:  spec.PowerDraw * LevelPower(MinLevel),
		CreatedAt:  now.UnixMilli(),
	}
	start, end := window(now, BuildDuration(MinLevel))
	f.ConstructionStart, f.ConstructionEnd = &start, &end
	return f
}

func window(now time.Time, d time.Duration) (int64, int64) {
	return now.UnixMilli(), now.Add(d).UnixMilli()
}

func open(end *int64, now time.Time) bool {
	return end != nil && now.UnixMilli() < *end
}

// UnderConstruction reports whether the construction window is open.
func (f *Facility) UnderConstruction(now time.Time) bool { return open(f.ConstructionEnd, now) }

// Upgrading reports whether the upgrade window is open.
func (f *Facility) Upgrading(now time.Time) bool { return open(f.UpgradeEnd, now) }

// Operational reports whether neither window is open.
func (f *Facility) Operational(now time.Time) bool {
	return !f.UnderConstruction(now) && !f.Upgrading(now)
}

// HasWindow reports whether any window is still recorded, due or not.
func (f *Facility) HasWindow() bool {
	return f.ConstructionEnd != nil || f.UpgradeEnd != nil
}

// StartUpgrade opens an upgrade window towards the next level.
func (f *Facility) StartUpgrade(now time.Time) error {
	if f.HasWindow() {
		return ErrWindowOpen
	}
	if f.Level >= MaxLevel {
		return ErrMaxLevel
	}
	start, end := window(now, BuildDuration(f.Level+1))
	f.UpgradeStart, f.UpgradeEnd = &start, &end
	return nil
}

// Completion describes what CompleteIfDue did.
type Completion uint8

const (
	CompletedNone Completion = iota
	CompletedConstruction
	CompletedUpgrade
)

// CompleteIfDue closes any window whose end has passed. A finished upgrade
// raises the level by exactly one and rescales efficiency and power draw.
func (f *Facility) CompleteIfDue(spec FacilitySpec, now time.Time) Completion {
	ms := now.UnixMilli()
	if f.ConstructionEnd != nil && *f.ConstructionEnd <= ms {
		f.ConstructionStart, f.ConstructionEnd = nil, nil
		return CompletedConstruction
	}
	if f.UpgradeEnd != nil && *f.UpgradeEnd <= ms {
		f.UpgradeStart, f.UpgradeEnd = nil, nil
		if f.Level < MaxLevel {
			f.Efficiency *= LevelEfficiency(f.Level+1) / LevelEfficiency(f.Level)
			f.Level++
			f.PowerDraw = spec.PowerDraw * LevelPower(f.Level)
		}
		return CompletedUpgrade
	}
	return CompletedNone
}

// UpgradeCost is the price of moving from the current level to the next.
func (f *Facility) UpgradeCost(spec FacilitySpec) int64 {
	return spec.BuildCost * int64(f.Level)
}

// DailyProduction is base output scaled by efficiency.
func (f *Facility) DailyProduction(spec FacilitySpec) (Item, float64) {
	return spec.Output, spec.BaseProduction * f.Efficiency
}

// OperatingCost is the daily cost excluding labor.
func (f *Facility) OperatingCost(spec FacilitySpec) float64 {
	return spec.FixedCost + f.PowerDraw*0.1
}

// Wages is the daily labor bill.
func (f *Facility) Wages(spec FacilitySpec) int64 {
	return int64(f.Workers) * spec.Wage
}

// DailyCost is fixed cost plus power plus labor.
func (f *Facility) DailyCost(spec FacilitySpec) float64 {
	return f.OperatingCost(spec) + float64(f.Wages(spec))
}

// EfficiencyDelta is the efficiency change for adding (or removing) n workers.
func EfficiencyDelta(t FacilityType, spec FacilitySpec, n int) float64 {
	if spec.BaseWorkers <= 0 {
		return 0
	}
	return float64(n) / float64(spec.BaseWorkers) * t.Sector().StaffingMultiplier()
}

// Hire adds n workers and the matching efficiency bonus.
func (f *Facility) Hire(spec FacilitySpec, n int) {
	f.Workers += n
	f.Efficiency += EfficiencyDelta(f.Type, spec, n)
}

// Fire removes n workers and subtracts the same delta Hire would add.
func (f *Facility) Fire(spec FacilitySpec, n int) error {
	if n > f.Workers {
		return ErrNotEnough
	}
	f.Workers -= n
	f.Efficiency -= EfficiencyDelta(f.Type, spec, n)
	return nil
}
