// World seeding using layered simplex noise over the location index.
// Nearby locations get similar zoning, water and transport so the land
// market has regional character.
package world

import (
	"math"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/tycoon/internal/entropy"
)

// GenConfig holds world seeding parameters.
type GenConfig struct {
	Parcels       int     `yaml:"parcels"`        // Unowned parcels created at first start
	Width         int     `yaml:"width"`          // Locations per row of the noise grid
	Seed          int64   `yaml:"seed"`           // Noise seed (0 = random)
	PowerCapacity float64 `yaml:"power_capacity"` // Capacity given to every parcel
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Parcels:       200,
		Width:         32,
		Seed:          0,
		PowerCapacity: 100,
	}
}

// SmallTestConfig returns a tiny world for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Parcels:       12,
		Width:         4,
		Seed:          42,
		PowerCapacity: 100,
	}
}

// Generate creates the unowned parcels of a fresh world. newID supplies
// parcel identifiers.
func Generate(cfg GenConfig, src entropy.Source, newID func() string, now time.Time) []*Parcel {
	seed := cfg.Seed
	if seed == 0 {
		seed = int64(src.Intn(math.MaxInt32))
	}
	width := cfg.Width
	if width <= 0 {
		width = 1
	}

	// Independent layers for zoning, water and transport.
	zoneNoise := opensimplex.NewNormalized(seed)
	waterNoise := opensimplex.NewNormalized(seed + 1)
	roadNoise := opensimplex.NewNormalized(seed + 2)

	parcels := make([]*Parcel, 0, cfg.Parcels)
	for loc := 0; loc < cfg.Parcels; loc++ {
		x := float64(loc % width)
		y := float64(loc / width)

		zone := octaveNoise(zoneNoise, x, y, 3, 0.08, 0.5)
		water := octaveNoise(waterNoise, x, y, 2, 0.12, 0.5)
		road := octaveNoise(roadNoise, x, y, 2, 0.10, 0.5)

		area := 1000 + int(entropy.Range(src, 0, 4000))
		p := &Parcel{
			ID:            newID(),
			Type:          zoneFor(zone),
			Area:          area,
			Location:      loc,
			PowerCapacity: cfg.PowerCapacity,
			Water:         int(water * 100),
			Transport:     int(road * 100),
			Policy:        src.Intn(3),
			CreatedAt:     now.UnixMilli(),
		}
		p.BasePrice = appraise(p)
		parcels = append(parcels, p)
	}
	return parcels
}

// StarterParcel creates the parcel granted to a newly registered agent.
func StarterParcel(src entropy.Source, id, ownerID string, powerCapacity float64, now time.Time) *Parcel {
	owner := ownerID
	return &Parcel{
		ID:            id,
		Type:          entropy.Pick(src, ParcelTypes),
		Area:          1000 + src.Intn(4000),
		Location:      src.Intn(1000),
		PowerCapacity: powerCapacity,
		Water:         src.Intn(100),
		Transport:     src.Intn(100),
		Policy:        src.Intn(3),
		BasePrice:     int64(1000 + src.Intn(5000)),
		OwnerID:       &owner,
		CreatedAt:     now.UnixMilli(),
	}
}

// zoneFor buckets a normalized noise value into a parcel type.
func zoneFor(v float64) ParcelType {
	switch {
	case v < 0.30:
		return ParcelAgricultural
	case v < 0.45:
		return ParcelResidential
	case v < 0.60:
		return ParcelCommercial
	case v < 0.75:
		return ParcelIndustrial
	default:
		return ParcelTech
	}
}

// appraise prices a parcel from its size and amenities, 1000–6000.
func appraise(p *Parcel) int64 {
	amenity := float64(p.Water+p.Transport) / 200.0
	size := float64(p.Area-1000) / 4000.0
	return 1000 + int64(math.Floor(5000*(0.6*size+0.4*amenity)))
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(n opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxAmp := 0.0
	for i := 0; i < octaves; i++ {
		total += n.Eval2(x*frequency, y*frequency) * amplitude
		maxAmp += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxAmp
}
