// Package world provides land parcels and world seeding.
package world

// ParcelType is the zoning of a parcel. The set is closed.
type ParcelType string

const (
	ParcelCommercial   ParcelType = "commercial"
	ParcelIndustrial   ParcelType = "industrial"
	ParcelAgricultural ParcelType = "agricultural"
	ParcelTech         ParcelType = "tech"
	ParcelResidential  ParcelType = "residential"
)

// ParcelTypes lists every parcel type.
var ParcelTypes = []ParcelType{
	ParcelCommercial, ParcelIndustrial, ParcelAgricultural, ParcelTech, ParcelResidential,
}

// Valid reports whether t is a known parcel type.
func (t ParcelType) Valid() bool {
	for _, pt := range ParcelTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// Parcel is a unit of ownable land. OwnerID and AuctionID are nil when
// unset. A parcel under auction keeps its owner as the seller.
type Parcel struct {
	ID            string     `db:"id" json:"id"`
	Type          ParcelType `db:"type" json:"type"`
	Area          int        `db:"area" json:"area"`
	Location      int        `db:"location" json:"location"`
	PowerCapacity float64    `db:"power_capacity" json:"power_capacity"`
	Water         int        `db:"water" json:"water"`
	Transport     int        `db:"transport" json:"transport"`
	Policy        int        `db:"policy" json:"policy"`
	BasePrice     int64      `db:"base_price" json:"base_price"`
	OwnerID       *string    `db:"owner_id" json:"owner_id,omitempty"`
	AuctionID     *string    `db:"auction_id" json:"auction_id,omitempty"`
	CreatedAt     int64      `db:"created_at" json:"created_at"`
}

// Available reports whether the parcel can be bought outright.
func (p *Parcel) Available() bool {
	return p.OwnerID == nil && p.AuctionID == nil
}

// OwnedBy reports whether agentID owns the parcel.
func (p *Parcel) OwnedBy(agentID string) bool {
	return p.OwnerID != nil && *p.OwnerID == agentID
}
