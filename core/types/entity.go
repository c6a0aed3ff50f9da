package types

import "fmt"

// EntityType classifies a legal entity
type EntityType string

const (
	EntityManufacturing EntityType = "manufacturing"
	EntityDistribution  EntityType = "distribution"
	EntityRnD           EntityType = "r&d"
	EntityIPHolder      EntityType = "ip-holder"
	EntityHeadquarters  EntityType = "headquarters"
)

// ParseEntityType validates an entity type tag
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityManufacturing, EntityDistribution, EntityRnD, EntityIPHolder, EntityHeadquarters:
		return t, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Entity is a legal entity in the network
type Entity struct {
	ID       EntityID   `json:"id"`
	Type     EntityType `json:"type"`
	Country  string     `json:"country"`
	Currency Currency   `json:"currency"`
}

// MarkupType selects how a route prices goods moving across it
type MarkupType string

const (
	MarkupCostPlus       MarkupType = "cost-plus"
	MarkupResaleMinus    MarkupType = "resale-minus"
	MarkupRevenuePercent MarkupType = "revenue-percent"
)

// ParseMarkupType validates a markup type tag
func ParseMarkupType(s string) (MarkupType, error) {
	switch t := MarkupType(s); t {
	case MarkupCostPlus, MarkupResaleMinus, MarkupRevenuePercent:
		return t, nil
	}
	return "", fmt.Errorf("unknown markup type %q", s)
}

// Item types carried on routes
const (
	ItemFinishedGoods = "finished-goods"
	ItemRoyalty       = "royalty"
	ItemManagementFee = "management-fee"
)

// Route is a directed transfer relationship between two entities.
// Several routes may connect the same pair.
type Route struct {
	From        EntityID   `json:"from"`
	To          EntityID   `json:"to"`
	MarkupType  MarkupType `json:"markup_type"`
	MarkupValue float64    `json:"markup_value"`
	ItemTypes   []string   `json:"item_types,omitempty"`
}

// Carries reports whether the route is tagged with the item type
func (r Route) Carries(itemType string) bool {
	for _, t := range r.ItemTypes {
		if t == itemType {
			return true
		}
	}
	return false
}
