package types

import "github.com/shopspring/decimal"

// Component is one line of a BOM entry
type Component struct {
	// ItemID is the consumed product or raw material
	ItemID ProductID `json:"item_id"`

	// Quantity is the good quantity required per parent unit
	Quantity decimal.Decimal `json:"quantity"`

	// ScrapRate is the fraction lost in processing, in [0,1)
	ScrapRate decimal.Decimal `json:"scrap_rate"`

	// Unit is the unit of measure
	Unit string `json:"unit,omitempty"`
}

// EffectiveQuantity is the quantity that must be consumed upstream to
// deliver Quantity good units: quantity / (1 - scrapRate).
func (c Component) EffectiveQuantity() decimal.Decimal {
	return c.Quantity.Div(decimal.NewFromInt(1).Sub(c.ScrapRate))
}

// BOMEntry lists the components of a product. An entry with no
// components is a raw material.
type BOMEntry struct {
	ProductID  ProductID   `json:"product_id"`
	Components []Component `json:"components"`
}

// IsRawMaterial reports whether the entry has no components
func (e BOMEntry) IsRawMaterial() bool {
	return len(e.Components) == 0
}
