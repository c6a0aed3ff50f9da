package hcl

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// fileSchema is the top-level structure of a model file
type fileSchema struct {
	Periods  []string      `hcl:"periods,optional"`
	Entities []*entityBlk  `hcl:"entity,block"`
	Routes   []*routeBlk   `hcl:"route,block"`
	Products []*productBlk `hcl:"product,block"`
	Rules    []*ruleBlk    `hcl:"rule,block"`
	Costs    []*costBlk    `hcl:"period_cost,block"`
	Labor    []*laborBlk   `hcl:"labor,block"`
	Volumes  []*volumeBlk  `hcl:"volume,block"`
	Rates    []*rateBlk    `hcl:"rate,block"`
}

type entityBlk struct {
	ID       string    `hcl:"id,label"`
	Type     string    `hcl:"type"`
	Country  string    `hcl:"country"`
	Currency string    `hcl:"currency"`
	Range    hcl.Range `hcl:",def_range"`
}

type routeBlk struct {
	From        string    `hcl:"from"`
	To          string    `hcl:"to"`
	MarkupType  string    `hcl:"markup_type"`
	MarkupValue float64   `hcl:"markup_value"`
	ItemTypes   []string  `hcl:"item_types,optional"`
	Range       hcl.Range `hcl:",def_range"`
}

type productBlk struct {
	ID         string          `hcl:"id,label"`
	Components []*componentBlk `hcl:"component,block"`
	Range      hcl.Range       `hcl:",def_range"`
}

type componentBlk struct {
	Item      string    `hcl:"item,label"`
	Quantity  float64   `hcl:"quantity"`
	ScrapRate float64   `hcl:"scrap_rate,optional"`
	Unit      string    `hcl:"unit,optional"`
	Range     hcl.Range `hcl:",def_range"`
}

// ruleBlk carries the parameters of every rule kind; which ones are
// required depends on type
type ruleBlk struct {
	ID         string    `hcl:"id,label"`
	Type       string    `hcl:"type"`
	DependsOn  []string  `hcl:"depends_on,optional"`
	Products   []string  `hcl:"products,optional"`
	Entities   []string  `hcl:"entities,optional"`
	Rate       *float64  `hcl:"rate,optional"`
	Percentage *float64  `hcl:"percentage,optional"`
	BaseFields []string  `hcl:"base_fields,optional"`
	Target     *string   `hcl:"target,optional"`
	Pool       *float64  `hcl:"pool,optional"`
	Currency   *string   `hcl:"currency,optional"`
	Countries  []string  `hcl:"countries,optional"`
	Threshold  *float64  `hcl:"threshold,optional"`
	Standards  cty.Value `hcl:"standards,optional"`
	Range      hcl.Range `hcl:",def_range"`
}

type costBlk struct {
	Item     string    `hcl:"item"`
	Entity   string    `hcl:"entity"`
	Period   string    `hcl:"period"`
	UnitCost string    `hcl:"unit_cost"`
	Currency string    `hcl:"currency"`
	Range    hcl.Range `hcl:",def_range"`
}

type laborBlk struct {
	Product  string    `hcl:"product"`
	Entity   string    `hcl:"entity"`
	Period   string    `hcl:"period"`
	Hours    string    `hcl:"hours"`
	Rate     string    `hcl:"rate"`
	Currency string    `hcl:"currency"`
	Range    hcl.Range `hcl:",def_range"`
}

type volumeBlk struct {
	Product string    `hcl:"product"`
	Entity  string    `hcl:"entity"`
	Period  string    `hcl:"period"`
	Units   string    `hcl:"units"`
	Range   hcl.Range `hcl:",def_range"`
}

type rateBlk struct {
	From   string    `hcl:"from"`
	To     string    `hcl:"to"`
	Period string    `hcl:"period"`
	Rate   string    `hcl:"rate"`
	Range  hcl.Range `hcl:",def_range"`
}
