// Package types defines the shared domain types of the landed-cost engine.
// All other packages depend on these types.
package types

import (
	"fmt"
	"time"
)

// ProductID identifies a product, sub-assembly or raw material
type ProductID string

// EntityID identifies a legal entity
type EntityID string

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyCNY Currency = "CNY"
	CurrencyMXN Currency = "MXN"
)

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// Period is a fiscal month in YYYY-MM form
type Period string

const periodLayout = "2006-01"

// ParsePeriod validates a period string
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse(periodLayout, s); err != nil {
		return "", fmt.Errorf("invalid period %q: want YYYY-MM", s)
	}
	return Period(s), nil
}

// Index returns the number of months since year 0, used to measure
// distance between periods. Invalid periods return -1.
func (p Period) Index() int {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return -1
	}
	return t.Year()*12 + int(t.Month()) - 1
}

// String returns the string representation
func (p Period) String() string {
	return string(p)
}
