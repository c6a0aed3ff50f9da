// Package currency converts amounts between currencies using period rates.
package currency

import (
	"sync"

	"github.com/shopspring/decimal"

	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

// Converter converts an amount into another currency at a period's rate
type Converter interface {
	Convert(amount decimal.Decimal, from, to types.Currency, period types.Period) (decimal.Decimal, error)
}

type pair struct {
	from, to types.Currency
}

// Table holds exchange rates by currency pair and period. Lookups fall
// back to the inverse pair and then to the chronologically nearest
// period that has a rate; on equal distance the earlier period wins.
type Table struct {
	mu    sync.RWMutex
	rates map[pair]map[types.Period]decimal.Decimal
}

// NewTable creates an empty rate table
func NewTable() *Table {
	return &Table{rates: make(map[pair]map[types.Period]decimal.Decimal)}
}

// Set stores the rate for one unit of from expressed in to
func (t *Table) Set(from, to types.Currency, period types.Period, rate decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := pair{from, to}
	if t.rates[p] == nil {
		t.rates[p] = make(map[types.Period]decimal.Decimal)
	}
	t.rates[p][period] = rate
}

// Rate returns the rate for the pair at period, following the inverse
// and nearest-period fallbacks
func (t *Table) Rate(from, to types.Currency, period types.Period) (decimal.Decimal, error) {
	r, inverse, err := t.lookup(from, to, period)
	if err != nil {
		return decimal.Zero, err
	}
	if inverse {
		return decimal.NewFromInt(1).Div(r), nil
	}
	return r, nil
}

// Convert implements Converter. A rate found on the inverse pair divides
// the amount instead of multiplying by a rounded reciprocal.
func (t *Table) Convert(amount decimal.Decimal, from, to types.Currency, period types.Period) (decimal.Decimal, error) {
	r, inverse, err := t.lookup(from, to, period)
	if err != nil {
		return decimal.Zero, err
	}
	if inverse {
		return amount.Div(r), nil
	}
	return amount.Mul(r), nil
}

// lookup returns the stored rate and whether it belongs to the inverse pair
func (t *Table) lookup(from, to types.Currency, period types.Period) (decimal.Decimal, bool, error) {
	if from == to {
		return decimal.NewFromInt(1), false, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	if r, ok := t.rates[pair{from, to}][period]; ok {
		return r, false, nil
	}
	if r, ok := t.rates[pair{to, from}][period]; ok && !r.IsZero() {
		return r, true, nil
	}

	direct, dp, dok := nearest(t.rates[pair{from, to}], period)
	inverse, ip, iok := nearest(t.rates[pair{to, from}], period)
	switch {
	case dok && (!iok || distance(dp, period) <= distance(ip, period)):
		return direct, false, nil
	case iok && !inverse.IsZero():
		return inverse, true, nil
	}

	return decimal.Zero, false, errors.Newf(errors.TypeDataGap, "no exchange rate %s->%s for %s or any other period", from, to, period).
		WithContext("from", string(from)).
		WithContext("to", string(to))
}

// Clone returns an independent copy
func (t *Table) Clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := NewTable()
	for p, byPeriod := range t.rates {
		m := make(map[types.Period]decimal.Decimal, len(byPeriod))
		for k, v := range byPeriod {
			m[k] = v
		}
		c.rates[p] = m
	}
	return c
}

// Len returns the number of stored rates
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, byPeriod := range t.rates {
		n += len(byPeriod)
	}
	return n
}

func nearest(byPeriod map[types.Period]decimal.Decimal, period types.Period) (decimal.Decimal, types.Period, bool) {
	var (
		best     types.Period
		bestDist = -1
		rate     decimal.Decimal
	)
	for p, r := range byPeriod {
		d := distance(p, period)
		if d < 0 {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && p < best) {
			best, bestDist, rate = p, d, r
		}
	}
	return rate, best, bestDist >= 0
}

func distance(a, b types.Period) int {
	ai, bi := a.Index(), b.Index()
	if ai < 0 || bi < 0 {
		return -1
	}
	if ai > bi {
		return ai - bi
	}
	return bi - ai
}

// Merge copies every rate of other into t
func (t *Table) Merge(other *Table) {
	src := other.Clone()
	t.mu.Lock()
	defer t.mu.Unlock()
	for p, byPeriod := range src.rates {
		if t.rates[p] == nil {
			t.rates[p] = make(map[types.Period]decimal.Decimal, len(byPeriod))
		}
		for k, v := range byPeriod {
			t.rates[p][k] = v
		}
	}
}

// Each calls fn for every stored rate
func (t *Table) Each(fn func(from, to types.Currency, period types.Period, rate decimal.Decimal) error) error {
	src := t.Clone()
	for p, byPeriod := range src.rates {
		for period, r := range byPeriod {
			if err := fn(p.from, p.to, period, r); err != nil {
				return err
			}
		}
	}
	return nil
}
