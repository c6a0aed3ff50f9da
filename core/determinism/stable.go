// Package determinism provides primitives for guaranteeing deterministic execution.
// Money arithmetic, stable key ordering and structural hashing live here.
package determinism

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"landed-cost/core/types"
)

// ContentHash is a SHA-256 hash for content integrity
type ContentHash [32]byte

// ComputeHash computes a content hash from bytes
func ComputeHash(data []byte) ContentHash {
	return sha256.Sum256(data)
}

// HashParts hashes a sequence of strings with separators so that
// ("ab","c") and ("a","bc") differ
func HashParts(parts ...string) ContentHash {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	var out ContentHash
	copy(out[:], h.Sum(nil))
	return out
}

// Hex returns the hash as a hex string
func (h ContentHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements Stringer
func (h ContentHash) String() string {
	return h.Hex()[:16] + "..."
}

// Money represents a monetary amount with full precision.
// NEVER use float64 for money calculations.
type Money struct {
	amount   decimal.Decimal
	currency types.Currency
}

// NewMoney creates a Money from a decimal string
func NewMoney(amount string, currency types.Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: d, currency: currency}, nil
}

// NewMoneyFromDecimal creates Money from decimal
func NewMoneyFromDecimal(amount decimal.Decimal, currency types.Currency) Money {
	return Money{amount: amount, currency: currency}
}

// Zero creates zero money
func Zero(currency types.Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() types.Currency {
	return m.currency
}

// Add adds two monetary amounts
func (m Money) Add(other Money) Money {
	if m.currency != other.currency {
		panic(fmt.Sprintf("cannot add %s and %s", m.currency, other.currency))
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}
}

// Sub subtracts monetary amounts
func (m Money) Sub(other Money) Money {
	if m.currency != other.currency {
		panic(fmt.Sprintf("cannot subtract %s and %s", m.currency, other.currency))
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}
}

// Mul multiplies by a scalar
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// MulFloat multiplies by a float64 ratio
func (m Money) MulFloat(factor float64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromFloat(factor)), currency: m.currency}
}

// IsZero returns true if amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// Cmp compares two monetary amounts
func (m Money) Cmp(other Money) int {
	if m.currency != other.currency {
		panic(fmt.Sprintf("cannot compare %s and %s", m.currency, other.currency))
	}
	return m.amount.Cmp(other.amount)
}

// String returns formatted money (2 decimal places)
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

// MarshalText renders the amount with full precision and its currency
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.amount.String() + " " + string(m.currency)), nil
}

// Float64 returns float64 (only for display, never for calculation)
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// SortedKeys returns the keys of m in ascending order
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SortCostKeys orders keys by product, entity, then period
func SortCostKeys(keys []types.CostKey) {
	slices.SortFunc(keys, CompareCostKeys)
}

// CompareCostKeys is the canonical ordering of cost keys
func CompareCostKeys(a, b types.CostKey) int {
	if c := cmp.Compare(a.Product, b.Product); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Entity, b.Entity); c != 0 {
		return c
	}
	return cmp.Compare(a.Period, b.Period)
}
