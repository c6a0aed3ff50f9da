// Package cycle resolves intentionally circular cost relationships, such as
// a royalty charged on a total that includes the royalty, by fixed-point
// iteration.
package cycle

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/types"
	"landed-cost/internal/logging"
)

// Default iteration bounds
const (
	DefaultMaxIterations = 10
	DefaultTolerance     = 0.01
)

// Recomputer is the tight loop the resolver drives. RecomputeBase rebuilds
// the base charges of a record and leaves the rule-derived charges as they
// are; ApplyRoyalties re-applies only the royalty-type rules.
type Recomputer interface {
	RecomputeBase(key types.CostKey) error
	ApplyRoyalties(key types.CostKey) error
	Total(key types.CostKey) (decimal.Decimal, bool)
}

// Options bound the iteration
type Options struct {
	MaxIterations int
	Tolerance     decimal.Decimal
}

// DefaultOptions returns the standard bounds
func DefaultOptions() Options {
	return Options{
		MaxIterations: DefaultMaxIterations,
		Tolerance:     decimal.NewFromFloat(DefaultTolerance),
	}
}

// Result reports the outcome. Converged=false means the iteration cap was
// reached first; it is not an error.
type Result struct {
	Key        types.CostKey   `json:"key"`
	Converged  bool            `json:"converged"`
	Iterations int             `json:"iterations"`
	FinalCost  decimal.Decimal `json:"final_cost"`
	LastDelta  decimal.Decimal `json:"last_delta"`
}

// Resolver runs the fixed-point loop
type Resolver struct {
	r    Recomputer
	opts Options
}

// NewResolver creates a resolver; zero-valued options fall back to defaults
func NewResolver(r Recomputer, opts Options) *Resolver {
	def := DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Tolerance.IsNegative() || opts.Tolerance.IsZero() {
		opts.Tolerance = def.Tolerance
	}
	return &Resolver{r: r, opts: opts}
}

// Resolve iterates base cost then royalties for key until the total moves
// by no more than the tolerance or the cap is hit. The first iteration
// always runs.
func (s *Resolver) Resolve(key types.CostKey) (Result, error) {
	current, _ := s.r.Total(key)
	res := Result{Key: key}

	for {
		prev := current
		if err := s.r.RecomputeBase(key); err != nil {
			return res, err
		}
		if err := s.r.ApplyRoyalties(key); err != nil {
			return res, err
		}
		current, _ = s.r.Total(key)
		res.Iterations++
		res.LastDelta = current.Sub(prev).Abs()

		logging.Debug("cycle iteration",
			zap.String("key", key.String()),
			zap.Int("iteration", res.Iterations),
			zap.String("total", current.String()),
			zap.String("delta", res.LastDelta.String()))

		if res.LastDelta.LessThanOrEqual(s.opts.Tolerance) {
			res.Converged = true
			break
		}
		if res.Iterations >= s.opts.MaxIterations {
			break
		}
	}

	res.FinalCost = current
	return res, nil
}
