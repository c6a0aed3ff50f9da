package bom

import (
	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

// maxBOMDepth bounds the in-flight stack. Real product structures are
// a few dozen levels at most.
const maxBOMDepth = 128

// inflight is the stack of products currently being exploded. A product
// reappearing on it means the acyclicity check was bypassed.
type inflight struct {
	ids [maxBOMDepth]types.ProductID
	n   int
}

func (s *inflight) push(id types.ProductID) error {
	for i := 0; i < s.n; i++ {
		if s.ids[i] == id {
			chain := make([]string, 0, s.n-i+1)
			for _, p := range s.ids[i:s.n] {
				chain = append(chain, string(p))
			}
			chain = append(chain, string(id))
			return errors.Newf(errors.TypeConfig, "circular reference while exploding %s", id).
				WithContext("chain", chain)
		}
	}
	if s.n == maxBOMDepth {
		return errors.Newf(errors.TypeInvariant, "bom deeper than %d levels at %s", maxBOMDepth, id)
	}
	s.ids[s.n] = id
	s.n++
	return nil
}

func (s *inflight) pop() {
	s.n--
}
