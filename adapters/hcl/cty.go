package hcl

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// numberMap converts a map or object value of numbers, such as
// standards = { "LAPTOP-X1" = 480 }, keeping unknown and null out
func numberMap(val cty.Value) (map[string]float64, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() {
		return nil, fmt.Errorf("value not known at load time")
	}
	ty := val.Type()
	if !ty.IsMapType() && !ty.IsObjectType() {
		return nil, fmt.Errorf("expected a map of numbers, got %s", ty.FriendlyName())
	}

	out := make(map[string]float64, val.LengthInt())
	iter := val.ElementIterator()
	for iter.Next() {
		k, v := iter.Element()
		if v.IsNull() || !v.IsKnown() {
			continue
		}
		n, err := convert.Convert(v, cty.Number)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k.AsString(), err)
		}
		f, _ := n.AsBigFloat().Float64()
		out[k.AsString()] = f
	}
	return out, nil
}
