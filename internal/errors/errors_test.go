package errors

import (
	"fmt"
	"testing"
)

func TestIsTypeWalksChain(t *testing.T) {
	inner := Newf(TypeConfig, "cycle at %s", "A")
	outer := Wrap(TypeInput, "loading model", inner)
	wrapped := fmt.Errorf("calculate: %w", outer)

	if !IsType(wrapped, TypeInput) {
		t.Error("expected outer type to match")
	}
	if !IsType(wrapped, TypeConfig) {
		t.Error("expected nested config error to match")
	}
	if IsType(wrapped, TypeDataGap) {
		t.Error("unexpected data gap match")
	}
	if IsType(fmt.Errorf("plain"), TypeConfig) {
		t.Error("plain error must not match")
	}
}

func TestErrorMessageAndContext(t *testing.T) {
	err := Config("bom contains a cycle", fmt.Errorf("A -> B -> A")).WithContext("product", "A")
	want := "[CONFIG_ERROR] bom contains a cycle: A -> B -> A"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Context["product"] != "A" {
		t.Errorf("context not recorded: %v", err.Context)
	}
	if !err.Is(TypeConfig) {
		t.Error("Is(TypeConfig) = false")
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Type
	}{
		{NotFound("run", "x"), TypeNotFound},
		{fmt.Errorf("load: %w", Parsing("bad block", nil)), TypeParsing},
		{fmt.Errorf("plain"), TypeInternal},
	}
	for _, tt := range tests {
		if got := TypeOf(tt.err); got != tt.want {
			t.Errorf("TypeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
