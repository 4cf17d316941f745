package model

import (
	"math/big"
	"testing"
)

func TestAmount_Display(t *testing.T) {
	cases := []struct {
		native float64
		want   string
	}{
		{1.5, "1.5"},
		{0, "0"},
		{100, "100"},
	}
	for _, c := range cases {
		if got := FromFloat(c.native).Display(); got != c.want {
			t.Errorf("FromFloat(%v).Display() = %q, want %q", c.native, got, c.want)
		}
	}
}

func TestAmount_Display_PreservesRawInteger(t *testing.T) {
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	a := FromRaw(raw)
	if got := a.Display(); got != "1.5" {
		t.Errorf("Display() = %q, want 1.5", got)
	}
	if a.Raw().String() != "1500000000000000000" {
		t.Errorf("Display must not mutate the canonical raw integer")
	}
}
