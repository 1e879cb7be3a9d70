package mathutil_test

import (
	"testing"

	"github.com/xeptore/skylocker/mathutil"
)

func TestDivCeil(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a, b     int
		expected int
	}{
		{name: "exact division", a: 10, b: 5, expected: 2},
		{name: "rounds up", a: 11, b: 5, expected: 3},
		{name: "single chunk", a: 1, b: 1000, expected: 1},
		{name: "zero records", a: 0, b: 1000, expected: 0},
		{name: "one over boundary", a: 1001, b: 1000, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := mathutil.DivCeil(tt.a, tt.b); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestDivCeilPanicsOnZeroDivisor(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Error("expected panic on zero divisor")
		}
	}()
	mathutil.DivCeil(1, 0)
}
