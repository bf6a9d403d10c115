package tools

import (
	"math"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"2^10", 1024},
		{"2^3^2", 512}, // right-associative
		{"-2^2", -4},
		{"(-2)^2", 4},
		{"--3", 3},
		{"1.5 * 2", 3},
		{"100 - 20 - 30", 50},
		{"  7  ", 7},
	}

	for _, tt := range tests {
		got, err := Evaluate(tt.expr)
		if err != nil {
			t.Errorf("Evaluate(%q) error = %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluate_Errors(t *testing.T) {
	exprs := []string{
		"",
		"1 +",
		"1 / 0",
		"(1 + 2",
		"2 ** 3",
		"abc",
		"1 + x",
		"1..2",
		"process.exit()",
	}

	for _, expr := range exprs {
		if _, err := Evaluate(expr); err == nil {
			t.Errorf("Evaluate(%q) succeeded, want error", expr)
		}
	}
}
