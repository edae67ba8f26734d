package roll

import (
	"context"
	"testing"
)

func TestParseExpression(t *testing.T) {
	cases := []struct {
		expr                   string
		count, sides, modifier int
	}{
		{"2d6+3", 2, 6, 3},
		{"1d20", 1, 20, 0},
		{"4d8-1", 4, 8, -1},
		{"d6", 1, 6, 0},
	}
	for _, tt := range cases {
		t.Run(tt.expr, func(t *testing.T) {
			count, sides, modifier, err := parseExpression(tt.expr)
			if err != nil {
				t.Fatalf("parseExpression(%q) unexpected error: %v", tt.expr, err)
			}
			if count != tt.count || sides != tt.sides || modifier != tt.modifier {
				t.Errorf("parseExpression(%q) = (%d,%d,%d), want (%d,%d,%d)",
					tt.expr, count, sides, modifier, tt.count, tt.sides, tt.modifier)
			}
		})
	}
}

func TestParseExpressionInvalid(t *testing.T) {
	bad := []string{"", "2x6", "0d6", "2d0", "d"}
	for _, expr := range bad {
		t.Run(expr, func(t *testing.T) {
			if _, _, _, err := parseExpression(expr); err == nil {
				t.Errorf("parseExpression(%q) expected error, got nil", expr)
			}
		})
	}
}

func TestHandlerRollsWithinRange(t *testing.T) {
	res, err := handler(context.Background(), map[string]any{"expression": "3d6+2"})
	if err != nil {
		t.Fatalf("handler unexpected error: %v", err)
	}
	r, ok := res.(result)
	if !ok {
		t.Fatalf("handler returned %T, want result", res)
	}
	if len(r.Rolls) != 3 {
		t.Fatalf("expected 3 rolls, got %d", len(r.Rolls))
	}
	sum := 2
	for _, roll := range r.Rolls {
		if roll < 1 || roll > 6 {
			t.Errorf("roll %d out of range [1,6]", roll)
		}
		sum += roll
	}
	if sum != r.Total {
		t.Errorf("Total = %d, want %d", r.Total, sum)
	}
}

func TestHandlerEmptyExpression(t *testing.T) {
	if _, err := handler(context.Background(), map[string]any{"expression": ""}); err == nil {
		t.Error("expected error for empty expression")
	}
}

func TestToolSchema(t *testing.T) {
	tl := Tool()
	if tl.Name != "roll" {
		t.Errorf("Name = %q, want %q", tl.Name, "roll")
	}
	if tl.Handler == nil {
		t.Error("expected non-nil Handler")
	}
}
