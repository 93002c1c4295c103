package commission

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestNewMoneyRoundsHalfAwayFromZero(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want Money
	}{
		{0, 0},
		{0.004, 0},
		{0.005, 1},
		{1.005, 101},
		{2.675, 268},
		{33333.335, 3333334},
		{123.454999, 12345},
	}
	for _, tc := range cases {
		got, err := NewMoney(tc.in)
		if err != nil {
			t.Fatalf("new money(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("new money(%v): expected %d cents, got %d", tc.in, tc.want, got)
		}
	}

	for _, bad := range []float64{-0.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := NewMoney(bad); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("new money(%v): expected ErrInvalidAmount, got %v", bad, err)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(map[string]Money{"amount": 3333334, "zero": 0, "small": 5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"amount":33333.34,"small":0.05,"zero":0.00}` {
		t.Fatalf("unexpected encoding: %s", raw)
	}

	cases := []struct {
		in   string
		want Money
	}{
		{`12.345`, 1235},
		{`"1.5"`, 150},
		{`100`, 10000},
		{`0`, 0},
	}
	for _, tc := range cases {
		var m Money
		if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if m != tc.want {
			t.Fatalf("unmarshal %s: expected %d cents, got %d", tc.in, tc.want, m)
		}
	}

	for _, bad := range []string{`-1`, `"abc"`, `"-0.50"`} {
		var m Money
		if err := json.Unmarshal([]byte(bad), &m); err == nil {
			t.Fatalf("unmarshal %s: expected error", bad)
		}
	}
}

func TestMoneyFloat64(t *testing.T) {
	t.Parallel()

	if got := Money(3333334).Float64(); got != 33333.34 {
		t.Fatalf("expected 33333.34, got %v", got)
	}
	if got := Money(12345).String(); got != "123.45" {
		t.Fatalf("expected 123.45, got %s", got)
	}
}

func TestTierBracketJSON(t *testing.T) {
	t.Parallel()

	in := []TierBracket{{UpperBound: 100000, Rate: 0.1}, {UpperBound: math.Inf(1), Rate: 0.2}}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `[{"upper_bound":100000,"rate":0.1},{"upper_bound":null,"rate":0.2}]` {
		t.Fatalf("unexpected encoding: %s", raw)
	}

	var out []TierBracket
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 || out[0].UpperBound != 100000 || !out[1].Unbounded() {
		t.Fatalf("unexpected decode: %+v", out)
	}
}

func TestMoneyRange(t *testing.T) {
	t.Parallel()

	if _, err := NewMoney(MaxAmount); err != nil {
		t.Fatalf("MaxAmount must be representable: %v", err)
	}
	if _, err := NewMoney(MaxAmount + 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount above MaxAmount, got %v", err)
	}

	var m Money
	if err := json.Unmarshal([]byte(`1e20`), &m); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for 1e20, got %v", err)
	}
	if err := json.Unmarshal([]byte(`-1e20`), &m); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for -1e20, got %v", err)
	}

	if _, err := Total([]Money{math.MaxInt64 - 1, 2}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected Total to refuse overflow, got %v", err)
	}
	if _, err := Total([]Money{1, -1}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected Total to refuse negatives, got %v", err)
	}
	got, err := Total([]Money{math.MaxInt64 - 1, 1})
	if err != nil || got != math.MaxInt64 {
		t.Fatalf("expected MaxInt64, got %d %v", got, err)
	}
}
