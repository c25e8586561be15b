package validate

import (
	"testing"

	"tickflow/internal/schema"
)

func tick(bid, ask, last string, volume uint32) schema.MarketTick {
	b, _ := schema.ParsePrice(bid)
	a, _ := schema.ParsePrice(ask)
	l, _ := schema.ParsePrice(last)
	return schema.MarketTick{Bid: b, Ask: a, Last: l, Volume: volume}
}

func TestValidateRules(t *testing.T) {
	prev := tick("100.00", "100.10", "100.05", 500)

	cases := []struct {
		name string
		tick schema.MarketTick
		prev *schema.MarketTick
		want Reason
	}{
		{
			name: "clean tick",
			tick: tick("100.00", "100.10", "100.05", 500),
			prev: &prev,
			want: ReasonNone,
		},
		{
			name: "crossed book",
			tick: tick("100.00", "99.95", "99.97", 500),
			want: ReasonCrossedBook,
		},
		{
			name: "locked book",
			tick: tick("100.00", "100.00", "100.00", 500),
			want: ReasonCrossedBook,
		},
		{
			name: "last above ask",
			tick: tick("100.00", "100.10", "100.50", 500),
			want: ReasonLastOutsideQuote,
		},
		{
			name: "last below bid",
			tick: tick("100.00", "100.10", "99.50", 500),
			want: ReasonLastOutsideQuote,
		},
		{
			name: "price jump beyond threshold",
			tick: tick("125.00", "125.10", "125.05", 500),
			prev: &prev,
			want: ReasonPriceJump,
		},
		{
			name: "no previous tick relaxes jump rule",
			tick: tick("125.00", "125.10", "125.05", 500),
			want: ReasonNone,
		},
		{
			name: "wide spread",
			tick: tick("100.00", "110.00", "105.00", 500),
			want: ReasonWideSpread,
		},
		{
			name: "zero volume",
			tick: tick("100.00", "100.10", "100.05", 0),
			want: ReasonVolumeRange,
		},
		{
			name: "volume above maximum",
			tick: tick("100.00", "100.10", "100.05", 2_000_000_000),
			want: ReasonVolumeRange,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := New(DefaultRules())
			if got := v.Validate(tc.tick, tc.prev); got != tc.want {
				t.Fatalf("Validate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateDisabledRules(t *testing.T) {
	v := New(Rules{}) // all thresholds zero, only hard rules remain
	prev := tick("100.00", "100.10", "100.05", 500)

	jump := tick("300.00", "330.00", "310.00", 0)
	if got := v.Validate(jump, &prev); got != ReasonNone {
		t.Fatalf("Validate with disabled rules = %v, want none", got)
	}
	crossed := tick("100.00", "99.95", "99.97", 0)
	if got := v.Validate(crossed, &prev); got != ReasonCrossedBook {
		t.Fatalf("crossed book must stay fatal, got %v", got)
	}
}

func TestValidatorCounters(t *testing.T) {
	v := New(DefaultRules())

	good := tick("100.00", "100.10", "100.05", 500)
	bad := tick("100.00", "99.95", "99.97", 500)

	for i := 0; i < 3; i++ {
		v.Validate(good, nil)
	}
	v.Validate(bad, nil)

	if v.Accepted() != 3 || v.Rejected() != 1 {
		t.Fatalf("counters: accepted=%d rejected=%d", v.Accepted(), v.Rejected())
	}
	if got := v.RejectionRate(); got != 0.25 {
		t.Fatalf("RejectionRate = %v, want 0.25", got)
	}
}

func TestRejectionRateNoTicks(t *testing.T) {
	v := New(DefaultRules())
	if got := v.RejectionRate(); got != 0 {
		t.Fatalf("RejectionRate with no ticks = %v, want 0", got)
	}
}
