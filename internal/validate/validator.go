// Package validate gates physically or economically implausible ticks
// before they enter the pipeline.
package validate

import (
	"sync/atomic"

	"tickflow/internal/schema"
)

// Reason classifies why a tick was rejected. ReasonNone means accepted.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonCrossedBook
	ReasonLastOutsideQuote
	ReasonPriceJump
	ReasonWideSpread
	ReasonVolumeRange
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonCrossedBook:
		return "crossed_book"
	case ReasonLastOutsideQuote:
		return "last_outside_quote"
	case ReasonPriceJump:
		return "price_jump"
	case ReasonWideSpread:
		return "wide_spread"
	case ReasonVolumeRange:
		return "volume_range"
	default:
		return "unknown"
	}
}

// Rules holds the thresholds; each rule is independently configurable.
// A zero threshold disables the corresponding rule.
type Rules struct {
	MaxPriceChangePct float64 // |% change| vs previous midpoint
	MaxSpreadPct      float64 // spread / midpoint * 100
	LastTolerancePct  float64 // slack around [bid, ask] as % of midpoint
	MinVolume         uint32
	MaxVolume         uint32
}

// DefaultRules mirrors the production thresholds.
func DefaultRules() Rules {
	return Rules{
		MaxPriceChangePct: 20,
		MaxSpreadPct:      5,
		MinVolume:         1,
		MaxVolume:         1_000_000_000,
	}
}

// Validator applies the rules and keeps accepted/rejected counters.
// Validate is stateless per call and safe to invoke from multiple
// goroutines; the counters are atomic.
type Validator struct {
	rules    Rules
	accepted atomic.Uint64
	rejected atomic.Uint64
}

func New(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// Validate checks a tick against the previous accepted tick for the same
// symbol (nil when none exists). Any failing rule rejects the whole tick.
func (v *Validator) Validate(tick schema.MarketTick, prev *schema.MarketTick) Reason {
	reason := v.check(tick, prev)
	if reason == ReasonNone {
		v.accepted.Add(1)
	} else {
		v.rejected.Add(1)
	}
	return reason
}

func (v *Validator) check(tick schema.MarketTick, prev *schema.MarketTick) Reason {
	if tick.Ask <= tick.Bid {
		return ReasonCrossedBook
	}

	mid := tick.Midpoint()
	slack := schema.Price(0)
	if v.rules.LastTolerancePct > 0 {
		slack = schema.PriceFromFloat(mid.Float() * v.rules.LastTolerancePct / 100)
	}
	if tick.Last < tick.Bid-slack || tick.Last > tick.Ask+slack {
		return ReasonLastOutsideQuote
	}

	if v.rules.MaxPriceChangePct > 0 && prev != nil {
		prevMid := prev.Midpoint()
		if prevMid != 0 {
			change := (mid.Float() - prevMid.Float()) / prevMid.Float() * 100
			if change < 0 {
				change = -change
			}
			if change > v.rules.MaxPriceChangePct {
				return ReasonPriceJump
			}
		}
	}

	if v.rules.MaxSpreadPct > 0 && tick.SpreadPct() > v.rules.MaxSpreadPct {
		return ReasonWideSpread
	}

	if tick.Volume < v.rules.MinVolume {
		return ReasonVolumeRange
	}
	if v.rules.MaxVolume > 0 && tick.Volume > v.rules.MaxVolume {
		return ReasonVolumeRange
	}

	return ReasonNone
}

// Accepted returns the number of ticks that passed all rules.
func (v *Validator) Accepted() uint64 {
	return v.accepted.Load()
}

// Rejected returns the number of ticks rejected by any rule.
func (v *Validator) Rejected() uint64 {
	return v.rejected.Load()
}

// RejectionRate is rejected / (accepted + rejected), zero when no ticks
// have been seen.
func (v *Validator) RejectionRate() float64 {
	accepted := v.accepted.Load()
	rejected := v.rejected.Load()
	total := accepted + rejected
	if total == 0 {
		return 0
	}
	return float64(rejected) / float64(total)
}
