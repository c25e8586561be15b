package schema

import (
	"strconv"
	"time"
)

// PriceScale is the fixed decimal scale for Price values: four digits,
// so a stored value of 1002500 reads as 100.25.
const PriceScale = 4

const priceUnit = 10000

// Price is a scaled integer with four decimal digits of precision.
type Price int64

// PriceFromFloat converts a floating-point dollar amount to a Price.
func PriceFromFloat(v float64) Price {
	if v >= 0 {
		return Price(v*priceUnit + 0.5)
	}
	return Price(v*priceUnit - 0.5)
}

// Float returns the price as a floating-point dollar amount.
func (p Price) Float() float64 {
	return float64(p) / priceUnit
}

// AppendString appends the decimal rendering of the price to buf.
func (p Price) AppendString(buf []byte) []byte {
	return appendScaledInt(buf, int64(p), PriceScale)
}

func (p Price) String() string {
	return string(p.AppendString(nil))
}

// ParsePrice parses a decimal string such as "100.25" into a Price.
// Digits beyond the fixed scale are truncated.
func ParsePrice(s string) (Price, error) {
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if len(s) == 0 {
		return 0, strconv.ErrSyntax
	}

	var whole, frac int64
	fracDigits := 0
	seenDot := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			if seenDot {
				return 0, strconv.ErrSyntax
			}
			seenDot = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
		d := int64(c - '0')
		if seenDot {
			if fracDigits < PriceScale {
				frac = frac*10 + d
				fracDigits++
			}
			continue
		}
		whole = whole*10 + d
	}
	for fracDigits < PriceScale {
		frac *= 10
		fracDigits++
	}
	value := whole*priceUnit + frac
	if neg {
		value = -value
	}
	return Price(value), nil
}

func appendScaledInt(buf []byte, value int64, scale int) []byte {
	if scale <= 0 {
		return strconv.AppendInt(buf, value, 10)
	}

	neg := value < 0
	u := uint64(value)
	if neg {
		u = uint64(^value) + 1
	}

	var tmp [32]byte
	digits := strconv.AppendUint(tmp[:0], u, 10)

	if neg {
		buf = append(buf, '-')
	}

	if len(digits) <= scale {
		buf = append(buf, '0', '.')
		for i := 0; i < scale-len(digits); i++ {
			buf = append(buf, '0')
		}
		buf = append(buf, digits...)
		return buf
	}

	idx := len(digits) - scale
	buf = append(buf, digits[:idx]...)
	buf = append(buf, '.')
	buf = append(buf, digits[idx:]...)
	return buf
}

// Timestamp is a count of nanoseconds since the Unix epoch.
type Timestamp int64

// Now samples the wall clock once.
func Now() Timestamp {
	return Timestamp(time.Now().UnixNano())
}

// Sub returns the elapsed duration between two timestamps.
func (t Timestamp) Sub(other Timestamp) time.Duration {
	return time.Duration(int64(t) - int64(other))
}

// Seconds returns the timestamp as fractional seconds since the epoch.
func (t Timestamp) Seconds() float64 {
	return float64(t) / 1e9
}

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// SymbolID is the dense numeric identifier for an instrument.
// Zero is reserved; valid IDs start at 1.
type SymbolID uint32

// ExchangeID identifies the venue a tick originated from.
type ExchangeID uint32
