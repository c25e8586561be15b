package schema

import "testing"

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in      string
		want    Price
		wantErr bool
	}{
		{in: "100.25", want: 1002500},
		{in: "0.0001", want: 1},
		{in: "0", want: 0},
		{in: "-3.5", want: -35000},
		{in: "+1", want: 10000},
		{in: "2.123456", want: 21234}, // truncated beyond scale
		{in: "", wantErr: true},
		{in: "-", wantErr: true},
		{in: "1.2.3", wantErr: true},
		{in: "12a", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParsePrice(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParsePrice(%q): expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParsePrice(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPriceString(t *testing.T) {
	cases := []struct {
		in   Price
		want string
	}{
		{in: 1002500, want: "100.2500"},
		{in: 1, want: "0.0001"},
		{in: 0, want: "0.0000"},
		{in: -35000, want: "-3.5000"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Fatalf("Price(%d).String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPriceFloatRoundTrip(t *testing.T) {
	for _, v := range []float64{100.25, 0.0001, -42.5, 0} {
		p := PriceFromFloat(v)
		if got := p.Float(); got != v {
			t.Fatalf("PriceFromFloat(%v).Float() = %v", v, got)
		}
	}
}

func TestTimestampConversions(t *testing.T) {
	ts := Timestamp(1_700_000_000_123_456_789)
	if got := ts.Time().UnixNano(); got != int64(ts) {
		t.Fatalf("Time() lost precision: %d != %d", got, int64(ts))
	}
	later := ts + Timestamp(1_500_000_000)
	if d := later.Sub(ts); d.Milliseconds() != 1500 {
		t.Fatalf("Sub = %v, want 1.5s", d)
	}
}
