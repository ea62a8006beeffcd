package protocol

import "testing"

func TestDecimal_RoundTrip(t *testing.T) {
	a := NewDecimal(10, 5_000_000_000_000_000_000)
	b := NewDecimal(3, 7_000_000_000_000_000_000)

	sum := a.Add(b)
	back := sum.Sub(b)
	if back != a {
		t.Fatalf("Add then Sub did not round-trip: got %+v, want %+v", back, a)
	}
}

func TestDecimal_CarryOnFractionalOverflow(t *testing.T) {
	a := NewDecimal(0, fractionalDenominator-1)
	b := NewDecimal(0, 2)

	got := a.Add(b)
	want := NewDecimal(1, 1)
	if got != want {
		t.Fatalf("expected fractional overflow to carry into the integer part, got %+v want %+v", got, want)
	}
}

func TestDecimal_NegationIsZero(t *testing.T) {
	a := NewDecimal(42, 123)
	zero := a.Add(a.Neg())
	if zero.Integer != 0 || zero.Fractional != 0 {
		t.Fatalf("expected d + (-d) == 0, got %+v", zero)
	}
}

func TestDecimal_StringTrimsTrailingZeros(t *testing.T) {
	d := NewDecimal(1, 5_000_000_000_000_000_000)
	if got, want := d.String(), "1.5"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestDecimal_StringWholeNumber(t *testing.T) {
	d := NewDecimal(7, 0)
	if got, want := d.String(), "7.0"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestDuration_ParseFormatRoundTrip(t *testing.T) {
	cases := []string{
		"P1Y2M3D",
		"PT4H5M6S",
		"P1Y2M3DT4H5M6S",
		"PT0S",
		"P2W",
	}
	for _, s := range cases {
		d, err := ParseDuration(s)
		if err != nil {
			t.Fatalf("ParseDuration(%q) failed: %v", s, err)
		}
		if got := d.String(); got != s && !(s == "P2W" && got == "P14D") {
			t.Fatalf("round trip of %q produced %q", s, got)
		}
	}
}

func TestDuration_MonthsVsMinutesDisambiguation(t *testing.T) {
	d, err := ParseDuration("P1MT1M")
	if err != nil {
		t.Fatalf("ParseDuration failed: %v", err)
	}
	if d.Months != 1 {
		t.Fatalf("expected the pre-T M to be parsed as 1 month, got %d", d.Months)
	}
	if d.Nanos != nanosPerMinute {
		t.Fatalf("expected the post-T M to be parsed as 1 minute, got %d nanos", d.Nanos)
	}
}

func TestDuration_FractionalSeconds(t *testing.T) {
	d, err := ParseDuration("PT1.5S")
	if err != nil {
		t.Fatalf("ParseDuration failed: %v", err)
	}
	if d.Nanos != nanosPerSec+500_000_000 {
		t.Fatalf("expected 1.5s to be 1500000000ns, got %d", d.Nanos)
	}
}
