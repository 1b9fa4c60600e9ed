package id

import (
	"math/big"
	"testing"
)

func TestNormalizeAmountBaseUnits(t *testing.T) {
	base, dec, err := NormalizeAmount("1000000", "", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1000000" || dec != "1" {
		t.Fatalf("unexpected result: base=%s dec=%s", base, dec)
	}
}

func TestNormalizeAmountDecimal(t *testing.T) {
	base, dec, err := NormalizeAmount("", "1.25", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1250000" || dec != "1.25" {
		t.Fatalf("unexpected result: base=%s dec=%s", base, dec)
	}
}

func TestNormalizeAmountValidation(t *testing.T) {
	if _, _, err := NormalizeAmount("10", "1", 6); err == nil {
		t.Fatal("expected mutual exclusivity error")
	}
	if _, _, err := NormalizeAmount("", "1.1234567", 6); err == nil {
		t.Fatal("expected precision error")
	}
	if _, _, err := NormalizeAmount("-5", "", 6); err == nil {
		t.Fatal("expected negative base units error")
	}
}

func TestParseUnitsUsesTokenDecimals(t *testing.T) {
	six, err := ParseUnits("1.5", 6)
	if err != nil {
		t.Fatalf("ParseUnits(6) failed: %v", err)
	}
	if six.String() != "1500000" {
		t.Fatalf("expected 1500000, got %s", six)
	}
	eighteen, err := ParseUnits("1.5", 18)
	if err != nil {
		t.Fatalf("ParseUnits(18) failed: %v", err)
	}
	if eighteen.String() != "1500000000000000000" {
		t.Fatalf("expected 1500000000000000000, got %s", eighteen)
	}
}

func TestParseUnitsRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "-1", "1e18"} {
		if _, err := ParseUnits(in, 18); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestFormatFixedFourPlaces(t *testing.T) {
	v, _ := new(big.Int).SetString("99500000000000000000", 10)
	if got := FormatFixed(v, 18, DisplayPlaces); got != "99.5000" {
		t.Fatalf("expected 99.5000, got %s", got)
	}
	if got := FormatFixed(big.NewInt(1234567), 6, DisplayPlaces); got != "1.2346" {
		t.Fatalf("expected rounded 1.2346, got %s", got)
	}
	if got := FormatFixed(nil, 18, DisplayPlaces); got != "0.0000" {
		t.Fatalf("expected 0.0000, got %s", got)
	}
}

func TestFormatUnitsExact(t *testing.T) {
	if got := FormatUnits(big.NewInt(1500000), 6); got != "1.5" {
		t.Fatalf("expected 1.5, got %s", got)
	}
	if got := FormatUnits(big.NewInt(0), 6); got != "0" {
		t.Fatalf("unexpected zero format: %s", got)
	}
}
