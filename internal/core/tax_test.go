package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateTax_IntraState(t *testing.T) {
	b := CalculateTax(dec("1000"), dec("18"), "Karnataka", "Karnataka", false)

	if !b.BaseAmount.Equal(dec("1000")) {
		t.Errorf("BaseAmount = %s, want 1000", b.BaseAmount)
	}
	if !b.CGSTAmount.Equal(dec("90")) || !b.SGSTAmount.Equal(dec("90")) {
		t.Errorf("CGST/SGST = %s/%s, want 90/90", b.CGSTAmount, b.SGSTAmount)
	}
	if !b.IGSTAmount.IsZero() {
		t.Errorf("IGSTAmount = %s, want 0", b.IGSTAmount)
	}
	if !b.CGSTRate.Equal(dec("9")) || !b.SGSTRate.Equal(dec("9")) {
		t.Errorf("CGST/SGST rates = %s/%s, want 9/9", b.CGSTRate, b.SGSTRate)
	}
	if !b.TotalTax.Equal(dec("180")) {
		t.Errorf("TotalTax = %s, want 180", b.TotalTax)
	}
	if !b.GrandTotal.Equal(dec("1180")) {
		t.Errorf("GrandTotal = %s, want 1180", b.GrandTotal)
	}
}

func TestCalculateTax_InterState(t *testing.T) {
	b := CalculateTax(dec("1000"), dec("18"), "Karnataka", "Maharashtra", false)

	if !b.IGSTAmount.Equal(dec("180")) {
		t.Errorf("IGSTAmount = %s, want 180", b.IGSTAmount)
	}
	if !b.IGSTRate.Equal(dec("18")) {
		t.Errorf("IGSTRate = %s, want 18", b.IGSTRate)
	}
	if !b.CGSTAmount.IsZero() || !b.SGSTAmount.IsZero() {
		t.Errorf("CGST/SGST = %s/%s, want 0/0", b.CGSTAmount, b.SGSTAmount)
	}
	if !b.GrandTotal.Equal(dec("1180")) {
		t.Errorf("GrandTotal = %s, want 1180", b.GrandTotal)
	}
}

func TestCalculateTax_StateComparisonIsForgiving(t *testing.T) {
	b := CalculateTax(dec("100"), dec("18"), " karnataka ", "KARNATAKA", false)
	if !b.IGSTAmount.IsZero() {
		t.Errorf("expected intra-state split, got IGST %s", b.IGSTAmount)
	}
	if !b.CGSTAmount.Equal(dec("9")) {
		t.Errorf("CGSTAmount = %s, want 9", b.CGSTAmount)
	}
}

func TestCalculateTax_Inclusive(t *testing.T) {
	// 1180 tax-inclusive at 18% backs out to base 1000 + tax 180.
	b := CalculateTax(dec("1180"), dec("18"), "Karnataka", "Karnataka", true)

	if !b.BaseAmount.Equal(dec("1000")) {
		t.Errorf("BaseAmount = %s, want 1000", b.BaseAmount)
	}
	if !b.TotalTax.Equal(dec("180")) {
		t.Errorf("TotalTax = %s, want 180", b.TotalTax)
	}
	if !b.GrandTotal.Equal(dec("1180")) {
		t.Errorf("GrandTotal = %s, want 1180", b.GrandTotal)
	}
}

func TestCalculateTax_InclusiveOddAmount(t *testing.T) {
	// 118 inclusive at 18% → base 100, CGST 9, SGST 9.
	b := CalculateTax(dec("118"), dec("18"), "TN", "TN", true)
	if !b.BaseAmount.Equal(dec("100")) {
		t.Errorf("BaseAmount = %s, want 100", b.BaseAmount)
	}
	if !b.CGSTAmount.Equal(dec("9")) || !b.SGSTAmount.Equal(dec("9")) {
		t.Errorf("CGST/SGST = %s/%s, want 9/9", b.CGSTAmount, b.SGSTAmount)
	}
}

func TestCalculateTax_ZeroRate(t *testing.T) {
	b := CalculateTax(dec("500"), decimal.Zero, "Karnataka", "Kerala", false)
	if !b.TotalTax.IsZero() {
		t.Errorf("TotalTax = %s, want 0", b.TotalTax)
	}
	if !b.GrandTotal.Equal(dec("500")) {
		t.Errorf("GrandTotal = %s, want 500", b.GrandTotal)
	}
}

func TestCalculateTax_HalvesRoundAtBoundary(t *testing.T) {
	// 5% of 333.33 = 16.6665; halves are 8.33325 each, rounding to 8.33.
	b := CalculateTax(dec("333.33"), dec("5"), "Goa", "Goa", false)
	if !b.CGSTAmount.Equal(dec("8.33")) || !b.SGSTAmount.Equal(dec("8.33")) {
		t.Errorf("CGST/SGST = %s/%s, want 8.33/8.33", b.CGSTAmount, b.SGSTAmount)
	}
	if !b.TotalTax.Equal(dec("16.67")) {
		t.Errorf("TotalTax = %s, want 16.67", b.TotalTax)
	}
}
