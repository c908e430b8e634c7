package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	decimalHundred = decimal.NewFromInt(100)
	decimalTwo     = decimal.NewFromInt(2)
)

// TaxBreakdown is the result of splitting a tax rate over a taxable amount.
// Intra-state transactions carry the rate evenly as CGST+SGST; inter-state
// transactions carry the full rate as IGST. Amounts are rounded to 2 decimal
// places at this boundary; rates are passed through unrounded.
type TaxBreakdown struct {
	BaseAmount decimal.Decimal `json:"base_amount"`
	CGSTRate   decimal.Decimal `json:"cgst_rate"`
	SGSTRate   decimal.Decimal `json:"sgst_rate"`
	IGSTRate   decimal.Decimal `json:"igst_rate"`
	CGSTAmount decimal.Decimal `json:"cgst_amount"`
	SGSTAmount decimal.Decimal `json:"sgst_amount"`
	IGSTAmount decimal.Decimal `json:"igst_amount"`
	TotalTax   decimal.Decimal `json:"total_tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// CalculateTax computes the tax split for a taxable amount at a single rate.
//
// Seller and buyer states are compared case- and whitespace-insensitively.
// In exclusive mode the amount is the base and tax is added on top; in
// inclusive mode the amount already contains the tax and the base is backed
// out as amount*100/(100+rate). Internal math runs at full precision; only
// the returned amounts are rounded.
func CalculateTax(amount, rate decimal.Decimal, sellerState, buyerState string, inclusive bool) TaxBreakdown {
	intraState := strings.EqualFold(strings.TrimSpace(sellerState), strings.TrimSpace(buyerState))

	var base, totalTax decimal.Decimal
	if inclusive {
		base = amount.Mul(decimalHundred).Div(decimalHundred.Add(rate))
		totalTax = amount.Sub(base)
	} else {
		base = amount
		totalTax = amount.Mul(rate).Div(decimalHundred)
	}

	b := TaxBreakdown{
		BaseAmount: base.Round(2),
		TotalTax:   totalTax.Round(2),
		GrandTotal: base.Add(totalTax).Round(2),
	}
	if intraState {
		half := totalTax.Div(decimalTwo)
		b.CGSTRate = rate.Div(decimalTwo)
		b.SGSTRate = b.CGSTRate
		b.CGSTAmount = half.Round(2)
		b.SGSTAmount = half.Round(2)
	} else {
		b.IGSTRate = rate
		b.IGSTAmount = totalTax.Round(2)
	}
	return b
}
