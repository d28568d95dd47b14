package tax

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput marks negative amounts/rates or an unknown billing mode.
var ErrInvalidInput = errors.New("tax: invalid input")

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// LineQuote is the computed breakdown for a single line item. It is not
// persisted here; invoice/order modules store their own copies.
type LineQuote struct {
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	RatePercent  decimal.Decimal `json:"rate_percent"`
	BillingMode  BillingMode     `json:"billing_mode"`
	TaxableValue decimal.Decimal `json:"taxable_value"`
	CGST         decimal.Decimal `json:"cgst"`
	SGST         decimal.Decimal `json:"sgst"`
	TotalTax     decimal.Decimal `json:"total_tax"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// ComputeLineAmounts turns (price, quantity, rate, billing mode) into a
// tax-split line breakdown. Rounding is two decimal places, half away from
// zero, applied per line — invoices sum rounded lines, they never round the
// order total, and that convention must not change.
//
// The rate is split evenly into CGST and SGST. CGST is rounded on its own;
// SGST is derived as totalTax - CGST so the two components always sum
// exactly to the rounded total tax. Two independently-rounded halves could
// disagree with the total by a paisa on odd cents.
func ComputeLineAmounts(unitPrice, quantity, ratePercent decimal.Decimal, mode BillingMode) (LineQuote, error) {
	if unitPrice.IsNegative() || quantity.IsNegative() || ratePercent.IsNegative() {
		return LineQuote{}, ErrInvalidInput
	}
	if !mode.Valid() {
		return LineQuote{}, ErrInvalidInput
	}

	q := LineQuote{
		UnitPrice:   unitPrice,
		Quantity:    quantity,
		RatePercent: ratePercent,
		BillingMode: mode,
	}

	// Full precision until the rounding points below.
	amount := unitPrice.Mul(quantity)

	if ratePercent.IsZero() || mode == BillingNoGST {
		q.TaxableValue = amount.Round(2)
		q.CGST = decimal.Zero
		q.SGST = decimal.Zero
		q.TotalTax = decimal.Zero
		q.TotalAmount = q.TaxableValue
		return q, nil
	}

	var taxable, taxAmt decimal.Decimal
	switch mode {
	case BillingInclusiveGST:
		// Entered price already embeds the tax.
		taxable = amount.Mul(hundred).Div(hundred.Add(ratePercent))
		taxAmt = amount.Sub(taxable)
	case BillingExclusiveGST:
		taxable = amount
		taxAmt = amount.Mul(ratePercent).Div(hundred)
	}

	q.TotalTax = taxAmt.Round(2)
	q.CGST = taxAmt.Div(two).Round(2)
	q.SGST = q.TotalTax.Sub(q.CGST)
	q.TaxableValue = taxable.Round(2)

	if mode == BillingInclusiveGST {
		q.TotalAmount = amount.Round(2)
	} else {
		q.TotalAmount = q.TaxableValue.Add(q.TotalTax)
	}

	return q, nil
}
