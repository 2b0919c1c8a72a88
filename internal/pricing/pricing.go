// Package pricing computes sale money breakdowns. It is pure arithmetic with
// no storage or transport concerns so it can be tested exhaustively.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"stockledger/backend/internal/domain"
)

var (
	ErrNoLines         = errors.New("pricing: sale has no lines")
	ErrBadQuantity     = errors.New("pricing: quantity must be positive")
	ErrBadRate         = errors.New("pricing: rate must be positive")
	ErrBadDiscount     = errors.New("pricing: discount out of range")
	ErrBadPaidAmount   = errors.New("pricing: paid amount out of range")
	ErrBadStatus       = errors.New("pricing: unknown payment status")
	ErrBadTaxRate      = errors.New("pricing: unsupported tax rate")
	ErrBadPreviousPaid = errors.New("pricing: previous balance payment out of range")
)

type Line struct {
	Quantity        int
	RatePaise       int64
	TaxRate         int
	DiscountPaise   int64
	DiscountPercent *float64
}

type LineBreakdown struct {
	GrossPaise    int64
	DiscountPaise int64
	TaxablePaise  int64
	TaxPaise      int64
	CGSTPaise     int64
	SGSTPaise     int64
	TotalPaise    int64
}

type Breakdown struct {
	Lines          []LineBreakdown
	SubtotalPaise  int64
	TaxAmountPaise int64
	DiscountPaise  int64
	AggregatePaise int64
}

var hundred = decimal.NewFromInt(100)

// ComputeSale prices each line and aggregates the invoice. Rates are
// GST-inclusive: when withGST is set the tax portion is carved out of the
// discounted line amount, it is never added on top.
func ComputeSale(lines []Line, withGST bool) (*Breakdown, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	b := &Breakdown{Lines: make([]LineBreakdown, 0, len(lines))}
	for i, ln := range lines {
		if ln.Quantity <= 0 {
			return nil, fmt.Errorf("%w (line %d)", ErrBadQuantity, i+1)
		}
		if ln.RatePaise <= 0 {
			return nil, fmt.Errorf("%w (line %d)", ErrBadRate, i+1)
		}
		if withGST && !domain.IsValidTaxRate(ln.TaxRate) {
			return nil, fmt.Errorf("%w %d (line %d)", ErrBadTaxRate, ln.TaxRate, i+1)
		}
		gross := ln.RatePaise * int64(ln.Quantity)
		discount, err := lineDiscount(ln, gross)
		if err != nil {
			return nil, fmt.Errorf("%w (line %d)", err, i+1)
		}
		afterDiscount := gross - discount

		lb := LineBreakdown{
			GrossPaise:    gross,
			DiscountPaise: discount,
			TotalPaise:    afterDiscount,
		}
		if withGST && ln.TaxRate > 0 {
			// taxable = afterDiscount / (1 + rate/100)
			divisor := decimal.NewFromInt(100 + int64(ln.TaxRate)).Div(hundred)
			taxable := decimal.NewFromInt(afterDiscount).DivRound(divisor, 0).IntPart()
			tax := afterDiscount - taxable
			lb.TaxablePaise = taxable
			lb.TaxPaise = tax
			lb.CGSTPaise = tax / 2
			lb.SGSTPaise = tax - tax/2
		} else {
			lb.TaxablePaise = afterDiscount
		}

		b.Lines = append(b.Lines, lb)
		b.SubtotalPaise += lb.TaxablePaise
		b.TaxAmountPaise += lb.TaxPaise
		b.DiscountPaise += lb.DiscountPaise
		b.AggregatePaise += lb.TotalPaise
	}
	return b, nil
}

// lineDiscount resolves the per-line discount. A percentage, when present,
// takes precedence over a flat amount. The result is clamped to the line
// gross so a discount can never drive a line total negative.
func lineDiscount(ln Line, grossPaise int64) (int64, error) {
	if ln.DiscountPercent != nil {
		pct := *ln.DiscountPercent
		if pct < 0 || pct > 100 {
			return 0, ErrBadDiscount
		}
		d := decimal.NewFromInt(grossPaise).
			Mul(decimal.NewFromFloat(pct)).
			DivRound(hundred, 0).
			IntPart()
		if d > grossPaise {
			d = grossPaise
		}
		return d, nil
	}
	if ln.DiscountPaise < 0 {
		return 0, ErrBadDiscount
	}
	if ln.DiscountPaise > grossPaise {
		return grossPaise, nil
	}
	return ln.DiscountPaise, nil
}

type Settlement struct {
	GrandTotalPaise  int64
	PaidPaise        int64
	BalancePaise     int64
	LedgerDeltaPaise int64
}

// Settle splits a payment between the old party balance and the new invoice.
// The portion named by previousBalancePaidPaise retires old debt first; the
// remainder goes against this invoice. LedgerDeltaPaise is the signed change
// to apply to the party's running balance.
func Settle(aggregatePaise, previousBalancePaidPaise, paidPaise int64, paymentStatus string) (*Settlement, error) {
	if previousBalancePaidPaise < 0 {
		return nil, ErrBadPreviousPaid
	}
	grand := aggregatePaise + previousBalancePaidPaise

	switch paymentStatus {
	case domain.PaymentStatusFullyPaid:
		paidPaise = grand
	case domain.PaymentStatusPartiallyPaid:
		if paidPaise < 0 || paidPaise > grand {
			return nil, ErrBadPaidAmount
		}
	default:
		return nil, ErrBadStatus
	}

	appliedToInvoice := paidPaise - previousBalancePaidPaise
	if appliedToInvoice < 0 {
		appliedToInvoice = 0
	}
	invoiceResidual := aggregatePaise - appliedToInvoice
	if invoiceResidual < 0 {
		invoiceResidual = 0
	}

	return &Settlement{
		GrandTotalPaise:  grand,
		PaidPaise:        paidPaise,
		BalancePaise:     grand - paidPaise,
		LedgerDeltaPaise: invoiceResidual - previousBalancePaidPaise,
	}, nil
}
