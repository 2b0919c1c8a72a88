package pricing

import (
	"errors"
	"testing"

	"stockledger/backend/internal/domain"
)

func TestComputeSaleGSTInclusive(t *testing.T) {
	b, err := ComputeSale([]Line{{Quantity: 1, RatePaise: 11800, TaxRate: 18}}, true)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	ln := b.Lines[0]
	if ln.TaxablePaise != 10000 {
		t.Fatalf("taxable = %d, want 10000", ln.TaxablePaise)
	}
	if ln.TaxPaise != 1800 {
		t.Fatalf("tax = %d, want 1800", ln.TaxPaise)
	}
	if ln.CGSTPaise != 900 || ln.SGSTPaise != 900 {
		t.Fatalf("cgst/sgst = %d/%d, want 900/900", ln.CGSTPaise, ln.SGSTPaise)
	}
	if ln.TotalPaise != 11800 {
		t.Fatalf("line total = %d, want 11800 (tax is inclusive, never added)", ln.TotalPaise)
	}
	if b.AggregatePaise != 11800 || b.SubtotalPaise != 10000 || b.TaxAmountPaise != 1800 {
		t.Fatalf("aggregate/subtotal/tax = %d/%d/%d", b.AggregatePaise, b.SubtotalPaise, b.TaxAmountPaise)
	}
}

func TestComputeSaleOddTaxSplit(t *testing.T) {
	// 105 paise at 5%: taxable 100, tax 5, split 2/3.
	b, err := ComputeSale([]Line{{Quantity: 1, RatePaise: 105, TaxRate: 5}}, true)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	ln := b.Lines[0]
	if ln.TaxPaise != 5 {
		t.Fatalf("tax = %d, want 5", ln.TaxPaise)
	}
	if ln.CGSTPaise+ln.SGSTPaise != ln.TaxPaise {
		t.Fatalf("cgst %d + sgst %d != tax %d", ln.CGSTPaise, ln.SGSTPaise, ln.TaxPaise)
	}
}

func TestComputeSaleWithoutGST(t *testing.T) {
	b, err := ComputeSale([]Line{{Quantity: 2, RatePaise: 5000, TaxRate: 18}}, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if b.TaxAmountPaise != 0 {
		t.Fatalf("tax = %d, want 0 in no-GST mode", b.TaxAmountPaise)
	}
	if b.SubtotalPaise != 10000 || b.AggregatePaise != 10000 {
		t.Fatalf("subtotal/aggregate = %d/%d, want 10000/10000", b.SubtotalPaise, b.AggregatePaise)
	}
}

func TestComputeSalePercentageDiscountWins(t *testing.T) {
	pct := 10.0
	b, err := ComputeSale([]Line{{
		Quantity:        1,
		RatePaise:       10000,
		DiscountPaise:   9999,
		DiscountPercent: &pct,
	}}, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if b.Lines[0].DiscountPaise != 1000 {
		t.Fatalf("discount = %d, want 1000 (percentage takes precedence)", b.Lines[0].DiscountPaise)
	}
	if b.Lines[0].TotalPaise != 9000 {
		t.Fatalf("total = %d, want 9000", b.Lines[0].TotalPaise)
	}
}

func TestComputeSaleDiscountCappedAtGross(t *testing.T) {
	b, err := ComputeSale([]Line{{Quantity: 1, RatePaise: 500, DiscountPaise: 2000}}, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if b.Lines[0].DiscountPaise != 500 {
		t.Fatalf("discount = %d, want capped to 500", b.Lines[0].DiscountPaise)
	}
	if b.Lines[0].TotalPaise != 0 {
		t.Fatalf("total = %d, want 0", b.Lines[0].TotalPaise)
	}
}

func TestComputeSaleRejectsBadInput(t *testing.T) {
	if _, err := ComputeSale(nil, false); !errors.Is(err, ErrNoLines) {
		t.Fatalf("empty lines: got %v", err)
	}
	if _, err := ComputeSale([]Line{{Quantity: 0, RatePaise: 100}}, false); !errors.Is(err, ErrBadQuantity) {
		t.Fatalf("zero qty: got %v", err)
	}
	if _, err := ComputeSale([]Line{{Quantity: 1, RatePaise: 0}}, false); !errors.Is(err, ErrBadRate) {
		t.Fatalf("zero rate: got %v", err)
	}
	if _, err := ComputeSale([]Line{{Quantity: 1, RatePaise: 100, TaxRate: 12}}, true); !errors.Is(err, ErrBadTaxRate) {
		t.Fatalf("bad tax rate: got %v", err)
	}
	neg := -5.0
	if _, err := ComputeSale([]Line{{Quantity: 1, RatePaise: 100, DiscountPercent: &neg}}, false); !errors.Is(err, ErrBadDiscount) {
		t.Fatalf("negative pct: got %v", err)
	}
}

func TestSettleFullyPaidForcesGrandTotal(t *testing.T) {
	s, err := Settle(10000, 0, 123, domain.PaymentStatusFullyPaid)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.PaidPaise != 10000 || s.BalancePaise != 0 {
		t.Fatalf("paid/balance = %d/%d, want 10000/0", s.PaidPaise, s.BalancePaise)
	}
	if s.LedgerDeltaPaise != 0 {
		t.Fatalf("ledger delta = %d, want 0", s.LedgerDeltaPaise)
	}
}

func TestSettlePartialLeavesResidualOnLedger(t *testing.T) {
	s, err := Settle(10000, 0, 4000, domain.PaymentStatusPartiallyPaid)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.BalancePaise != 6000 {
		t.Fatalf("balance = %d, want 6000", s.BalancePaise)
	}
	if s.LedgerDeltaPaise != 6000 {
		t.Fatalf("ledger delta = %d, want 6000", s.LedgerDeltaPaise)
	}
}

func TestSettlePreviousBalanceRetiredFirst(t *testing.T) {
	// 2000 of the payment retires old debt, the rest covers the invoice.
	s, err := Settle(10000, 2000, 12000, domain.PaymentStatusFullyPaid)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.GrandTotalPaise != 12000 || s.PaidPaise != 12000 {
		t.Fatalf("grand/paid = %d/%d, want 12000/12000", s.GrandTotalPaise, s.PaidPaise)
	}
	if s.LedgerDeltaPaise != -2000 {
		t.Fatalf("ledger delta = %d, want -2000 (old debt cleared)", s.LedgerDeltaPaise)
	}
}

func TestSettleOnlyPreviousBalancePaid(t *testing.T) {
	s, err := Settle(10000, 2000, 2000, domain.PaymentStatusPartiallyPaid)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.BalancePaise != 10000 {
		t.Fatalf("balance = %d, want 10000", s.BalancePaise)
	}
	if s.LedgerDeltaPaise != 8000 {
		t.Fatalf("ledger delta = %d, want 8000 (invoice owed minus old debt retired)", s.LedgerDeltaPaise)
	}
}

func TestSettlePaidBelowPreviousBalance(t *testing.T) {
	// The payment is smaller than the declared old-debt portion; nothing
	// applies to the invoice and the full aggregate stays owed.
	s, err := Settle(10000, 5000, 2000, domain.PaymentStatusPartiallyPaid)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.GrandTotalPaise != 15000 || s.BalancePaise != 13000 {
		t.Fatalf("grand/balance = %d/%d, want 15000/13000", s.GrandTotalPaise, s.BalancePaise)
	}
	if s.LedgerDeltaPaise != 5000 {
		t.Fatalf("ledger delta = %d, want 5000", s.LedgerDeltaPaise)
	}
}

func TestSettleRejectsOutOfRange(t *testing.T) {
	if _, err := Settle(10000, 0, 20000, domain.PaymentStatusPartiallyPaid); !errors.Is(err, ErrBadPaidAmount) {
		t.Fatalf("overpay: got %v", err)
	}
	if _, err := Settle(10000, 0, -1, domain.PaymentStatusPartiallyPaid); !errors.Is(err, ErrBadPaidAmount) {
		t.Fatalf("negative paid: got %v", err)
	}
	if _, err := Settle(10000, -1, 1000, domain.PaymentStatusPartiallyPaid); !errors.Is(err, ErrBadPreviousPaid) {
		t.Fatalf("negative previous paid: got %v", err)
	}
	if _, err := Settle(10000, 0, 0, "weekly"); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("bad status: got %v", err)
	}
}
