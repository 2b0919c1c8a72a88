package billpdf

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockledger/backend/internal/domain"
)

func testSale() domain.SaleTransaction {
	return domain.SaleTransaction{
		ID:               "sale-1",
		BillNumber:       "BILL-1709000000000-A1B2C3",
		SellerPartyID:    "party-1",
		PartyName:        "Gupta Hardware Stores",
		TransactionDate:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		SubtotalPaise:    18644,
		TaxAmountPaise:   3356,
		TotalAmountPaise: 22000,
		PaidAmountPaise:  22000,
		PaymentStatus:    "fully_paid",
		WithGST:          true,
		Lines: []domain.SaleLine{
			{ItemID: "item-1", ProductName: "LED Bulb 9W", Brand: "Philips", HSNNumber: "8539", Quantity: 2, SaleRatePaise: 11000, TaxRate: 18, TotalPaise: 22000},
		},
	}
}

func TestInvoiceHTMLRendersBillDetails(t *testing.T) {
	r, err := NewRenderer("", nil, BusinessInfo{Name: "Test Traders", GSTNumber: "07AABCT1234A1Z9"})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	html, err := r.InvoiceHTML(testSale(), domain.Party{PartyName: "Gupta Hardware Stores", GSTNumber: "07AABCG9999B1Z2"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"BILL-1709000000000-A1B2C3",
		"TAX INVOICE",
		"Gupta Hardware Stores",
		"LED Bulb 9W",
		"07AABCG9999B1Z2",
		"CGST",
		"16.78", // half of 33.56 tax
		"220.00",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected invoice to contain %q", want)
		}
	}
}

func TestInvoiceHTMLWithPreviousBalancePaid(t *testing.T) {
	r, err := NewRenderer("", nil, BusinessInfo{Name: "Test Traders"})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	// A posted sale's total already includes the retired old debt:
	// this-sale lines 1000.00 plus previous balance paid 200.00.
	sale := testSale()
	sale.SubtotalPaise = 84746
	sale.TaxAmountPaise = 15254
	sale.TotalAmountPaise = 120000
	sale.PreviousBalancePaidPaise = 20000
	sale.PaidAmountPaise = 120000

	html, err := r.InvoiceHTML(sale, domain.Party{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"Previous Balance Paid",
		"200.00",
		"1000.00", // bill total for this sale's lines
		"1200.00", // grand total
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected invoice to contain %q", want)
		}
	}
	if strings.Contains(html, "1400.00") {
		t.Fatalf("grand total must not count the previous balance twice")
	}
}

func TestInvoiceHTMLWithoutGSTSkipsTaxColumns(t *testing.T) {
	r, err := NewRenderer("", nil, BusinessInfo{})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	sale := testSale()
	sale.WithGST = false
	sale.TaxAmountPaise = 0

	html, err := r.InvoiceHTML(sale, domain.Party{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "CGST") {
		t.Fatalf("expected no GST rows on a without-GST bill")
	}
	if strings.Contains(html, "TAX INVOICE") {
		t.Fatalf("expected plain invoice heading without GST")
	}
}

func TestInvoicePDFPostsToGotenberg(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, _, err := r.FormFile("files")
		if err != nil {
			t.Errorf("missing html part: %v", err)
		} else {
			raw, _ := io.ReadAll(file)
			if !strings.Contains(string(raw), "BILL-1709000000000-A1B2C3") {
				t.Errorf("expected invoice html in upload")
			}
		}
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	r, err := NewRenderer(srv.URL, srv.Client(), BusinessInfo{Name: "Test Traders"})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	if !r.PDFEnabled() {
		t.Fatalf("expected pdf to be enabled with endpoint configured")
	}

	pdf, err := r.InvoicePDF(context.Background(), testSale(), domain.Party{})
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !strings.HasPrefix(string(pdf), "%PDF") {
		t.Fatalf("expected pdf bytes back")
	}
	if gotPath != "/forms/chromium/convert/html" {
		t.Fatalf("unexpected conversion path %q", gotPath)
	}
}

func TestInvoicePDFDisabledWithoutEndpoint(t *testing.T) {
	r, err := NewRenderer("", nil, BusinessInfo{})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	if r.PDFEnabled() {
		t.Fatalf("expected pdf to be disabled without endpoint")
	}
	if _, err := r.InvoicePDF(context.Background(), testSale(), domain.Party{}); err == nil {
		t.Fatalf("expected error when endpoint unset")
	}
}
