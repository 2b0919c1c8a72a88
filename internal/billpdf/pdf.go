// Package billpdf renders posted sale transactions as printable invoices.
// HTML is produced locally; PDF conversion is delegated to a Gotenberg
// instance when one is configured.
package billpdf

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"stockledger/backend/internal/domain"
)

// BusinessInfo is the letterhead printed on every invoice.
type BusinessInfo struct {
	Name      string
	Address   string
	GSTNumber string
	Phone     string
}

type Renderer struct {
	endpoint string
	client   *http.Client
	business BusinessInfo
	tpl      *template.Template
}

func NewRenderer(gotenbergEndpoint string, client *http.Client, business BusinessInfo) (*Renderer, error) {
	if business.Name == "" {
		business.Name = "Stock Ledger"
	}
	funcMap := template.FuncMap{
		"rupees": rupees,
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
	}
	tpl, err := template.New("invoice").Funcs(funcMap).Parse(invoiceTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	return &Renderer{
		endpoint: strings.TrimRight(gotenbergEndpoint, "/"),
		client:   client,
		business: business,
		tpl:      tpl,
	}, nil
}

// PDFEnabled reports whether a Gotenberg endpoint was configured. When false
// the handler falls back to serving the invoice HTML directly.
func (r *Renderer) PDFEnabled() bool {
	return r != nil && r.endpoint != ""
}

type invoiceLine struct {
	ProductName   string
	Brand         string
	HSNNumber     string
	Quantity      int
	SaleRatePaise int64
	DiscountPaise int64
	TaxRate       int
	TotalPaise    int64
}

type invoicePayload struct {
	Business BusinessInfo

	BillNumber string
	Date       time.Time

	PartyName  string
	PartyGSTIN string
	Address    string
	Mobile     string

	Lines []invoiceLine

	WithGST       bool
	SubtotalPaise int64
	CGSTPaise     int64
	SGSTPaise     int64
	DiscountPaise int64
	TotalPaise    int64

	PreviousBalancePaidPaise int64
	GrandTotalPaise          int64
	PaidPaise                int64
	BalancePaise             int64
	PaymentStatus            string
}

func (r *Renderer) buildPayload(sale domain.SaleTransaction, party domain.Party) invoicePayload {
	lines := make([]invoiceLine, 0, len(sale.Lines))
	for _, l := range sale.Lines {
		lines = append(lines, invoiceLine{
			ProductName:   l.ProductName,
			Brand:         l.Brand,
			HSNNumber:     l.HSNNumber,
			Quantity:      l.Quantity,
			SaleRatePaise: l.SaleRatePaise,
			DiscountPaise: l.DiscountPaise,
			TaxRate:       l.TaxRate,
			TotalPaise:    l.TotalPaise,
		})
	}

	cgst := sale.TaxAmountPaise / 2
	sgst := sale.TaxAmountPaise - cgst

	partyName := sale.PartyName
	if partyName == "" {
		partyName = party.PartyName
	}

	// TotalAmountPaise on a posted sale is the grand total, previous
	// balance included. The bill-total row shows this sale's lines only.
	billTotal := sale.TotalAmountPaise - sale.PreviousBalancePaidPaise

	return invoicePayload{
		Business:                 r.business,
		BillNumber:               sale.BillNumber,
		Date:                     sale.TransactionDate,
		PartyName:                partyName,
		PartyGSTIN:               party.GSTNumber,
		Address:                  party.Address,
		Mobile:                   party.MobileNumber,
		Lines:                    lines,
		WithGST:                  sale.WithGST,
		SubtotalPaise:            sale.SubtotalPaise,
		CGSTPaise:                cgst,
		SGSTPaise:                sgst,
		DiscountPaise:            sale.DiscountPaise,
		TotalPaise:               billTotal,
		PreviousBalancePaidPaise: sale.PreviousBalancePaidPaise,
		GrandTotalPaise:          sale.TotalAmountPaise,
		PaidPaise:                sale.PaidAmountPaise,
		BalancePaise:             sale.BalanceAmountPaise,
		PaymentStatus:            sale.PaymentStatus,
	}
}

// InvoiceHTML renders the invoice for a posted sale as a standalone HTML page.
func (r *Renderer) InvoiceHTML(sale domain.SaleTransaction, party domain.Party) (string, error) {
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, r.buildPayload(sale, party)); err != nil {
		return "", fmt.Errorf("render invoice: %w", err)
	}
	return buf.String(), nil
}

// InvoicePDF converts the rendered invoice to PDF via Gotenberg.
func (r *Renderer) InvoicePDF(ctx context.Context, sale domain.SaleTransaction, party domain.Party) ([]byte, error) {
	if !r.PDFEnabled() {
		return nil, fmt.Errorf("gotenberg endpoint not configured")
	}
	html, err := r.InvoiceHTML(sale, party)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"paperWidth":   "8.27",
		"paperHeight":  "11.69",
		"marginTop":    "0.4",
		"marginBottom": "0.4",
		"marginLeft":   "0.4",
		"marginRight":  "0.4",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := r.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("gotenberg response %d: %s", resp.StatusCode, string(data))
	}
	return io.ReadAll(resp.Body)
}

// rupees formats a paise amount as a rupee string with two decimals.
func rupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s%d.%02d", sign, paise/100, paise%100)
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.BillNumber}}</title>
<style>
  body { font-family: Arial, Helvetica, sans-serif; font-size: 12px; color: #111; margin: 24px; }
  h1 { font-size: 18px; margin: 0; }
  .header { display: flex; justify-content: space-between; border-bottom: 2px solid #111; padding-bottom: 8px; }
  .meta { text-align: right; }
  .parties { margin: 12px 0; }
  table { width: 100%; border-collapse: collapse; margin-top: 8px; }
  th, td { border: 1px solid #888; padding: 4px 6px; text-align: right; }
  th:first-child, td:first-child { text-align: left; }
  th { background: #eee; }
  .totals { width: 45%; margin-left: auto; margin-top: 12px; }
  .totals td { border: none; padding: 2px 6px; }
  .totals tr.grand td { border-top: 1px solid #111; font-weight: bold; }
  .status { margin-top: 12px; font-weight: bold; }
</style>
</head>
<body>
  <div class="header">
    <div>
      <h1>{{.Business.Name}}</h1>
      <div>{{.Business.Address}}</div>
      {{if .Business.GSTNumber}}<div>GSTIN: {{.Business.GSTNumber}}</div>{{end}}
      {{if .Business.Phone}}<div>Phone: {{.Business.Phone}}</div>{{end}}
    </div>
    <div class="meta">
      <div><strong>{{if .WithGST}}TAX INVOICE{{else}}INVOICE{{end}}</strong></div>
      <div>Bill No: {{.BillNumber}}</div>
      <div>Date: {{formatDate .Date}}</div>
    </div>
  </div>

  <div class="parties">
    <strong>Billed To:</strong> {{.PartyName}}<br>
    {{if .Address}}{{.Address}}<br>{{end}}
    {{if .Mobile}}Mobile: {{.Mobile}}<br>{{end}}
    {{if .PartyGSTIN}}GSTIN: {{.PartyGSTIN}}{{end}}
  </div>

  <table>
    <tr>
      <th>Item</th>
      {{if .WithGST}}<th>HSN</th>{{end}}
      <th>Qty</th>
      <th>Rate</th>
      <th>Discount</th>
      {{if .WithGST}}<th>GST %</th>{{end}}
      <th>Amount</th>
    </tr>
    {{range .Lines}}
    <tr>
      <td>{{.ProductName}}{{if .Brand}} ({{.Brand}}){{end}}</td>
      {{if $.WithGST}}<td>{{.HSNNumber}}</td>{{end}}
      <td>{{.Quantity}}</td>
      <td>{{rupees .SaleRatePaise}}</td>
      <td>{{rupees .DiscountPaise}}</td>
      {{if $.WithGST}}<td>{{.TaxRate}}</td>{{end}}
      <td>{{rupees .TotalPaise}}</td>
    </tr>
    {{end}}
  </table>

  <table class="totals">
    <tr><td>Subtotal</td><td>{{rupees .SubtotalPaise}}</td></tr>
    {{if .WithGST}}
    <tr><td>CGST</td><td>{{rupees .CGSTPaise}}</td></tr>
    <tr><td>SGST</td><td>{{rupees .SGSTPaise}}</td></tr>
    {{end}}
    <tr><td>Discount</td><td>{{rupees .DiscountPaise}}</td></tr>
    <tr><td>Bill Total</td><td>{{rupees .TotalPaise}}</td></tr>
    {{if .PreviousBalancePaidPaise}}
    <tr><td>Previous Balance Paid</td><td>{{rupees .PreviousBalancePaidPaise}}</td></tr>
    {{end}}
    <tr class="grand"><td>Grand Total</td><td>{{rupees .GrandTotalPaise}}</td></tr>
    <tr><td>Paid</td><td>{{rupees .PaidPaise}}</td></tr>
    <tr><td>Balance</td><td>{{rupees .BalancePaise}}</td></tr>
  </table>

  <div class="status">Payment Status: {{.PaymentStatus}}</div>
</body>
</html>
`
