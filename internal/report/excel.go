// Package report builds spreadsheet exports for the reporting endpoints.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"stockledger/backend/internal/domain"
)

const sheetName = "Sheet1"

// SalesWorkbook renders a sales report as an xlsx workbook. The profit column
// is only present when the report carries a profit figure.
func SalesWorkbook(rep domain.SalesReport) (*excelize.File, error) {
	f := excelize.NewFile()

	headings := []string{"Date", "Bill Number", "Party", "Total", "Paid", "Balance", "Status", "GST", "Previous Balance Paid"}
	if err := writeHeadings(f, headings); err != nil {
		return nil, err
	}

	row := 2
	for _, tx := range rep.Transactions {
		gst := "No"
		if tx.WithGST {
			gst = "Yes"
		}
		values := []interface{}{
			tx.TransactionDate.Format("2006-01-02"),
			tx.BillNumber,
			tx.PartyName,
			rupees(tx.TotalAmountPaise),
			rupees(tx.PaidAmountPaise),
			rupees(tx.BalanceAmountPaise),
			tx.PaymentStatus,
			gst,
			rupees(tx.PreviousBalancePaidPaise),
		}
		if err := writeRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}

	row++
	summary := [][2]interface{}{
		{"Total Sales", rupees(rep.Summary.TotalSalesPaise)},
		{"Total Paid", rupees(rep.Summary.TotalPaidPaise)},
		{"Total Balance", rupees(rep.Summary.TotalBalancePaise)},
		{"Transactions", rep.Summary.TotalTransactions},
		{"With GST", rep.Summary.WithGSTCount},
		{"Without GST", rep.Summary.WithoutGSTCount},
	}
	if rep.Summary.TotalProfitPaise != nil {
		summary = append(summary, [2]interface{}{"Total Profit", rupees(*rep.Summary.TotalProfitPaise)})
	}
	for _, pair := range summary {
		if err := writeRow(f, row, []interface{}{pair[0], pair[1]}); err != nil {
			return nil, err
		}
		row++
	}

	return f, nil
}

// ReturnsWorkbook renders a return report as an xlsx workbook.
func ReturnsWorkbook(rep domain.ReturnReport) (*excelize.File, error) {
	f := excelize.NewFile()

	headings := []string{"Date", "Party Type", "Party", "Product", "Brand", "Quantity", "Amount", "Reason"}
	if err := writeHeadings(f, headings); err != nil {
		return nil, err
	}

	row := 2
	for _, tx := range rep.Transactions {
		values := []interface{}{
			tx.ReturnDate.Format("2006-01-02"),
			tx.PartyType,
			tx.PartyName,
			tx.ProductName,
			tx.Brand,
			tx.Quantity,
			rupees(tx.ReturnAmountPaise),
			tx.Reason,
		}
		if err := writeRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}

	row++
	if err := writeRow(f, row, []interface{}{"Total Returns", rupees(rep.Summary.TotalReturnsPaise)}); err != nil {
		return nil, err
	}
	if err := writeRow(f, row+1, []interface{}{"Transactions", rep.Summary.TotalTransactions}); err != nil {
		return nil, err
	}

	return f, nil
}

// OrderSheetWorkbook renders reorder entries as an xlsx workbook suitable for
// handing to a supplier.
func OrderSheetWorkbook(entries []domain.ReorderEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	headings := []string{"Product", "Code", "Brand", "Rack", "Current Quantity", "Required Quantity", "Status"}
	if err := writeHeadings(f, headings); err != nil {
		return nil, err
	}

	for i, entry := range entries {
		values := []interface{}{
			entry.ProductName,
			entry.ProductCode,
			entry.Brand,
			entry.RackNumber,
			entry.CurrentQuantity,
			entry.RequiredQuantity,
			entry.Status,
		}
		if err := writeRow(f, i+2, values); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func writeHeadings(f *excelize.File, headings []string) error {
	values := make([]interface{}, len(headings))
	for i, h := range headings {
		values[i] = h
	}
	return writeRow(f, 1, values)
}

func writeRow(f *excelize.File, row int, values []interface{}) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return err
		}
	}
	return nil
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
