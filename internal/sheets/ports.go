// Package sheets exports settled payments to a spreadsheet-shaped ledger.
package sheets

import (
	"context"
	"strconv"

	"feedesk/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends one receipt per row and returns a reference to the
	// written row.
	LedgerWriter interface {
		AppendReceipt(ctx context.Context, r core.Receipt) (rowRef string, err error)
	}
)

// ReceiptHeader names the columns written by ReceiptRow.
var ReceiptHeader = []string{
	"Receipt Number", "Paid At", "Student Name", "Student ID", "Email", "Department",
	"Semester", "Fee Type", "Amount", "Payment Method", "Transaction ID",
	"Tuition", "Library", "Lab", "Other",
}

// ReceiptRow renders r in ReceiptHeader order. Amounts use two decimals; the
// breakdown cells stay empty when the fee could not be resolved.
func ReceiptRow(r core.Receipt) []string {
	row := []string{
		r.ReceiptNumber,
		r.PaidAt.UTC().Format("2006-01-02 15:04:05"),
		r.StudentName,
		r.StudentID,
		r.Email,
		r.Department,
		strconv.Itoa(r.Semester),
		r.FeeType,
		r.Amount.String(),
		r.PaymentMethod,
		r.TransactionID,
		"", "", "", "",
	}
	if b := r.Breakdown; b != nil {
		row[11] = b.Tuition.String()
		row[12] = b.Library.String()
		row[13] = b.Lab.String()
		row[14] = b.Other.String()
	}
	return row
}
