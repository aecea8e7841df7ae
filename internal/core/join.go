package core

import (
	"strings"
	"time"
)

const (
	UnknownName    = "Unknown"
	UnknownEmail   = "N/A"
	DefaultFeeType = "Fee"

	ReceiptDefaultName     = "Student"
	ReceiptDefaultSemester = 1
)

// TransactionView is a payment joined with its fee and payer for display.
type TransactionView struct {
	Payment      Payment
	StudentName  string
	StudentEmail string
	FeeType      string
}

// Receipt is the flat record rendered for a payment.
type Receipt struct {
	ReceiptNumber string
	StudentName   string
	StudentID     string
	Email         string
	Department    string
	Semester      int
	FeeType       string
	Amount        Money
	PaymentMethod string
	TransactionID string
	PaidAt        time.Time
	// Breakdown is nil when the fee could not be resolved.
	Breakdown *Breakdown
}

// IndexFees maps fees by ID.
func IndexFees(fees []Fee) map[string]Fee {
	m := make(map[string]Fee, len(fees))
	for _, f := range fees {
		m[f.ID] = f
	}
	return m
}

// IndexProfiles maps profiles by owning user ID.
func IndexProfiles(profiles []Profile) map[string]Profile {
	m := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		m[p.UserID] = p
	}
	return m
}

// JoinTransactionView resolves each payment's fee type and payer. Missing
// references and blank values fall back to placeholders, never errors.
func JoinTransactionView(payments []Payment, feesByID map[string]Fee, profilesByOwner map[string]Profile) []TransactionView {
	out := make([]TransactionView, 0, len(payments))
	for _, p := range payments {
		out = append(out, TransactionView{
			Payment:      p,
			StudentName:  lookupText(profilesByOwner, p.UserID, func(pr Profile) string { return pr.FullName }, UnknownName),
			StudentEmail: lookupText(profilesByOwner, p.UserID, func(pr Profile) string { return pr.Email }, UnknownEmail),
			FeeType:      lookupText(feesByID, p.FeeID, func(f Fee) string { return f.FeeType }, DefaultFeeType),
		})
	}
	return out
}

// BuildReceipt flattens a payment with its optional fee and profile.
func BuildReceipt(p Payment, fee *Fee, profile *Profile) Receipt {
	r := Receipt{
		ReceiptNumber: p.ReceiptNumber,
		StudentName:   textOr(profile, func(pr Profile) string { return pr.FullName }, ReceiptDefaultName),
		StudentID:     textOr(profile, func(pr Profile) string { return pr.StudentID }, UnknownEmail),
		Email:         textOr(profile, func(pr Profile) string { return pr.Email }, ""),
		Department:    textOr(profile, func(pr Profile) string { return pr.Department }, UnknownEmail),
		Semester:      ReceiptDefaultSemester,
		FeeType:       textOr(fee, func(f Fee) string { return f.FeeType }, DefaultFeeType),
		Amount:        p.Amount,
		PaymentMethod: p.Method,
		TransactionID: p.TransactionID,
		PaidAt:        p.PaidAt,
	}
	if profile != nil && profile.Semester > 0 {
		r.Semester = profile.Semester
	}
	if strings.TrimSpace(r.TransactionID) == "" {
		r.TransactionID = p.ID
	}
	if fee != nil {
		b := fee.Breakdown
		r.Breakdown = &b
	}
	return r
}

func lookupText[K comparable, V any](m map[K]V, key K, field func(V) string, fallback string) string {
	v, ok := m[key]
	if !ok {
		return textOr[V](nil, field, fallback)
	}
	return textOr(&v, field, fallback)
}

// textOr is the single place where absent or blank reference data degrades
// to a fallback.
func textOr[V any](v *V, field func(V) string, fallback string) string {
	if v == nil {
		return fallback
	}
	if s := field(*v); strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
