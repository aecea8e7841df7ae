package http

import (
	"time"

	"feedesk/internal/core"
	"feedesk/internal/services"
)

// Amounts are rendered as decimal strings with two places, e.g. "45000.00".

type breakdownView struct {
	Tuition string `json:"tuition_fee"`
	Library string `json:"library_fee"`
	Lab     string `json:"lab_fee"`
	Other   string `json:"other_charges"`
}

type feeView struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	FeeType      string        `json:"fee_type"`
	Amount       string        `json:"amount"`
	DueDate      string        `json:"due_date"`
	AcademicYear string        `json:"academic_year,omitempty"`
	Semester     int           `json:"semester,omitempty"`
	Breakdown    breakdownView `json:"breakdown"`
	Status       string        `json:"status"`
	// EffectiveStatus is pending, paid or overdue; Status is what is stored.
	EffectiveStatus string `json:"effective_status,omitempty"`
}

type paymentView struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	FeeID         string    `json:"fee_id"`
	Amount        string    `json:"amount"`
	Method        string    `json:"payment_method"`
	TransactionID string    `json:"transaction_id"`
	ReceiptNumber string    `json:"receipt_number"`
	PaidAt        time.Time `json:"paid_at"`
	Status        string    `json:"status"`
}

type transactionView struct {
	paymentView
	StudentName  string `json:"student_name,omitempty"`
	StudentEmail string `json:"student_email,omitempty"`
	FeeType      string `json:"fee_type"`
}

type studentTotalsView struct {
	TotalOutstanding string `json:"total_outstanding"`
	TotalPaid        string `json:"total_paid"`
	PendingCount     int    `json:"pending_count"`
	OverdueCount     int    `json:"overdue_count"`
}

type studentDashboardView struct {
	Fees     []feeView         `json:"fees"`
	Payments []transactionView `json:"payments"`
	Totals   studentTotalsView `json:"totals"`
}

type orgStatsView struct {
	TotalRevenue     string `json:"total_revenue"`
	PendingDues      string `json:"pending_dues"`
	ActiveStudents   int    `json:"active_students"`
	TransactionCount int    `json:"transaction_count"`
}

type dashboardView struct {
	Stats       orgStatsView      `json:"stats"`
	Recent      []transactionView `json:"recent_payments"`
	RefreshedAt time.Time         `json:"refreshed_at"`
	Notice      string            `json:"notice,omitempty"`
}

type receiptView struct {
	ReceiptNumber string         `json:"receipt_number"`
	StudentName   string         `json:"student_name"`
	StudentID     string         `json:"student_id"`
	Email         string         `json:"email,omitempty"`
	Department    string         `json:"department"`
	Semester      int            `json:"semester"`
	FeeType       string         `json:"fee_type"`
	Amount        string         `json:"amount"`
	PaymentMethod string         `json:"payment_method"`
	TransactionID string         `json:"transaction_id"`
	PaidAt        time.Time      `json:"paid_at"`
	Breakdown     *breakdownView `json:"breakdown,omitempty"`
}

type profileView struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	StudentID  string `json:"student_id,omitempty"`
	Department string `json:"department,omitempty"`
	Semester   int    `json:"semester,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type rosterEntryView struct {
	profileView
	TotalDue  string `json:"total_due"`
	TotalPaid string `json:"total_paid"`
}

type settlementView struct {
	Payment paymentView `json:"payment"`
	// Warning is set when the payment was recorded but the fee still shows pending.
	Warning string `json:"warning,omitempty"`
}

func toBreakdownView(b core.Breakdown) breakdownView {
	return breakdownView{
		Tuition: b.Tuition.String(),
		Library: b.Library.String(),
		Lab:     b.Lab.String(),
		Other:   b.Other.String(),
	}
}

func toFeeView(f core.Fee, effective core.EffectiveStatus) feeView {
	return feeView{
		ID:              f.ID,
		UserID:          f.UserID,
		FeeType:         f.FeeType,
		Amount:          f.Amount.String(),
		DueDate:         f.DueDate.Format(time.DateOnly),
		AcademicYear:    f.AcademicYear,
		Semester:        f.Semester,
		Breakdown:       toBreakdownView(f.Breakdown),
		Status:          string(f.Status),
		EffectiveStatus: string(effective),
	}
}

func toPaymentView(p core.Payment) paymentView {
	return paymentView{
		ID:            p.ID,
		UserID:        p.UserID,
		FeeID:         p.FeeID,
		Amount:        p.Amount.String(),
		Method:        p.Method,
		TransactionID: p.TransactionID,
		ReceiptNumber: p.ReceiptNumber,
		PaidAt:        p.PaidAt.UTC(),
		Status:        string(p.Status),
	}
}

func toTransactionViews(tv []core.TransactionView) []transactionView {
	out := make([]transactionView, 0, len(tv))
	for _, t := range tv {
		out = append(out, transactionView{
			paymentView:  toPaymentView(t.Payment),
			StudentName:  t.StudentName,
			StudentEmail: t.StudentEmail,
			FeeType:      t.FeeType,
		})
	}
	return out
}

func toStudentDashboardView(d services.StudentDashboard) studentDashboardView {
	fees := make([]feeView, 0, len(d.Fees))
	for _, l := range d.Fees {
		fees = append(fees, toFeeView(l.Fee, l.EffectiveStatus))
	}
	return studentDashboardView{
		Fees:     fees,
		Payments: toTransactionViews(d.Payments),
		Totals: studentTotalsView{
			TotalOutstanding: d.Totals.TotalOutstanding.String(),
			TotalPaid:        d.Totals.TotalPaid.String(),
			PendingCount:     d.Totals.PendingCount,
			OverdueCount:     d.Totals.OverdueCount,
		},
	}
}

func toDashboardView(snap services.DashboardSnapshot, notice string) dashboardView {
	return dashboardView{
		Stats: orgStatsView{
			TotalRevenue:     snap.Stats.TotalRevenue.String(),
			PendingDues:      snap.Stats.PendingDues.String(),
			ActiveStudents:   snap.Stats.ActiveStudents,
			TransactionCount: snap.Stats.TransactionCount,
		},
		Recent:      toTransactionViews(snap.Recent),
		RefreshedAt: snap.RefreshedAt.UTC(),
		Notice:      notice,
	}
}

func toReceiptView(r core.Receipt) receiptView {
	v := receiptView{
		ReceiptNumber: r.ReceiptNumber,
		StudentName:   r.StudentName,
		StudentID:     r.StudentID,
		Email:         r.Email,
		Department:    r.Department,
		Semester:      r.Semester,
		FeeType:       r.FeeType,
		Amount:        r.Amount.String(),
		PaymentMethod: r.PaymentMethod,
		TransactionID: r.TransactionID,
		PaidAt:        r.PaidAt.UTC(),
	}
	if r.Breakdown != nil {
		b := toBreakdownView(*r.Breakdown)
		v.Breakdown = &b
	}
	return v
}

func toProfileView(p core.Profile) profileView {
	return profileView{
		ID:         p.ID,
		UserID:     p.UserID,
		FullName:   p.FullName,
		Email:      p.Email,
		Role:       string(p.Role),
		StudentID:  p.StudentID,
		Department: p.Department,
		Semester:   p.Semester,
		Phone:      p.Phone,
	}
}
