package core

import "time"

// StudentTotals summarises one student's fees and payments.
type StudentTotals struct {
	TotalOutstanding Money
	TotalPaid        Money
	PendingCount     int
	OverdueCount     int
}

// EffectiveStatusOf derives the displayed status of a fee at instant now.
// A stored paid fee is paid; otherwise a due date strictly before now makes it
// overdue. Due dates are calendar days at midnight UTC, so a fee becomes
// overdue during its due day.
func EffectiveStatusOf(f Fee, now time.Time) EffectiveStatus {
	if f.Status == FeePaid {
		return StatusPaid
	}
	if f.DueDate.Before(now) {
		return StatusOverdue
	}
	return StatusPending
}

// EffectiveStatus is shorthand for EffectiveStatusOf(f, now).
func (f Fee) EffectiveStatus(now time.Time) EffectiveStatus {
	return EffectiveStatusOf(f, now)
}

// ComputeStudentTotals folds a student's fees and payments into totals.
//
// TotalOutstanding sums every stored-pending fee, overdue ones included.
// TotalPaid sums completed payments. PendingCount and OverdueCount use the
// effective status, so an overdue fee is counted once, as overdue.
func ComputeStudentTotals(fees []Fee, payments []Payment, now time.Time) StudentTotals {
	var t StudentTotals
	for _, f := range fees {
		if f.Status == FeePending {
			t.TotalOutstanding = t.TotalOutstanding.Add(f.Amount)
		}
		switch EffectiveStatusOf(f, now) {
		case StatusPending:
			t.PendingCount++
		case StatusOverdue:
			t.OverdueCount++
		}
	}
	for _, p := range payments {
		if p.Status == PaymentCompleted {
			t.TotalPaid = t.TotalPaid.Add(p.Amount)
		}
	}
	return t
}

// PendingFees returns the stored-pending fees in their original order.
func PendingFees(fees []Fee) []Fee {
	out := make([]Fee, 0, len(fees))
	for _, f := range fees {
		if f.Status == FeePending {
			out = append(out, f)
		}
	}
	return out
}
