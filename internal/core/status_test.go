package core

import (
	"testing"
	"time"
)

// fixtureFee builds a valid fee whose breakdown splits amount across
// tuition, library and lab.
func fixtureFee(id, userID string, amount Money, due time.Time, status FeeStatus) Fee {
	tenth := amount.Cents / 10
	return Fee{
		ID:      id,
		UserID:  userID,
		FeeType: "Fee " + id,
		Amount:  amount,
		DueDate: due,
		Breakdown: Breakdown{
			Tuition: Money{Cents: amount.Cents - 2*tenth},
			Library: Money{Cents: tenth},
			Lab:     Money{Cents: tenth},
		},
		Status: status,
	}
}

func requireValidFees(t *testing.T, fees []Fee) {
	t.Helper()
	for _, f := range fees {
		if err := f.Validate(); err != nil {
			t.Fatalf("fixture fee %s: %v", f.ID, err)
		}
		if f.Breakdown.Total() != f.Amount {
			t.Fatalf("fixture fee %s: breakdown %s != amount %s", f.ID, f.Breakdown.Total(), f.Amount)
		}
	}
}

// permutations returns every ordering of xs.
func permutations[T any](xs []T) [][]T {
	if len(xs) <= 1 {
		return [][]T{append([]T(nil), xs...)}
	}
	var out [][]T
	for i := range xs {
		rest := make([]T, 0, len(xs)-1)
		rest = append(rest, xs[:i]...)
		rest = append(rest, xs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]T{xs[i]}, p...))
		}
	}
	return out
}

func TestEffectiveStatusOf(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		status FeeStatus
		due    time.Time
		want   EffectiveStatus
	}{
		{"pending in future", FeePending, NewDate(2025, 4, 1), StatusPending},
		{"pending yesterday", FeePending, NewDate(2025, 3, 14), StatusOverdue},
		{"pending due today", FeePending, NewDate(2025, 3, 15), StatusOverdue},
		{"pending exactly now", FeePending, now, StatusPending},
		{"paid in past", FeePaid, NewDate(2020, 1, 1), StatusPaid},
		{"paid in future", FeePaid, NewDate(2030, 1, 1), StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := fixtureFee("f", "u", Rupees(100), tc.due, tc.status)
			requireValidFees(t, []Fee{f})
			if got := EffectiveStatusOf(f, now); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			if got := f.EffectiveStatus(now); got != tc.want {
				t.Fatalf("method disagrees: expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestPaidFeeIsNeverOverdue(t *testing.T) {
	f := fixtureFee("f", "u", Rupees(100), NewDate(2000, 1, 1), FeePaid)
	requireValidFees(t, []Fee{f})
	for _, now := range []time.Time{NewDate(1999, 1, 1), NewDate(2000, 1, 2), NewDate(2100, 1, 1)} {
		if EffectiveStatusOf(f, now) == StatusOverdue {
			t.Fatalf("paid fee reported overdue at %v", now)
		}
	}
}

func TestComputeStudentTotals(t *testing.T) {
	now := NewDate(2025, 3, 15).Add(12 * time.Hour)
	fees := []Fee{
		fixtureFee("a", "s1", Rupees(1000), NewDate(2025, 4, 1), FeePending),
		fixtureFee("b", "s1", Rupees(2000), NewDate(2025, 3, 1), FeePending),
		fixtureFee("c", "s1", Rupees(4000), NewDate(2025, 2, 1), FeePaid),
		fixtureFee("d", "s1", Rupees(8000), NewDate(2025, 5, 1), FeePending),
	}
	requireValidFees(t, fees)
	payments := []Payment{
		{ID: "p1", FeeID: "c", Amount: Rupees(4000), Status: PaymentCompleted},
		{ID: "p2", FeeID: "x", Amount: Rupees(50), Status: "refunded"},
	}

	got := ComputeStudentTotals(fees, payments, now)
	want := StudentTotals{
		TotalOutstanding: Rupees(11000),
		TotalPaid:        Rupees(4000),
		PendingCount:     2,
		OverdueCount:     1,
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestComputeStudentTotalsOrderIndependent(t *testing.T) {
	now := NewDate(2025, 3, 15)
	fees := []Fee{
		fixtureFee("a", "s1", Rupees(100), NewDate(2025, 1, 1), FeePending),
		fixtureFee("b", "s1", Rupees(200), NewDate(2025, 6, 1), FeePending),
		fixtureFee("c", "s1", Rupees(300), NewDate(2025, 2, 1), FeePaid),
		fixtureFee("d", "s1", Money{Cents: 1999}, NewDate(2025, 3, 10), FeePending),
	}
	requireValidFees(t, fees)
	payments := []Payment{
		{ID: "p1", FeeID: "c", Amount: Rupees(300), Status: PaymentCompleted},
		{ID: "p2", FeeID: "x", Amount: Rupees(7), Status: PaymentCompleted},
		{ID: "p3", FeeID: "y", Amount: Rupees(50), Status: "refunded"},
	}
	want := StudentTotals{
		TotalOutstanding: Money{Cents: 31999},
		TotalPaid:        Rupees(307),
		PendingCount:     1,
		OverdueCount:     2,
	}

	feeOrders := permutations(fees)
	paymentOrders := permutations(payments)
	if len(feeOrders) != 24 || len(paymentOrders) != 6 {
		t.Fatalf("expected 24x6 orderings, got %dx%d", len(feeOrders), len(paymentOrders))
	}
	for i, fs := range feeOrders {
		for j, ps := range paymentOrders {
			if got := ComputeStudentTotals(fs, ps, now); got != want {
				t.Fatalf("ordering %d/%d: expected %+v, got %+v", i, j, want, got)
			}
		}
	}
}

func TestComputeStudentTotalsEmpty(t *testing.T) {
	if got := ComputeStudentTotals(nil, nil, time.Now()); got != (StudentTotals{}) {
		t.Fatalf("expected zero totals, got %+v", got)
	}
}

func TestPendingFees(t *testing.T) {
	fees := []Fee{
		fixtureFee("a", "s1", Rupees(10), NewDate(2025, 1, 1), FeePending),
		fixtureFee("b", "s1", Rupees(20), NewDate(2025, 2, 1), FeePaid),
		fixtureFee("c", "s1", Rupees(30), NewDate(2025, 3, 1), FeePending),
	}
	requireValidFees(t, fees)
	got := PendingFees(fees)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected pending fees: %+v", got)
	}
}
