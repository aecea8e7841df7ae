package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

func TestStoreFeesOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, f := range []core.Fee{
		{UserID: "u1", FeeType: "Late", Amount: core.Rupees(10), DueDate: core.NewDate(2025, 6, 1), Breakdown: core.Breakdown{Other: core.Rupees(10)}, Status: core.FeePending},
		{UserID: "u1", FeeType: "Early", Amount: core.Rupees(20), DueDate: core.NewDate(2025, 1, 1), Breakdown: core.Breakdown{Other: core.Rupees(20)}, Status: core.FeePaid},
		{UserID: "u2", FeeType: "Other", Amount: core.Rupees(30), DueDate: core.NewDate(2025, 3, 1), Breakdown: core.Breakdown{Other: core.Rupees(30)}, Status: core.FeePending},
	} {
		if _, err := s.CreateFee(ctx, f); err != nil {
			t.Fatalf("create fee: %v", err)
		}
	}

	fees, err := s.ListFees(ctx, ledger.FeeQuery{UserID: "u1"})
	if err != nil {
		t.Fatalf("list fees: %v", err)
	}
	if len(fees) != 2 || fees[0].FeeType != "Early" || fees[1].FeeType != "Late" {
		t.Fatalf("unexpected order: %+v", fees)
	}

	pending, _ := s.ListFees(ctx, ledger.FeeQuery{Status: core.FeePending})
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending fees, got %d", len(pending))
	}
}

func TestStoreRejectsInvalidRows(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.CreateFee(ctx, core.Fee{UserID: "u", FeeType: "x", Amount: core.Rupees(5), DueDate: core.NewDate(2025, 1, 1), Status: core.FeePending}); !errors.Is(err, core.ErrBreakdownMismatch) {
		t.Fatalf("expected breakdown mismatch, got %v", err)
	}
	if _, err := s.CreatePayment(ctx, core.Payment{UserID: "u", FeeID: "f", Status: core.PaymentCompleted}); err == nil {
		t.Fatalf("expected payment without identifiers to be rejected")
	}
}

func TestStorePaymentsNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := s.CreatePayment(ctx, core.Payment{
			UserID: "u1", FeeID: "f", Amount: core.Rupees(1), Method: "card",
			TransactionID: "TXN", ReceiptNumber: "RCP", Status: core.PaymentCompleted,
			PaidAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create payment: %v", err)
		}
	}

	got, err := s.ListPayments(ctx, ledger.PaymentQuery{Limit: 3})
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 payments, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].PaidAt.After(got[i-1].PaidAt) {
			t.Fatalf("payments not newest first: %v after %v", got[i].PaidAt, got[i-1].PaidAt)
		}
	}
	if !got[0].PaidAt.Equal(base.Add(4 * time.Hour)) {
		t.Fatalf("expected newest payment first, got %v", got[0].PaidAt)
	}

	byReceipt, err := s.GetPaymentByReceipt(ctx, "RCP")
	if err != nil || !byReceipt.PaidAt.Equal(base) {
		t.Fatalf("expected earliest payment for duplicated receipt, got %+v (%v)", byReceipt, err)
	}
}

func TestStoreReceiptCollisionPicksLowestID(t *testing.T) {
	ctx := context.Background()
	paidAt := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		name string
		ids  []string
		want string
	}{
		{"ascending insert", []string{"pay-a", "pay-b", "pay-c"}, "pay-a"},
		{"descending insert", []string{"pay-c", "pay-b", "pay-a"}, "pay-a"},
		{"mixed insert", []string{"pay-b", "pay-c", "pay-a"}, "pay-a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			for _, id := range tc.ids {
				if _, err := s.CreatePayment(ctx, core.Payment{
					ID: id, UserID: "u1", FeeID: "f-" + id, Amount: core.Rupees(1), Method: "card",
					TransactionID: "TXN-" + id, ReceiptNumber: "RCP-SAME", Status: core.PaymentCompleted,
					PaidAt: paidAt,
				}); err != nil {
					t.Fatalf("create payment: %v", err)
				}
			}
			// Map iteration order varies between calls.
			for i := 0; i < 20; i++ {
				got, err := s.GetPaymentByReceipt(ctx, "RCP-SAME")
				if err != nil {
					t.Fatalf("get by receipt: %v", err)
				}
				if got.ID != tc.want {
					t.Fatalf("expected %s, got %s", tc.want, got.ID)
				}
			}
		})
	}
}

func TestStoreUpdateProfile(t *testing.T) {
	ctx := context.Background()
	s := New()
	created, err := s.CreateProfile(ctx, core.Profile{
		UserID: "u1", FullName: "Asha Rao", Email: "asha@example.edu", Role: core.RoleStudent, Semester: 4,
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	cases := []struct {
		name    string
		in      core.Profile
		wantErr error
	}{
		{
			name: "self-service fields",
			in: core.Profile{UserID: "u1", FullName: "Asha R. Rao", StudentID: "CS-042", Department: "CSE",
				Semester: 5, Phone: "98450", Role: core.RoleStudent},
		},
		{
			name: "role and email ignored",
			in: core.Profile{UserID: "u1", FullName: "Asha Rao", Email: "root@example.edu", Role: core.RoleAdmin,
				Semester: 5},
		},
		{
			name:    "unknown user",
			in:      core.Profile{UserID: "ghost", FullName: "X", Role: core.RoleStudent},
			wantErr: ledger.ErrNotFound,
		},
		{
			name:    "invalid role value",
			in:      core.Profile{UserID: "u1", FullName: "X", Role: "staff"},
			wantErr: core.ErrInvalidRole,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.UpdateProfile(ctx, tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("update profile: %v", err)
			}
			stored, _ := s.GetProfile(ctx, "u1")
			if stored != got {
				t.Fatalf("returned %+v, stored %+v", got, stored)
			}
			if got.ID != created.ID || got.Role != core.RoleStudent || got.Email != "asha@example.edu" {
				t.Fatalf("identity fields changed: %+v", got)
			}
			if got.FullName != tc.in.FullName || got.Semester != tc.in.Semester || got.Phone != tc.in.Phone {
				t.Fatalf("expected %+v applied, got %+v", tc.in, got)
			}
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetFee(ctx, "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.MarkFeePaid(ctx, "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetProfile(ctx, "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStorePublishesPaymentInserts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	var seen atomic.Int32
	var last atomic.Value
	unsubscribe, err := s.Feed().Subscribe(ctx, func(ev ledger.ChangeEvent) {
		seen.Add(1)
		last.Store(ev)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p, err := s.CreatePayment(ctx, core.Payment{
		UserID: "u1", FeeID: "f1", Amount: core.Rupees(1), TransactionID: "T", ReceiptNumber: "R", Status: core.PaymentCompleted,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if seen.Load() != 1 {
		t.Fatalf("expected one event, got %d", seen.Load())
	}
	ev := last.Load().(ledger.ChangeEvent)
	if ev.Type != ledger.ChangeInsert || ev.PaymentID != p.ID || ev.FeeID != "f1" {
		t.Fatalf("unexpected event %+v", ev)
	}

	unsubscribe()
	unsubscribe()
	if _, err := s.CreatePayment(ctx, core.Payment{
		UserID: "u1", FeeID: "f1", Amount: core.Rupees(1), TransactionID: "T2", ReceiptNumber: "R2", Status: core.PaymentCompleted,
	}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if seen.Load() != 1 {
		t.Fatalf("handler called after unsubscribe")
	}
}

func TestFeedUnsubscribesOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := NewFeed()
	if _, err := f.Subscribe(ctx, func(ledger.ChangeEvent) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	deadline := time.Now().Add(time.Second)
	for f.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not removed after cancel")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	if err := ledger.SeedDemo(ctx, s, now); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := ledger.SeedDemo(ctx, s, now); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	profiles, _ := s.ListProfiles(ctx)
	fees, _ := s.ListFees(ctx, ledger.FeeQuery{})
	if len(profiles) != 3 || len(fees) != 3 {
		t.Fatalf("expected 3 profiles and 3 fees, got %d and %d", len(profiles), len(fees))
	}
}
