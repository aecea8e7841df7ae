package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

func TestSemesterFeeSettlementEndToEnd(t *testing.T) {
	ctx := context.Background()
	store, fee := newFixture(t)
	l := newLedger(t, store, NewPaymentService(store, store, fixedIDs(), ""))

	if got := fee.EffectiveStatus(fixedNow); got != core.StatusOverdue {
		t.Fatalf("expected overdue before payment, got %s", got)
	}

	settlement, err := l.SubmitPayment(ctx, fee.ID, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if settlement.FeeMarkErr != nil {
		t.Fatalf("unexpected fee mark error: %v", settlement.FeeMarkErr)
	}

	stored, err := store.GetFee(ctx, fee.ID)
	if err != nil {
		t.Fatalf("get fee: %v", err)
	}
	if stored.Status != core.FeePaid {
		t.Fatalf("expected fee paid, got %s", stored.Status)
	}

	payments, _ := store.ListPayments(ctx, ledger.PaymentQuery{UserID: studentSession.UserID})
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment, got %d", len(payments))
	}
	p := payments[0]
	if p.Amount != core.Rupees(45000) || p.Method != DefaultPaymentMethod || p.Status != core.PaymentCompleted {
		t.Fatalf("unexpected payment %+v", p)
	}
	if p.TransactionID != "TXN1742032800000" || p.ReceiptNumber != "RCP1742032800000" {
		t.Fatalf("unexpected identifiers %q %q", p.TransactionID, p.ReceiptNumber)
	}

	totals := l.Totals()
	if !totals.TotalOutstanding.IsZero() || totals.TotalPaid != core.Rupees(45000) {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if totals.OverdueCount != 0 || totals.PendingCount != 0 {
		t.Fatalf("expected no open fees, got %+v", totals)
	}
}

func TestSubmitInsertFailureLeavesFeeUntouched(t *testing.T) {
	ctx := context.Background()
	store, fee := newFixture(t)
	store.createPaymentErr = errStoreDown
	svc := NewPaymentService(store, store, fixedIDs(), "")

	_, err := svc.Submit(ctx, studentSession, fee, "")
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	stored, _ := store.GetFee(ctx, fee.ID)
	if stored.Status != core.FeePending {
		t.Fatalf("fee mutated after failed insert: %s", stored.Status)
	}
	payments, _ := store.ListPayments(ctx, ledger.PaymentQuery{})
	if len(payments) != 0 {
		t.Fatalf("expected no payments, got %d", len(payments))
	}
}

func TestSubmitMarkFailureIsReportedAsSuccess(t *testing.T) {
	ctx := context.Background()
	store, fee := newFixture(t)
	store.markFeePaidErr = errStoreDown
	svc := NewPaymentService(store, store, fixedIDs(), "")

	settlement, err := svc.Submit(ctx, studentSession, fee, "upi")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !errors.Is(settlement.FeeMarkErr, errStoreDown) {
		t.Fatalf("expected fee mark error to be reported, got %v", settlement.FeeMarkErr)
	}
	if settlement.Payment.Method != "upi" {
		t.Fatalf("expected method upi, got %q", settlement.Payment.Method)
	}

	stored, _ := store.GetFee(ctx, fee.ID)
	if stored.Status != core.FeePending {
		t.Fatalf("expected fee to stay pending, got %s", stored.Status)
	}
	payments, _ := store.ListPayments(ctx, ledger.PaymentQuery{})
	if len(payments) != 1 {
		t.Fatalf("expected the payment to be kept, got %d", len(payments))
	}
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	store, fee := newFixture(t)
	svc := NewPaymentService(store, store, fixedIDs(), "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Submit(ctx, studentSession, fee, ""); err != nil {
		t.Fatalf("submit with cancelled context: %v", err)
	}
	stored, _ := store.GetFee(context.Background(), fee.ID)
	if stored.Status != core.FeePaid {
		t.Fatalf("expected fee paid, got %s", stored.Status)
	}
}

func TestSubmitRejectsForeignAndPaidFees(t *testing.T) {
	ctx := context.Background()
	store, fee := newFixture(t)
	svc := NewPaymentService(store, store, fixedIDs(), "")

	other := core.Session{UserID: "someone-else", Role: core.RoleStudent}
	if _, err := svc.Submit(ctx, other, fee, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	paid := fee
	paid.Status = core.FeePaid
	if _, err := svc.Submit(ctx, studentSession, paid, ""); !errors.Is(err, ErrFeeAlreadyPaid) {
		t.Fatalf("expected ErrFeeAlreadyPaid, got %v", err)
	}
}

// Two sessions that both loaded the fee while pending each settle it. Nothing
// prevents the second payment.
func TestConcurrentSubmissionsSettleTwice(t *testing.T) {
	ctx := context.Background()
	store, fee := newFixture(t)
	svc := NewPaymentService(store, store, fixedIDs(), "")

	tabs := []*StudentLedger{newLedger(t, store, svc), newLedger(t, store, svc)}

	var wg sync.WaitGroup
	errs := make([]error, len(tabs))
	for i, l := range tabs {
		wg.Add(1)
		go func(i int, l *StudentLedger) {
			defer wg.Done()
			_, errs[i] = l.SubmitPayment(ctx, fee.ID, "")
		}(i, l)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}
	payments, _ := store.ListPayments(ctx, ledger.PaymentQuery{})
	if len(payments) != 2 {
		t.Fatalf("expected duplicate settlement (2 payments), got %d", len(payments))
	}
	// Both identifiers come from the same millisecond.
	if payments[0].ReceiptNumber != payments[1].ReceiptNumber {
		t.Fatalf("expected colliding receipt numbers, got %q and %q", payments[0].ReceiptNumber, payments[1].ReceiptNumber)
	}
	stored, _ := store.GetFee(ctx, fee.ID)
	if stored.Status != core.FeePaid {
		t.Fatalf("expected fee paid, got %s", stored.Status)
	}
}
