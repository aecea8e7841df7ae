package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

// FeeLine is a fee with its status as of the ledger's clock.
type FeeLine struct {
	Fee             core.Fee
	EffectiveStatus core.EffectiveStatus
}

// StudentDashboard is what a student sees on their landing page.
type StudentDashboard struct {
	Fees     []FeeLine
	Payments []core.TransactionView
	Totals   core.StudentTotals
}

// StudentLedger is one student's local view of their fees and payments.
// Store calls run outside the lock; the lock only guards local state.
type StudentLedger struct {
	session  core.Session
	fees     ledger.FeeStore
	payments ledger.PaymentStore
	submit   *PaymentService
	now      func() time.Time

	mu      sync.Mutex
	local   []core.Fee
	history []core.Payment
}

func NewStudentLedger(session core.Session, fees ledger.FeeStore, payments ledger.PaymentStore, submit *PaymentService) (*StudentLedger, error) {
	if session.UserID == "" {
		return nil, ErrForbidden
	}
	return &StudentLedger{
		session:  session,
		fees:     fees,
		payments: payments,
		submit:   submit,
		now:      time.Now,
	}, nil
}

// Refresh fetches fees and payments in parallel and replaces local state
// with the result.
func (l *StudentLedger) Refresh(ctx context.Context) error {
	var (
		fees     []core.Fee
		payments []core.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fees, err = l.fees.ListFees(gctx, ledger.FeeQuery{UserID: l.session.UserID})
		if err != nil {
			return fmt.Errorf("list fees: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		payments, err = l.payments.ListPayments(gctx, ledger.PaymentQuery{UserID: l.session.UserID})
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	l.mu.Lock()
	l.local = fees
	l.history = payments
	l.mu.Unlock()
	return nil
}

func (l *StudentLedger) Fees() []core.Fee {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Fee(nil), l.local...)
}

func (l *StudentLedger) Payments() []core.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Payment(nil), l.history...)
}

// PendingFees lists stored-pending fees by due date, overdue ones included.
func (l *StudentLedger) PendingFees() []core.Fee {
	return core.PendingFees(l.Fees())
}

func (l *StudentLedger) Totals() core.StudentTotals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.ComputeStudentTotals(l.local, l.history, l.now())
}

// Dashboard assembles fees with effective statuses, payments with fee types
// and totals from local state.
func (l *StudentLedger) Dashboard() StudentDashboard {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	lines := make([]FeeLine, 0, len(l.local))
	for _, f := range l.local {
		lines = append(lines, FeeLine{Fee: f, EffectiveStatus: f.EffectiveStatus(now)})
	}
	return StudentDashboard{
		Fees:     lines,
		Payments: core.JoinTransactionView(l.history, core.IndexFees(l.local), nil),
		Totals:   core.ComputeStudentTotals(l.local, l.history, now),
	}
}

// SubmitPayment pays a fee from local state. On success the fee is marked
// paid locally right away and the ledger is then re-fetched; the re-fetch
// replaces the optimistic state. A failed re-fetch keeps the optimistic state.
func (l *StudentLedger) SubmitPayment(ctx context.Context, feeID, method string) (Settlement, error) {
	fee, ok := l.lookup(feeID)
	if !ok {
		return Settlement{}, fmt.Errorf("fee %s: %w", feeID, ledger.ErrNotFound)
	}

	settlement, err := l.submit.Submit(ctx, l.session, fee, method)
	if err != nil {
		return Settlement{}, err
	}

	l.mu.Lock()
	for i := range l.local {
		if l.local[i].ID == feeID {
			l.local[i].Status = core.FeePaid
		}
	}
	l.history = append([]core.Payment{settlement.Payment}, l.history...)
	l.mu.Unlock()

	if err := l.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "Refresh after payment failed, keeping local state",
			"fee_id", feeID, "user_id", l.session.UserID, "error", err)
	}
	return settlement, nil
}

func (l *StudentLedger) lookup(feeID string) (core.Fee, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.local {
		if f.ID == feeID {
			return f, true
		}
	}
	return core.Fee{}, false
}
