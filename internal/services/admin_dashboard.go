package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

const (
	DefaultDashboardLimit = 50
	NewPaymentNotice      = "New payment received!"
)

// DashboardSnapshot is one computed view of the organization.
type DashboardSnapshot struct {
	Stats       core.OrganizationStats
	Recent      []core.TransactionView
	RefreshedAt time.Time
}

// DashboardUpdate is pushed to watchers after every refresh. Notice is set
// when the refresh was triggered by a payment insert.
type DashboardUpdate struct {
	Snapshot DashboardSnapshot
	Notice   string
}

// AdminDashboard keeps organization stats current by re-reading the store
// whenever the payment change feed fires.
//
// Each event starts its own refresh. Refreshes are not serialized, so the one
// that finishes last decides the stored snapshot.
type AdminDashboard struct {
	store ledger.Store
	feed  ledger.ChangeFeed
	limit int
	now   func() time.Time

	mu       sync.RWMutex
	snapshot DashboardSnapshot
	watchers map[int]func(DashboardUpdate)
	nextID   int

	lifeMu      sync.Mutex
	running     bool
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

func NewAdminDashboard(store ledger.Store, feed ledger.ChangeFeed, limit int) *AdminDashboard {
	if limit <= 0 {
		limit = DefaultDashboardLimit
	}
	return &AdminDashboard{
		store:    store,
		feed:     feed,
		limit:    limit,
		now:      time.Now,
		watchers: make(map[int]func(DashboardUpdate)),
	}
}

// Start computes the first snapshot and subscribes to the change feed.
func (d *AdminDashboard) Start(ctx context.Context) error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.running {
		return errors.New("dashboard already running")
	}

	if _, err := d.Refresh(ctx); err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if d.feed != nil {
		unsubscribe, err := d.feed.Subscribe(runCtx, func(ev ledger.ChangeEvent) {
			d.onChange(runCtx, ev)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe to payment changes: %w", err)
		}
		d.unsubscribe = unsubscribe
	} else {
		slog.WarnContext(ctx, "No change feed configured, dashboard will not refresh live")
	}

	d.cancel = cancel
	d.running = true
	slog.InfoContext(ctx, "Admin dashboard started", "payment_limit", d.limit)
	return nil
}

// Stop unsubscribes and waits for in-flight refreshes.
func (d *AdminDashboard) Stop() {
	d.lifeMu.Lock()
	if !d.running {
		d.lifeMu.Unlock()
		return
	}
	d.running = false
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	d.cancel()
	d.lifeMu.Unlock()

	d.wg.Wait()
	slog.Info("Admin dashboard stopped")
}

func (d *AdminDashboard) onChange(ctx context.Context, ev ledger.ChangeEvent) {
	if ctx.Err() != nil {
		return
	}
	notice := ""
	if ev.Type == ledger.ChangeInsert {
		notice = NewPaymentNotice
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		snap, err := d.Refresh(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.ErrorContext(ctx, "Dashboard refresh failed", "event", string(ev.Type), "payment_id", ev.PaymentID, "error", err)
			}
			return
		}
		d.broadcast(DashboardUpdate{Snapshot: snap, Notice: notice})
	}()
}

// Refresh re-reads payments, profiles and fees in parallel and stores the
// recomputed snapshot. Revenue covers the full payment history; the recent
// list and the transaction count are capped at the configured limit.
func (d *AdminDashboard) Refresh(ctx context.Context) (DashboardSnapshot, error) {
	var (
		payments []core.Payment
		profiles []core.Profile
		fees     []core.Fee
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		payments, err = d.store.ListPayments(gctx, ledger.PaymentQuery{})
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		profiles, err = d.store.ListProfiles(gctx)
		if err != nil {
			return fmt.Errorf("list profiles: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		fees, err = d.store.ListFees(gctx, ledger.FeeQuery{})
		if err != nil {
			return fmt.Errorf("list fees: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return DashboardSnapshot{}, err
	}

	recent := payments
	if len(recent) > d.limit {
		recent = recent[:d.limit]
	}
	stats := core.ComputeOrganizationStats(payments, fees, profiles)
	stats.TransactionCount = len(recent)

	snap := DashboardSnapshot{
		Stats:       stats,
		Recent:      core.JoinTransactionView(recent, core.IndexFees(fees), core.IndexProfiles(profiles)),
		RefreshedAt: d.now(),
	}

	d.mu.Lock()
	d.snapshot = snap
	d.mu.Unlock()
	return snap, nil
}

// Snapshot returns the last stored snapshot.
func (d *AdminDashboard) Snapshot() DashboardSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// Watch registers fn for every refresh triggered by the change feed.
func (d *AdminDashboard) Watch(fn func(DashboardUpdate)) (cancel func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.watchers[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.watchers, id)
			d.mu.Unlock()
		})
	}
}

func (d *AdminDashboard) broadcast(u DashboardUpdate) {
	d.mu.RLock()
	fns := make([]func(DashboardUpdate), 0, len(d.watchers))
	for _, fn := range d.watchers {
		fns = append(fns, fn)
	}
	d.mu.RUnlock()
	for _, fn := range fns {
		fn(u)
	}
}

// Transactions returns every payment joined with fee and payer, newest first.
func (d *AdminDashboard) Transactions(ctx context.Context, session core.Session) ([]core.TransactionView, error) {
	if !session.IsAdmin() {
		return nil, ErrForbidden
	}
	var (
		payments []core.Payment
		profiles []core.Profile
		fees     []core.Fee
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		payments, err = d.store.ListPayments(gctx, ledger.PaymentQuery{})
		return err
	})
	g.Go(func() (err error) {
		profiles, err = d.store.ListProfiles(gctx)
		return err
	})
	g.Go(func() (err error) {
		fees, err = d.store.ListFees(gctx, ledger.FeeQuery{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return core.JoinTransactionView(payments, core.IndexFees(fees), core.IndexProfiles(profiles)), nil
}
