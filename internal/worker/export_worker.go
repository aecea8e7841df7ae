// Package worker exports settled payments to the spreadsheet ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"feedesk/internal/cache"
	"feedesk/internal/core"
	"feedesk/internal/ledger"
	"feedesk/internal/sheets"
)

const exportedMemory = 4096

// ExportWorker turns payment insert events into receipt rows. Payment IDs
// already exported by this process are remembered so redelivered events do
// not append duplicate rows.
type ExportWorker struct {
	store    ledger.Store
	writer   sheets.LedgerWriter
	exported *cache.LRUCache[string]
}

func NewExportWorker(store ledger.Store, writer sheets.LedgerWriter) *ExportWorker {
	return &ExportWorker{
		store:    store,
		writer:   writer,
		exported: cache.NewLRUCache[string](exportedMemory, 0),
	}
}

// HandlePaymentChange exports the payment named by ev. Only inserts are
// exported. A payment that no longer exists is logged and skipped so the
// message is acknowledged.
func (w *ExportWorker) HandlePaymentChange(ctx context.Context, ev ledger.ChangeEvent) error {
	if ev.Type != ledger.ChangeInsert {
		slog.DebugContext(ctx, "Ignoring payment change", "type", ev.Type, "payment_id", ev.PaymentID)
		return nil
	}
	if ref, ok := w.exported.Get(ev.PaymentID); ok {
		slog.InfoContext(ctx, "Payment already exported", "payment_id", ev.PaymentID, "sheets_ref", ref)
		return nil
	}

	p, err := w.store.GetPayment(ctx, ev.PaymentID)
	if errors.Is(err, ledger.ErrNotFound) {
		slog.WarnContext(ctx, "Payment vanished before export", "payment_id", ev.PaymentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get payment from storage: %w", err)
	}
	return w.export(ctx, p)
}

// ExportSince exports every payment paid at or after since, oldest first. It
// is the recovery path for events missed while the worker was down.
func (w *ExportWorker) ExportSince(ctx context.Context, since time.Time) (int, error) {
	payments, err := w.store.ListPayments(ctx, ledger.PaymentQuery{})
	if err != nil {
		return 0, fmt.Errorf("list payments: %w", err)
	}
	sort.SliceStable(payments, func(i, j int) bool { return payments[i].PaidAt.Before(payments[j].PaidAt) })

	exported := 0
	for _, p := range payments {
		if p.PaidAt.Before(since) {
			continue
		}
		if _, ok := w.exported.Get(p.ID); ok {
			continue
		}
		if err := w.export(ctx, p); err != nil {
			return exported, err
		}
		exported++
	}
	slog.InfoContext(ctx, "Export catch-up completed", "since", since.Format(time.RFC3339), "exported", exported)
	return exported, nil
}

func (w *ExportWorker) export(ctx context.Context, p core.Payment) error {
	fee, err := optional(w.store.GetFee(ctx, p.FeeID))
	if err != nil {
		return fmt.Errorf("get fee %s: %w", p.FeeID, err)
	}
	profile, err := optional(w.store.GetProfile(ctx, p.UserID))
	if err != nil {
		return fmt.Errorf("get profile %s: %w", p.UserID, err)
	}

	receipt := core.BuildReceipt(p, fee, profile)
	ref, err := w.writer.AppendReceipt(ctx, receipt)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	w.exported.Set(p.ID, ref)

	slog.InfoContext(ctx, "Exported payment",
		"payment_id", p.ID,
		"receipt_number", p.ReceiptNumber,
		"sheets_ref", ref,
		"amount_cents", p.Amount.Cents)
	return nil
}

func optional[T any](v T, err error) (*T, error) {
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
