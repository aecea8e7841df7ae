// Package adapters wires ledger stores to change notifiers.
package adapters

import (
	"context"
	"log/slog"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

// NotifyingStore publishes a change event after every successful payment
// insert. It stands in for a database trigger on stores that have none.
type NotifyingStore struct {
	ledger.Store
	notifier ledger.ChangeNotifier
}

func NewNotifyingStore(store ledger.Store, notifier ledger.ChangeNotifier) *NotifyingStore {
	return &NotifyingStore{Store: store, notifier: notifier}
}

// CreatePayment stores p and then publishes the insert. A publish failure is
// logged; the payment is already durable and is returned without error.
func (s *NotifyingStore) CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	created, err := s.Store.CreatePayment(ctx, p)
	if err != nil {
		return core.Payment{}, err
	}

	ev := ledger.ChangeEvent{
		Type:      ledger.ChangeInsert,
		PaymentID: created.ID,
		FeeID:     created.FeeID,
		UserID:    created.UserID,
		At:        created.PaidAt,
	}
	if err := s.notifier.NotifyPaymentChange(context.WithoutCancel(ctx), ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish payment change",
			"payment_id", created.ID,
			"fee_id", created.FeeID,
			"error", err)
	}
	return created, nil
}
