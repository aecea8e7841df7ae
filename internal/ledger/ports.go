// Package ledger defines the ports between the fee ledger services and the
// stores and change feeds that back them.
package ledger

import (
	"context"
	"errors"
	"time"

	"feedesk/internal/core"
)

var (
	// ErrNotFound is returned by single-row lookups that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a create collides with a unique key.
	ErrConflict = errors.New("already exists")
)

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

type (
	// FeeQuery filters fees. Empty fields match everything.
	// Results are ordered by due date ascending.
	FeeQuery struct {
		UserID string
		Status core.FeeStatus
	}

	// PaymentQuery filters payments. Results are ordered by paid_at descending.
	// A zero Limit means no limit.
	PaymentQuery struct {
		UserID string
		Limit  int
	}

	ProfileStore interface {
		ListProfiles(ctx context.Context) ([]core.Profile, error)
		GetProfile(ctx context.Context, userID string) (core.Profile, error)
		// CreateProfile assigns an ID when p.ID is empty.
		CreateProfile(ctx context.Context, p core.Profile) (core.Profile, error)
		// UpdateProfile overwrites the self-service fields (full name, student
		// ID, department, semester, phone) of the profile owned by p.UserID
		// and returns the stored row. Role and email are left untouched.
		UpdateProfile(ctx context.Context, p core.Profile) (core.Profile, error)
	}

	FeeStore interface {
		ListFees(ctx context.Context, q FeeQuery) ([]core.Fee, error)
		GetFee(ctx context.Context, id string) (core.Fee, error)
		// CreateFee validates f and assigns an ID when f.ID is empty.
		CreateFee(ctx context.Context, f core.Fee) (core.Fee, error)
		// MarkFeePaid sets the stored status of a fee to paid.
		MarkFeePaid(ctx context.Context, id string) error
	}

	PaymentStore interface {
		ListPayments(ctx context.Context, q PaymentQuery) ([]core.Payment, error)
		GetPayment(ctx context.Context, id string) (core.Payment, error)
		GetPaymentByReceipt(ctx context.Context, receiptNumber string) (core.Payment, error)
		// CreatePayment validates p, assigns an ID when empty and sets PaidAt
		// to the store's clock when zero.
		CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error)
	}

	// Store is the full persistence port.
	Store interface {
		ProfileStore
		FeeStore
		PaymentStore
	}

	ChangeType string

	// ChangeEvent signals that a row of the payments collection changed.
	ChangeEvent struct {
		Type      ChangeType
		PaymentID string
		FeeID     string
		UserID    string
		At        time.Time
	}

	// ChangeFeed delivers payment change events. The handler runs on the
	// feed's goroutine; unsubscribe stops delivery and is safe to call twice.
	ChangeFeed interface {
		Subscribe(ctx context.Context, handler func(ChangeEvent)) (unsubscribe func(), err error)
	}

	// ChangeNotifier publishes payment change events to a feed.
	ChangeNotifier interface {
		NotifyPaymentChange(ctx context.Context, ev ChangeEvent) error
	}
)
