// Package memory is an in-process ledger store used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

// Store keeps profiles, fees and payments in maps guarded by one mutex.
// Every payment insert is published on the attached Feed, mirroring a
// database trigger.
type Store struct {
	mu       sync.Mutex
	profiles []core.Profile
	fees     map[string]core.Fee
	payments map[string]core.Payment

	feed *Feed
	Now  func() time.Time
}

func New() *Store {
	return &Store{
		fees:     make(map[string]core.Fee),
		payments: make(map[string]core.Payment),
		feed:     NewFeed(),
		Now:      time.Now,
	}
}

// Feed returns the change feed that receives this store's payment events.
func (s *Store) Feed() *Feed {
	return s.feed
}

func (s *Store) ListProfiles(_ context.Context) ([]core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Profile(nil), s.profiles...), nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return core.Profile{}, fmt.Errorf("profile %s: %w", userID, ledger.ErrNotFound)
}

func (s *Store) CreateProfile(_ context.Context, p core.Profile) (core.Profile, error) {
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.profiles {
		if existing.UserID == p.UserID {
			return core.Profile{}, fmt.Errorf("profile for user %s: %w", p.UserID, ledger.ErrConflict)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.profiles = append(s.profiles, p)
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p core.Profile) (core.Profile, error) {
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.profiles {
		if existing.UserID != p.UserID {
			continue
		}
		existing.FullName = p.FullName
		existing.StudentID = p.StudentID
		existing.Department = p.Department
		existing.Semester = p.Semester
		existing.Phone = p.Phone
		s.profiles[i] = existing
		return existing, nil
	}
	return core.Profile{}, fmt.Errorf("profile %s: %w", p.UserID, ledger.ErrNotFound)
}

func (s *Store) ListFees(_ context.Context, q ledger.FeeQuery) ([]core.Fee, error) {
	s.mu.Lock()
	out := make([]core.Fee, 0, len(s.fees))
	for _, f := range s.fees {
		if q.UserID != "" && f.UserID != q.UserID {
			continue
		}
		if q.Status != "" && f.Status != q.Status {
			continue
		}
		out = append(out, f)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetFee(_ context.Context, id string) (core.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fees[id]
	if !ok {
		return core.Fee{}, fmt.Errorf("fee %s: %w", id, ledger.ErrNotFound)
	}
	return f, nil
}

func (s *Store) CreateFee(_ context.Context, f core.Fee) (core.Fee, error) {
	if err := f.Validate(); err != nil {
		return core.Fee{}, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.DueDate = core.DateOnly(f.DueDate)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees[f.ID] = f
	return f, nil
}

func (s *Store) MarkFeePaid(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fees[id]
	if !ok {
		return fmt.Errorf("fee %s: %w", id, ledger.ErrNotFound)
	}
	f.Status = core.FeePaid
	s.fees[id] = f
	return nil
}

func (s *Store) ListPayments(_ context.Context, q ledger.PaymentQuery) ([]core.Payment, error) {
	s.mu.Lock()
	out := make([]core.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if q.UserID != "" && p.UserID != q.UserID {
			continue
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.After(out[j].PaidAt)
		}
		return out[i].ID > out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) GetPayment(_ context.Context, id string) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return core.Payment{}, fmt.Errorf("payment %s: %w", id, ledger.ErrNotFound)
	}
	return p, nil
}

// GetPaymentByReceipt returns the earliest payment carrying receiptNumber,
// the lowest ID winning between payments made at the same instant.
func (s *Store) GetPaymentByReceipt(_ context.Context, receiptNumber string) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		found core.Payment
		ok    bool
	)
	for _, p := range s.payments {
		if p.ReceiptNumber != receiptNumber {
			continue
		}
		if !ok || p.PaidAt.Before(found.PaidAt) || (p.PaidAt.Equal(found.PaidAt) && p.ID < found.ID) {
			found, ok = p, true
		}
	}
	if !ok {
		return core.Payment{}, fmt.Errorf("receipt %s: %w", receiptNumber, ledger.ErrNotFound)
	}
	return found, nil
}

func (s *Store) CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = s.Now()
	}
	s.mu.Lock()
	s.payments[p.ID] = p
	s.mu.Unlock()

	_ = s.feed.NotifyPaymentChange(ctx, ledger.ChangeEvent{
		Type:      ledger.ChangeInsert,
		PaymentID: p.ID,
		FeeID:     p.FeeID,
		UserID:    p.UserID,
		At:        p.PaidAt,
	})
	return p, nil
}
