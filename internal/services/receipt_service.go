package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"feedesk/internal/cache"
	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

type cachedReceipt struct {
	owner   string
	receipt core.Receipt
}

// ReceiptService builds receipt records. Payments never change once written,
// so single receipts are cached by receipt number.
type ReceiptService struct {
	store ledger.Store
	lru   *cache.LRUCache[cachedReceipt]
	cache cache.Cache[cachedReceipt]
}

// NewReceiptService caches up to cacheSize receipts for ttl. A cacheSize of
// zero disables caching.
func NewReceiptService(store ledger.Store, cacheSize int, ttl time.Duration) *ReceiptService {
	s := &ReceiptService{store: store}
	if cacheSize > 0 {
		s.lru = cache.NewLRUCache[cachedReceipt](cacheSize, ttl)
		s.cache = s.lru
	}
	return s
}

// Cleaner exposes the receipt cache for periodic sweeping; nil when caching is off.
func (s *ReceiptService) Cleaner() cache.Cleaner {
	if s.lru == nil {
		return nil
	}
	return s.lru
}

func (s *ReceiptService) CacheStats() cache.Stats {
	if s.lru == nil {
		return cache.Stats{}
	}
	return s.lru.Stats()
}

// Receipts lists the session user's receipts, newest first.
func (s *ReceiptService) Receipts(ctx context.Context, session core.Session) ([]core.Receipt, error) {
	if session.UserID == "" {
		return nil, ErrForbidden
	}
	var (
		payments []core.Payment
		fees     []core.Fee
		profile  *core.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		payments, err = s.store.ListPayments(gctx, ledger.PaymentQuery{UserID: session.UserID})
		return err
	})
	g.Go(func() (err error) {
		fees, err = s.store.ListFees(gctx, ledger.FeeQuery{UserID: session.UserID})
		return err
	})
	g.Go(func() error {
		p, err := s.optionalProfile(gctx, session.UserID)
		profile = p
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}

	byID := core.IndexFees(fees)
	out := make([]core.Receipt, 0, len(payments))
	for _, p := range payments {
		var fee *core.Fee
		if f, ok := byID[p.FeeID]; ok {
			fee = &f
		}
		out = append(out, core.BuildReceipt(p, fee, profile))
	}
	return out, nil
}

// Receipt returns one receipt. Students only see their own; admins see any.
func (s *ReceiptService) Receipt(ctx context.Context, session core.Session, receiptNumber string) (core.Receipt, error) {
	if session.UserID == "" {
		return core.Receipt{}, ErrForbidden
	}
	if s.cache != nil {
		if c, ok := s.cache.Get(receiptNumber); ok {
			if !session.IsAdmin() && c.owner != session.UserID {
				return core.Receipt{}, ErrForbidden
			}
			return c.receipt, nil
		}
	}

	p, err := s.store.GetPaymentByReceipt(ctx, receiptNumber)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt %s: %w", receiptNumber, err)
	}
	if !session.IsAdmin() && p.UserID != session.UserID {
		return core.Receipt{}, ErrForbidden
	}

	var fee *core.Fee
	f, err := s.store.GetFee(ctx, p.FeeID)
	switch {
	case err == nil:
		fee = &f
	case !errors.Is(err, ledger.ErrNotFound):
		return core.Receipt{}, fmt.Errorf("get fee %s: %w", p.FeeID, err)
	}
	profile, err := s.optionalProfile(ctx, p.UserID)
	if err != nil {
		return core.Receipt{}, err
	}

	r := core.BuildReceipt(p, fee, profile)
	if s.cache != nil {
		s.cache.Set(receiptNumber, cachedReceipt{owner: p.UserID, receipt: r})
	}
	return r, nil
}

func (s *ReceiptService) optionalProfile(ctx context.Context, userID string) (*core.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return &p, nil
}
