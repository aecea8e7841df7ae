package memory

import (
	"context"
	"sync"

	"feedesk/internal/ledger"
)

// Feed is an in-process payment change feed. Handlers run synchronously on
// the goroutine that publishes.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(ledger.ChangeEvent)
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]func(ledger.ChangeEvent))}
}

// Subscribe registers handler until unsubscribe is called or ctx is done.
func (f *Feed) Subscribe(ctx context.Context, handler func(ledger.ChangeEvent)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = handler
	f.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(stop)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()
	return unsubscribe, nil
}

// NotifyPaymentChange delivers ev to every current subscriber.
func (f *Feed) NotifyPaymentChange(_ context.Context, ev ledger.ChangeEvent) error {
	f.mu.Lock()
	handlers := make([]func(ledger.ChangeEvent), 0, len(f.subs))
	for _, h := range f.subs {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// Subscribers reports the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
