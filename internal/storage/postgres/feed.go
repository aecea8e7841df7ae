package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedesk/internal/ledger"
)

// ChangeChannel is the NOTIFY channel written by the payments trigger.
const ChangeChannel = "payments_changes"

const relistenDelay = time.Second

// Feed delivers payment change notifications. Each subscription holds one
// pooled connection in LISTEN mode; the connection is closed, not returned,
// when the subscription ends.
type Feed struct {
	pool    *pgxpool.Pool
	channel string
}

var _ ledger.ChangeFeed = (*Feed)(nil)

func NewFeed(pool *pgxpool.Pool) *Feed {
	return &Feed{pool: pool, channel: ChangeChannel}
}

// Subscribe starts listening before it returns, so no insert committed after
// Subscribe is missed. Delivery stops when ctx is done or unsubscribe is called.
func (f *Feed) Subscribe(ctx context.Context, handler func(ledger.ChangeEvent)) (func(), error) {
	conn, err := f.listen(ctx)
	if err != nil {
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.run(listenCtx, conn, handler)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (f *Feed) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		discard(conn)
		return nil, fmt.Errorf("failed to listen on %s: %w", f.channel, err)
	}
	return conn, nil
}

func (f *Feed) run(ctx context.Context, conn *pgxpool.Conn, handler func(ledger.ChangeEvent)) {
	defer func() {
		if conn != nil {
			discard(conn)
		}
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.WarnContext(ctx, "Change feed connection lost, re-listening", "channel", f.channel, "error", err)
			discard(conn)
			conn = nil
			for conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(relistenDelay):
				}
				if conn, err = f.listen(ctx); err != nil {
					slog.WarnContext(ctx, "Re-listen failed", "channel", f.channel, "error", err)
				}
			}
			continue
		}

		ev, err := DecodeNotification(n.Payload)
		if err != nil {
			slog.WarnContext(ctx, "Dropping malformed change notification", "payload", n.Payload, "error", err)
			continue
		}
		handler(ev)
	}
}

// discard closes a listening connection so its LISTEN state never goes back
// into the pool.
func discard(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = conn.Conn().Close(ctx)
	conn.Release()
}

type notification struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	FeeID     string    `json:"fee_id"`
	UserID    string    `json:"user_id"`
	At        time.Time `json:"at"`
}

// DecodeNotification parses the JSON payload written by the payments trigger.
func DecodeNotification(payload string) (ledger.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return ledger.ChangeEvent{}, fmt.Errorf("decode notification: %w", err)
	}
	switch ledger.ChangeType(n.Type) {
	case ledger.ChangeInsert, ledger.ChangeUpdate, ledger.ChangeDelete:
	default:
		return ledger.ChangeEvent{}, fmt.Errorf("unknown change type %q", n.Type)
	}
	if n.PaymentID == "" {
		return ledger.ChangeEvent{}, errors.New("notification without payment id")
	}
	return ledger.ChangeEvent{
		Type:      ledger.ChangeType(n.Type),
		PaymentID: n.PaymentID,
		FeeID:     n.FeeID,
		UserID:    n.UserID,
		At:        n.At,
	}, nil
}
