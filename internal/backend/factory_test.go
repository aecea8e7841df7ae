package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"feedesk/internal/config"
	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:  "postgres",
		DatabaseURL:  "postgres://localhost/feedesk",
		PGMaxConns:   7,
		AMQPURL:      "amqp://localhost/",
		AMQPExchange: "feedesk.payments",
		AMQPQueue:    "ledger_export",
	}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if got.Type != PostgresBackend || got.PGMaxConns != 7 || got.AMQPQueue != "ledger_export" {
		t.Fatalf("unexpected config %+v", got)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected invalid backend error")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected nil config error")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"amqp without exchange", Config{Type: MemoryBackend, AMQPURL: "amqp://x/"}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// Both local backends must announce payment inserts on their feed.
func TestCreateBackendPublishesInserts(t *testing.T) {
	cases := []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")},
	}
	for _, cfg := range cases {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			ctx := context.Background()
			res, err := NewFactory(nil).CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatalf("create backend: %v", err)
			}
			defer res.Cleanup()

			if err := res.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
			if res.AMQP != nil {
				t.Fatalf("no broker configured, got client")
			}

			events := make(chan ledger.ChangeEvent, 1)
			unsubscribe, err := res.Feed.Subscribe(ctx, func(ev ledger.ChangeEvent) { events <- ev })
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			defer unsubscribe()

			p, err := res.Store.CreatePayment(ctx, core.Payment{
				UserID: "stu-1", FeeID: "fee-1", Amount: core.Rupees(10), Method: "card",
				TransactionID: "TXN1", ReceiptNumber: "RCP1", Status: core.PaymentCompleted,
				PaidAt: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
			})
			if err != nil {
				t.Fatalf("create payment: %v", err)
			}

			select {
			case ev := <-events:
				if ev.Type != ledger.ChangeInsert || ev.PaymentID != p.ID {
					t.Fatalf("unexpected event %+v", ev)
				}
			case <-time.After(time.Second):
				t.Fatal("no change event delivered")
			}
		})
	}
}
