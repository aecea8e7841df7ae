// Package memory is a LedgerWriter that keeps rows in memory, used when no
// spreadsheet is configured and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"feedesk/internal/core"
	"feedesk/internal/sheets"
)

type Writer struct {
	mu   sync.Mutex
	rows [][]string
}

var _ sheets.LedgerWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

// AppendReceipt stores the receipt row and returns a synthetic row reference.
func (w *Writer) AppendReceipt(_ context.Context, r core.Receipt) (string, error) {
	if strings.TrimSpace(r.ReceiptNumber) == "" {
		return "", errors.New("receipt without number")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, sheets.ReceiptRow(r))
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of the written rows.
func (w *Writer) Rows() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]string, len(w.rows))
	for i, row := range w.rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
