package core

import (
	"strconv"
	"time"
)

const (
	TransactionPrefix = "TXN"
	ReceiptPrefix     = "RCP"
)

// Identity is the pair of user-facing identifiers attached to a payment.
type Identity struct {
	TransactionID string
	ReceiptNumber string
}

// IdentityGenerator derives identifiers from the wall clock in milliseconds.
// Two calls within the same millisecond return the same identity; nothing
// checks for collisions.
type IdentityGenerator struct {
	Now func() time.Time
}

// NewIdentityGenerator returns a generator backed by time.Now.
func NewIdentityGenerator() *IdentityGenerator {
	return &IdentityGenerator{Now: time.Now}
}

// Next reads the clock once and derives both identifiers from that instant.
func (g *IdentityGenerator) Next() Identity {
	now := time.Now
	if g != nil && g.Now != nil {
		now = g.Now
	}
	ms := strconv.FormatInt(now().UnixMilli(), 10)
	return Identity{
		TransactionID: TransactionPrefix + ms,
		ReceiptNumber: ReceiptPrefix + ms,
	}
}
