// ABOUTME: Delivery history types and the Store interface for relay persistence
// ABOUTME: Records what happened to each extracted code; never feeds the dedup cache

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Outcome is the result of relaying one extracted code.
type Outcome string

const (
	OutcomeForwarded  Outcome = "forwarded"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// ValidOutcomes lists all recorded outcomes.
var ValidOutcomes = []Outcome{OutcomeForwarded, OutcomeSuppressed, OutcomeFailed}

// Delivery is one row of relay history.
type Delivery struct {
	ID        string     // UUID v4
	Code      string     // code as extracted
	Source    string     // adapter name ("matrix", "discord", "stdin")
	Channel   string     // channel label the code was seen in
	Outcome   Outcome    // what the relay did
	Error     string     // failure detail for OutcomeFailed
	CreatedAt time.Time  // when the relay decided
	AckedAt   *time.Time // when the consumer acknowledged, if it did
}

// DeliveryFilter specifies filtering options for listing deliveries.
type DeliveryFilter struct {
	Code    *string
	Outcome *Outcome
	Since   *time.Time
	Limit   int // default 100, max 1000
}

// Store persists delivery history.
type Store interface {
	RecordDelivery(ctx context.Context, d *Delivery) error
	MarkAcked(ctx context.Context, code string, at time.Time) error
	ListDeliveries(ctx context.Context, f DeliveryFilter) ([]Delivery, error)
	CountByOutcome(ctx context.Context, since time.Time) (map[Outcome]int, error)
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
