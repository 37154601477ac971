// ABOUTME: Delivery history store methods for recording relay outcomes
// ABOUTME: Append, acknowledge, list, count and prune rows in the deliveries table

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordDelivery appends a delivery row.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	var errText *string
	if d.Error != "" {
		errText = &d.Error
	}

	query := `
		INSERT INTO deliveries (delivery_id, code, source, channel, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		d.Code,
		d.Source,
		d.Channel,
		string(d.Outcome),
		errText,
		formatTimestamp(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}

	s.logger.Debug("recorded delivery",
		"id", d.ID,
		"code", d.Code,
		"outcome", d.Outcome,
	)
	return nil
}

// MarkAcked stamps the most recent unacknowledged forward of code.
// Returns ErrNotFound if there is none.
func (s *SQLiteStore) MarkAcked(ctx context.Context, code string, at time.Time) error {
	query := `
		UPDATE deliveries SET acked_at = ?
		WHERE delivery_id = (
			SELECT delivery_id FROM deliveries
			WHERE code = ? AND outcome = 'forwarded' AND acked_at IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	res, err := s.db.ExecContext(ctx, query, formatTimestamp(at), code)
	if err != nil {
		return fmt.Errorf("marking delivery acked: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// normalizeDeliveryLimit applies default (100) and cap (1000).
func normalizeDeliveryLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const deliveriesQuery = `
	SELECT delivery_id, code, source, channel, outcome, error, created_at, acked_at
	FROM deliveries
	WHERE (? IS NULL OR code = ?)
	  AND (? IS NULL OR outcome = ?)
	  AND (? IS NULL OR created_at >= ?)
	ORDER BY created_at DESC
	LIMIT ?
`

// ListDeliveries returns deliveries matching the filter, newest first.
func (s *SQLiteStore) ListDeliveries(ctx context.Context, f DeliveryFilter) ([]Delivery, error) {
	var outcome, since *string
	if f.Outcome != nil {
		o := string(*f.Outcome)
		outcome = &o
	}
	if f.Since != nil {
		ts := formatTimestamp(*f.Since)
		since = &ts
	}

	rows, err := s.db.QueryContext(ctx, deliveriesQuery,
		f.Code, f.Code,
		outcome, outcome,
		since, since,
		normalizeDeliveryLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	deliveries := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}
	return deliveries, nil
}

// scanDelivery scans a row into a Delivery.
func scanDelivery(scanner interface{ Scan(dest ...any) error }) (Delivery, error) {
	var d Delivery
	var outcome, createdAt string
	var errText, ackedAt sql.NullString

	if err := scanner.Scan(
		&d.ID,
		&d.Code,
		&d.Source,
		&d.Channel,
		&outcome,
		&errText,
		&createdAt,
		&ackedAt,
	); err != nil {
		return d, fmt.Errorf("scanning delivery: %w", err)
	}

	d.Outcome = Outcome(outcome)
	d.Error = errText.String

	var err error
	d.CreatedAt, err = parseTimestamp(createdAt)
	if err != nil {
		return d, fmt.Errorf("parsing created_at: %w", err)
	}
	if ackedAt.Valid {
		t, err := parseTimestamp(ackedAt.String)
		if err != nil {
			return d, fmt.Errorf("parsing acked_at: %w", err)
		}
		d.AckedAt = &t
	}
	return d, nil
}

// CountByOutcome tallies deliveries created at or after since.
func (s *SQLiteStore) CountByOutcome(ctx context.Context, since time.Time) (map[Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM deliveries WHERE created_at >= ? GROUP BY outcome`,
		formatTimestamp(since),
	)
	if err != nil {
		return nil, fmt.Errorf("counting deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Outcome]int, len(ValidOutcomes))
	for _, o := range ValidOutcomes {
		counts[o] = 0
	}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counts: %w", err)
	}
	return counts, nil
}

// PruneBefore deletes deliveries created before the cutoff and returns how
// many were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE created_at < ?`,
		formatTimestamp(before),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
