package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order at startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		consultation_fee BIGINT NOT NULL DEFAULT 0 CHECK (consultation_fee >= 0),
		currency CHAR(3) NOT NULL DEFAULT 'LKR',
		default_start_time TEXT NOT NULL DEFAULT '09:00',
		default_end_time TEXT NOT NULL DEFAULT '17:00',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS availability_days (
		provider_id UUID NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		date TEXT NOT NULL CHECK (date ~ '^\d{4}-\d{2}-\d{2}$'),
		display_label TEXT NOT NULL,
		day_name TEXT NOT NULL,
		is_available BOOLEAN NOT NULL DEFAULT FALSE,
		slots JSONB NOT NULL DEFAULT '[]',
		PRIMARY KEY (provider_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		provider_id UUID NOT NULL REFERENCES providers(id),
		requester_id UUID,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed')),
		payment_status TEXT NOT NULL CHECK (payment_status IN ('pending', 'completed', 'failed', 'refunded')),
		amount BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		filled_by_other BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// At most one active booking per slot, whatever the application does.
	`CREATE UNIQUE INDEX IF NOT EXISTS bookings_active_slot_idx
		ON bookings (provider_id, date, time)
		WHERE status IN ('pending', 'confirmed')`,
	`CREATE INDEX IF NOT EXISTS bookings_requester_idx ON bookings (requester_id, date, time)`,
	`CREATE INDEX IF NOT EXISTS bookings_provider_idx ON bookings (provider_id, date, time)`,
	`CREATE INDEX IF NOT EXISTS bookings_reference_idx ON bookings (reference) WHERE reference <> ''`,
	`CREATE TABLE IF NOT EXISTS booking_flags (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		seq BIGSERIAL,
		type TEXT NOT NULL CHECK (type IN ('warning', 'info', 'success', 'error')),
		message TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS booking_flags_booking_idx ON booking_flags (booking_id, seq)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id UUID PRIMARY KEY,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		error_message TEXT,
		retry_count INT NOT NULL DEFAULT 0,
		retry_at TIMESTAMPTZ,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_events_pending_idx ON outbox_events (created_at) WHERE status = 'PENDING'`,
}

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
