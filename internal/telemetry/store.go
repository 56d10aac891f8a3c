// Package telemetry is a diagnostic sink for the link: a rolling SQLite
// history of TrackerRuntimeState snapshots and pairing events, layered
// above the authoritative in-core/flash state (spec §3, §4.2). Nothing
// here is read back by the MAC or pairing engine — it exists purely for
// offline inspection (cmd/telemetry-viz) and live SQL debugging
// (AttachAdminRoutes), the same role internal/db plays downstream of the
// teacher's live radar pipeline.
package telemetry

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// TrackerSnapshot is one point-in-time copy of a receiver's view of a
// paired tracker slot (mirrors mac.TrackerRuntimeState's fields; kept as
// an independent type so internal/telemetry never imports internal/mac —
// the caller in cmd/receiver-sim does the field-by-field copy).
type TrackerSnapshot struct {
	Slot        int
	TakenUnixMs int64
	Active      bool
	RSSI        int8
	Battery     byte
	Flags       byte
	Sequence    byte
	PacketLoss  uint32
	CRCErrors   uint32
	LastSeenMs  int64
}

// PairingEvent records one pairing-session outcome, tagged with the
// session's correlation UUID (spec domain addition: internal/pairing
// tags each session with a uuid.UUID for log correlation).
type PairingEvent struct {
	TakenUnixMs int64
	SessionUUID string
	Role        string // "tracker" or "receiver"
	Outcome     string // "complete", "timeout"
	TrackerMac  string
	Slot        *int
}

// Store wraps a SQLite connection holding the telemetry schema.
type Store struct {
	db *sql.DB
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	return nil
}

// NewStore opens (creating if necessary) the SQLite file at path and
// brings its schema up to the latest migration.
func NewStore(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry store: %w", err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		return nil, err
	}

	s := &Store{db: sqlDB}
	if err := s.MigrateUp(); err != nil {
		return nil, fmt.Errorf("failed to migrate telemetry store: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// RecordSnapshot persists one TrackerSnapshot.
func (s *Store) RecordSnapshot(snap TrackerSnapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO tracker_snapshot
			(slot, taken_unix_ms, active, rssi, battery, flags, sequence, packet_loss, crc_errors, last_seen_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Slot, snap.TakenUnixMs, snap.Active, snap.RSSI, snap.Battery, snap.Flags,
		snap.Sequence, snap.PacketLoss, snap.CRCErrors, snap.LastSeenMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record tracker snapshot: %w", err)
	}
	return nil
}

// ListRecentSnapshots returns the most recent limit snapshots for slot,
// newest first.
func (s *Store) ListRecentSnapshots(slot int, limit int) ([]TrackerSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT slot, taken_unix_ms, active, rssi, battery, flags, sequence, packet_loss, crc_errors, last_seen_ms
		 FROM tracker_snapshot WHERE slot = ? ORDER BY snapshot_id DESC LIMIT ?`,
		slot, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracker snapshots: %w", err)
	}
	defer rows.Close()

	var out []TrackerSnapshot
	for rows.Next() {
		var snap TrackerSnapshot
		var active int
		if err := rows.Scan(&snap.Slot, &snap.TakenUnixMs, &active, &snap.RSSI, &snap.Battery,
			&snap.Flags, &snap.Sequence, &snap.PacketLoss, &snap.CRCErrors, &snap.LastSeenMs); err != nil {
			return nil, fmt.Errorf("failed to scan tracker snapshot: %w", err)
		}
		snap.Active = active != 0
		out = append(out, snap)
	}
	return out, rows.Err()
}

// RecordPairingEvent persists one PairingEvent.
func (s *Store) RecordPairingEvent(e PairingEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO pairing_event (taken_unix_ms, session_uuid, role, outcome, tracker_mac, slot)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.TakenUnixMs, e.SessionUUID, e.Role, e.Outcome, e.TrackerMac, e.Slot,
	)
	if err != nil {
		return fmt.Errorf("failed to record pairing event: %w", err)
	}
	return nil
}

// ListRecentPairingEvents returns the most recent limit pairing events,
// newest first.
func (s *Store) ListRecentPairingEvents(limit int) ([]PairingEvent, error) {
	rows, err := s.db.Query(
		`SELECT taken_unix_ms, session_uuid, role, outcome, tracker_mac, slot
		 FROM pairing_event ORDER BY event_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairing events: %w", err)
	}
	defer rows.Close()

	var out []PairingEvent
	for rows.Next() {
		var e PairingEvent
		var trackerMac sql.NullString
		var slot sql.NullInt64
		if err := rows.Scan(&e.TakenUnixMs, &e.SessionUUID, &e.Role, &e.Outcome, &trackerMac, &slot); err != nil {
			return nil, fmt.Errorf("failed to scan pairing event: %w", err)
		}
		e.TrackerMac = trackerMac.String
		if slot.Valid {
			v := int(slot.Int64)
			e.Slot = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
