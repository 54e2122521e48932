package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sources describing why a snapshot was recorded.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout is fixed width so recorded_at compares lexically.
	timeLayout = "2006-01-02T15:04:05.000Z"
)

// ErrDeviceIDRequired is returned when a call omits the device ID.
var ErrDeviceIDRequired = errors.New("history: device id is required")

// Entry is one recorded attribute snapshot.
type Entry struct {
	ID         int64          `json:"id"`
	DeviceID   string         `json:"device_id"`
	State      map[string]any `json:"state"`
	Source     string         `json:"source"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Store records and retrieves device snapshots.
type Store interface {
	Record(ctx context.Context, deviceID string, state map[string]any, source string) error
	Get(ctx context.Context, deviceID string, limit int) ([]Entry, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteStore implements Store on the state_history table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store on an open database whose migrations
// have been applied.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Record inserts a snapshot for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Controller ID
//   - state: Attribute snapshot (nil stores an empty object)
//   - source: SourcePoll or SourceCommand (empty means SourcePoll)
//
// Returns:
//   - error: nil on success, otherwise the database or encoding error
func (s *SQLiteStore) Record(ctx context.Context, deviceID string, state map[string]any, source string) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	if source == "" {
		source = SourcePoll
	}
	if state == nil {
		state = map[string]any{}
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, state, source, recorded_at) VALUES (?, ?, ?, ?)",
		deviceID, string(data), source, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// Get returns the newest snapshots for a device, newest first.
// limit defaults to 50 and is capped at 500.
func (s *SQLiteStore) Get(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, state, source, recorded_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			stateJSON  string
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &stateJSON, &e.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &e.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}
		if e.RecordedAt, err = time.Parse(timeLayout, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes snapshots older than now-olderThan and reports how many
// rows went.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive, got %s", olderThan)
	}

	cutoff := s.now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := s.db.ExecContext(ctx, "DELETE FROM state_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
