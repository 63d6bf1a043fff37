package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device state persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetState retrieves the persisted state for a device.
	// Returns ErrDeviceNotFound if no state row exists.
	GetState(ctx context.Context, deviceID string) (*State, error)

	// ListStates retrieves all persisted device states.
	ListStates(ctx context.Context) ([]State, error)

	// SaveState inserts or updates a device state row.
	SaveState(ctx context.Context, state *State) error

	// ResetDailyCounters zeroes the daily counters of every device and
	// records the reset day, atomically in a single transaction.
	ResetDailyCounters(ctx context.Context, day string, at time.Time) error

	// LastResetDay returns the recorded reset day (YYYY-MM-DD), or ""
	// if no reset has ever run.
	LastResetDay(ctx context.Context) (string, error)
}

// lastResetDayKey is the control_state key holding the reset day stamp.
const lastResetDayKey = "last_reset_day"

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetState retrieves the persisted state for a device.
func (r *SQLiteRepository) GetState(ctx context.Context, deviceID string) (*State, error) {
	query := `
		SELECT device_id, is_on, activated_at, last_off_at,
			on_today_minutes, activations_today, updated_at
		FROM device_states
		WHERE device_id = ?`

	row := r.db.QueryRowContext(ctx, query, deviceID)
	state, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device state: %w", err)
	}
	return state, nil
}

// ListStates retrieves all persisted device states.
func (r *SQLiteRepository) ListStates(ctx context.Context) ([]State, error) {
	query := `
		SELECT device_id, is_on, activated_at, last_off_at,
			on_today_minutes, activations_today, updated_at
		FROM device_states
		ORDER BY device_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying device states: %w", err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device state: %w", err)
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device states: %w", err)
	}
	return states, nil
}

// SaveState inserts or updates a device state row.
func (r *SQLiteRepository) SaveState(ctx context.Context, state *State) error {
	query := `
		INSERT INTO device_states (device_id, is_on, activated_at, last_off_at,
			on_today_minutes, activations_today, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			is_on = excluded.is_on,
			activated_at = excluded.activated_at,
			last_off_at = excluded.last_off_at,
			on_today_minutes = excluded.on_today_minutes,
			activations_today = excluded.activations_today,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		state.DeviceID,
		boolToInt(state.On),
		nullableTime(state.ActivatedAt),
		nullableTime(state.LastOffAt),
		state.OnTodayMinutes,
		state.ActivationsToday,
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving device state: %w", err)
	}
	return nil
}

// ResetDailyCounters zeroes daily counters and records the reset day in
// a single transaction. Either everything resets or nothing does.
func (r *SQLiteRepository) ResetDailyCounters(ctx context.Context, day string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := at.UTC().Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx, `
		UPDATE device_states
		SET on_today_minutes = 0, activations_today = 0, updated_at = ?`,
		stamp,
	)
	if err != nil {
		return fmt.Errorf("resetting daily counters: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO control_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		lastResetDayKey, day, stamp,
	)
	if err != nil {
		return fmt.Errorf("recording reset day: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reset transaction: %w", err)
	}
	return nil
}

// LastResetDay returns the recorded reset day, or "" if none.
func (r *SQLiteRepository) LastResetDay(ctx context.Context) (string, error) {
	var day string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM control_state WHERE key = ?`, lastResetDayKey,
	).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying last reset day: %w", err)
	}
	return day, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

// scanState reads one device_states row.
func scanState(row scanner) (*State, error) {
	var (
		state       State
		isOn        int
		activatedAt sql.NullString
		lastOffAt   sql.NullString
		updatedAt   string
	)

	err := row.Scan(
		&state.DeviceID,
		&isOn,
		&activatedAt,
		&lastOffAt,
		&state.OnTodayMinutes,
		&state.ActivationsToday,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.On = isOn != 0

	if state.ActivatedAt, err = parseNullableTime(activatedAt); err != nil {
		return nil, fmt.Errorf("parsing activated_at: %w", err)
	}
	if state.LastOffAt, err = parseNullableTime(lastOffAt); err != nil {
		return nil, fmt.Errorf("parsing last_off_at: %w", err)
	}
	if state.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &state, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
