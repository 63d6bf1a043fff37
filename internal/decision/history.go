package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ListFilter narrows a decision history query.
type ListFilter struct {
	DeviceID string
	Limit    int
	Offset   int
}

// Default and maximum page sizes for history listings.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryRepository persists the append-only decision trail.
type HistoryRepository interface {
	// Append stores one decision record.
	Append(ctx context.Context, record Record) error

	// List retrieves records newest first, optionally filtered by device.
	List(ctx context.Context, filter ListFilter) ([]Record, error)

	// Latest retrieves the n most recent records.
	Latest(ctx context.Context, n int) ([]Record, error)
}

// SQLiteHistory implements HistoryRepository using SQLite.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates a SQLite-backed decision history.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Append stores one decision record.
func (h *SQLiteHistory) Append(ctx context.Context, record Record) error {
	features, err := json.Marshal(record.Features)
	if err != nil {
		return fmt.Errorf("encoding feature summary: %w", err)
	}

	query := `
		INSERT INTO decision_records (id, decided_at, source, action, device_id,
			duration_minutes, confidence, reason, outcome, outcome_detail, features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = h.db.ExecContext(ctx, query,
		record.ID,
		record.DecidedAt.UTC().Format(time.RFC3339Nano),
		string(record.Decision.Source),
		string(record.Decision.Action),
		nullableString(record.Decision.DeviceID),
		record.Decision.Duration.Minutes(),
		record.Decision.Confidence,
		record.Decision.Reason,
		string(record.Outcome),
		nullableString(record.OutcomeDetail),
		string(features),
	)
	if err != nil {
		return fmt.Errorf("appending decision record: %w", err)
	}
	return nil
}

// List retrieves records newest first, optionally filtered by device.
func (h *SQLiteHistory) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, decided_at, source, action, device_id, duration_minutes,
			confidence, reason, outcome, outcome_detail, features
		FROM decision_records`
	args := []any{}

	if filter.DeviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, filter.DeviceID)
	}
	query += ` ORDER BY decided_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decision records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning decision record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decision records: %w", err)
	}
	return records, nil
}

// Latest retrieves the n most recent records.
func (h *SQLiteHistory) Latest(ctx context.Context, n int) ([]Record, error) {
	return h.List(ctx, ListFilter{Limit: n})
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		record          Record
		decidedAt       string
		source          string
		action          string
		deviceID        sql.NullString
		durationMinutes float64
		outcomeDetail   sql.NullString
		features        sql.NullString
	)

	err := rows.Scan(
		&record.ID,
		&decidedAt,
		&source,
		&action,
		&deviceID,
		&durationMinutes,
		&record.Decision.Confidence,
		&record.Decision.Reason,
		(*string)(&record.Outcome),
		&outcomeDetail,
		&features,
	)
	if err != nil {
		return Record{}, err
	}

	record.Decision.Source = Source(source)
	record.Decision.Action = Action(action)
	record.Decision.DeviceID = deviceID.String
	record.Decision.Duration = time.Duration(durationMinutes * float64(time.Minute))
	record.OutcomeDetail = outcomeDetail.String

	if record.DecidedAt, err = time.Parse(time.RFC3339Nano, decidedAt); err != nil {
		return Record{}, fmt.Errorf("parsing decided_at: %w", err)
	}
	if features.Valid && features.String != "" {
		if err := json.Unmarshal([]byte(features.String), &record.Features); err != nil {
			return Record{}, fmt.Errorf("decoding feature summary: %w", err)
		}
	}

	return record, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
