package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pagination defaults for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Filter narrows a recording listing. Zero values match everything.
type Filter struct {
	DeviceID    string
	Type        Type
	TriggeredBy Trigger
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}

// Repository defines recording persistence operations.
type Repository interface {
	// Create inserts a recording. ID and CreatedAt are filled in when empty.
	Create(ctx context.Context, rec *Recording) error

	// GetByID returns ErrRecordingNotFound if absent.
	GetByID(ctx context.Context, id string) (*Recording, error)

	// List returns a page of recordings, newest first, and the total count
	// matching the filter.
	List(ctx context.Context, filter Filter) ([]Recording, int, error)

	// Delete removes a recording row.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectRecordingColumns = `
	SELECT id, device_id, type, filename, storage_key, duration, size, triggered_by, metadata, created_at
	FROM recordings`

// Create inserts a recording.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Recording) error {
	if rec.TriggeredBy == "" {
		rec.TriggeredBy = TriggerManual
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	if rec.StorageKey == "" {
		rec.StorageKey = StorageKey(rec.Type, rec.DeviceID, rec.Filename)
	}

	var duration sql.NullFloat64
	if rec.Duration != nil {
		duration = sql.NullFloat64{Float64: *rec.Duration, Valid: true}
	}
	var metadata sql.NullString
	if len(rec.Metadata) > 0 && string(rec.Metadata) != "null" {
		metadata = sql.NullString{String: string(rec.Metadata), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recordings (id, device_id, type, filename, storage_key, duration, size, triggered_by, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, string(rec.Type), rec.Filename, rec.StorageKey,
		duration, rec.Size, string(rec.TriggeredBy), metadata,
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return ErrDeviceUnknown
		}
		return fmt.Errorf("inserting recording: %w", err)
	}
	return nil
}

// GetByID retrieves a recording.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Recording, error) {
	rec, err := scanRecording(r.db.QueryRowContext(ctx, selectRecordingColumns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordingNotFound
		}
		return nil, fmt.Errorf("querying recording by id: %w", err)
	}
	return rec, nil
}

// List returns a filtered page of recordings.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Recording, int, error) {
	var conds []string
	var args []any
	if filter.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.TriggeredBy != "" {
		conds = append(conds, "triggered_by = ?")
		args = append(args, string(filter.TriggeredBy))
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recordings"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting recordings: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(filter.Offset, 0)

	rows, err := r.db.QueryContext(ctx,
		selectRecordingColumns+where+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying recordings: %w", err)
	}
	defer rows.Close()

	recs := make([]Recording, 0)
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning recording: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating recordings: %w", err)
	}
	return recs, total, nil
}

// Delete removes a recording by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(scanner rowScanner) (*Recording, error) {
	var rec Recording
	var typ, trigger, createdAt string
	var storageKey, metadata sql.NullString
	var duration sql.NullFloat64
	var size sql.NullInt64

	err := scanner.Scan(&rec.ID, &rec.DeviceID, &typ, &rec.Filename, &storageKey,
		&duration, &size, &trigger, &metadata, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.Type = Type(typ)
	rec.TriggeredBy = Trigger(trigger)
	rec.StorageKey = storageKey.String
	rec.Size = size.Int64
	if duration.Valid {
		d := duration.Float64
		rec.Duration = &d
	}
	if metadata.Valid {
		rec.Metadata = []byte(metadata.String)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &rec, nil
}
