package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices, most recently created first.
	List(ctx context.Context) ([]Device, error)

	// UpdateStatus records a connection transition and, when status is
	// non-nil, the latest status snapshot. last_seen is set to now.
	UpdateStatus(ctx context.Context, id string, online bool, status *StatusSnapshot) error

	// UpdateDetails replaces the name and settings.
	UpdateDetails(ctx context.Context, id, name string, settings Settings) error

	// UpdatePushToken stores the wake-up channel for the device.
	UpdatePushToken(ctx context.Context, id, token string, platform PushPlatform) error

	// Delete removes a device and, by cascade, its commands and recordings.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDeviceColumns = `
	SELECT id, name, secret_hash, status, last_seen, last_status, settings,
		push_token, push_platform, created_at, updated_at
	FROM devices`

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	settingsJSON, err := json.Marshal(device.Settings)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.Status == "" {
		device.Status = StatusOffline
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, secret_hash, status, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		device.Name,
		device.SecretHash,
		string(device.Status),
		string(settingsJSON),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDeviceColumns+" WHERE id = ?", id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDeviceColumns+" ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// UpdateStatus records a connection transition and optional snapshot.
// A nil status keeps the previously stored snapshot.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, online bool, status *StatusSnapshot) error {
	connStatus := StatusOffline
	if online {
		connStatus = StatusOnline
	}

	var statusJSON sql.NullString
	if status != nil {
		data, err := json.Marshal(status)
		if err != nil {
			return fmt.Errorf("marshalling status: %w", err)
		}
		statusJSON = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET status = ?, last_seen = ?, last_status = COALESCE(?, last_status), updated_at = ?
		WHERE id = ?`,
		string(connStatus), now, statusJSON, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireOneRow(result)
}

// UpdateDetails replaces the name and settings.
func (r *SQLiteRepository) UpdateDetails(ctx context.Context, id, name string, settings Settings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, settings = ?, updated_at = ? WHERE id = ?`,
		name, string(settingsJSON), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireOneRow(result)
}

// UpdatePushToken stores the wake-up channel for the device.
func (r *SQLiteRepository) UpdatePushToken(ctx context.Context, id, token string, platform PushPlatform) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET push_token = ?, push_platform = ?, updated_at = ? WHERE id = ?`,
		token, string(platform), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating push token: %w", err)
	}
	return requireOneRow(result)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var status, settings, createdAt, updatedAt string
	var lastSeen, lastStatus, pushToken, pushPl sql.NullString

	err := scanner.Scan(
		&d.ID, &d.Name, &d.SecretHash, &status, &lastSeen, &lastStatus, &settings,
		&pushToken, &pushPl, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = ConnectionStatus(status)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}

	if lastStatus.Valid && lastStatus.String != "" {
		var s StatusSnapshot
		if err := json.Unmarshal([]byte(lastStatus.String), &s); err != nil {
			return nil, fmt.Errorf("unmarshalling last_status: %w", err)
		}
		d.LastStatus = &s
	}

	// Stored settings are merged over defaults so fields added later get values.
	d.Settings = DefaultSettings()
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &d.Settings); err != nil {
			return nil, fmt.Errorf("unmarshalling settings: %w", err)
		}
	}

	if pushToken.Valid {
		d.PushToken = &pushToken.String
	}
	if pushPl.Valid {
		p := PushPlatform(pushPl.String)
		d.PushPlatform = &p
	}

	return &d, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
