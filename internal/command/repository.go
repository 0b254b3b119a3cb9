package command

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pagination defaults for ListByDevice.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ListFilter narrows a device's command history.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// Repository is the command log.
type Repository interface {
	// Create appends a command. ID, DeviceID, Action and Status must be set.
	// Returns ErrDeviceUnknown if the device row does not exist.
	Create(ctx context.Context, cmd *Command) error

	// GetByID returns ErrCommandNotFound if absent.
	GetByID(ctx context.Context, id string) (*Command, error)

	// ListPending returns the device's pending and queued commands in creation order.
	ListPending(ctx context.Context, deviceID string) ([]Command, error)

	// ListByDevice returns a page of history, newest first, and the total
	// number of matching rows.
	ListByDevice(ctx context.Context, deviceID string, filter ListFilter) ([]Command, int, error)

	// CountWaitingThrough counts the device's pending/queued commands created
	// at or before seq.
	CountWaitingThrough(ctx context.Context, deviceID string, seq int64) (int, error)

	// UpdateStatus moves a command forward to status. It reports false without
	// error when the command is already at or past status.
	UpdateStatus(ctx context.Context, id string, status Status, errMsg *string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed command log.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectCommandColumns = `
	SELECT seq, id, device_id, action, params, status, error, created_at, delivered_at, completed_at
	FROM commands`

// Create appends a command.
func (r *SQLiteRepository) Create(ctx context.Context, cmd *Command) error {
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	var params sql.NullString
	if len(cmd.Params) > 0 && string(cmd.Params) != "null" {
		params = sql.NullString{String: string(cmd.Params), Valid: true}
	}

	var deliveredAt sql.NullString
	if cmd.Status == StatusDelivered {
		now := cmd.CreatedAt
		cmd.DeliveredAt = &now
		deliveredAt = sql.NullString{String: now.Format(time.RFC3339), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO commands (id, device_id, action, params, status, error, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID,
		cmd.DeviceID,
		string(cmd.Action),
		params,
		string(cmd.Status),
		nullableString(cmd.Error),
		cmd.CreatedAt.Format(time.RFC3339),
		deliveredAt,
	)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint failed"):
			return ErrCommandExists
		case strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return ErrDeviceUnknown
		}
		return fmt.Errorf("inserting command: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading command sequence: %w", err)
	}
	cmd.Seq = seq
	return nil
}

// GetByID returns a single command.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Command, error) {
	row := r.db.QueryRowContext(ctx, selectCommandColumns+" WHERE id = ?", id)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("querying command by id: %w", err)
	}
	return cmd, nil
}

// ListPending returns waiting commands oldest first.
func (r *SQLiteRepository) ListPending(ctx context.Context, deviceID string) ([]Command, error) {
	return r.queryCommands(ctx,
		selectCommandColumns+` WHERE device_id = ? AND status IN ('pending', 'queued') ORDER BY seq`,
		deviceID,
	)
}

// ListByDevice returns a page of history.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, filter ListFilter) ([]Command, int, error) {
	where := " WHERE device_id = ?"
	args := []any{deviceID}
	if filter.Status != nil {
		where += " AND status = ?"
		args = append(args, string(*filter.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM commands"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting commands: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(filter.Offset, 0)

	cmds, err := r.queryCommands(ctx,
		selectCommandColumns+where+" ORDER BY seq DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	return cmds, total, nil
}

// CountWaitingThrough counts waiting commands up to and including seq.
func (r *SQLiteRepository) CountWaitingThrough(ctx context.Context, deviceID string, seq int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM commands
		WHERE device_id = ? AND status IN ('pending', 'queued') AND seq <= ?`,
		deviceID, seq,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting queued commands: %w", err)
	}
	return n, nil
}

// UpdateStatus performs a conditional forward transition.
// delivered_at is stamped on delivery and completed_at on a terminal outcome;
// neither is touched when the update does not apply.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, errMsg *string) (bool, error) {
	from := predecessors(status)
	if len(from) == 0 {
		if status.rank() < 0 {
			return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		// Nothing precedes pending/queued; only existence matters.
		_, err := r.GetByID(ctx, id)
		return false, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var deliveredAt, completedAt sql.NullString
	if status == StatusDelivered {
		deliveredAt = sql.NullString{String: now, Valid: true}
	}
	if status.IsTerminal() {
		completedAt = sql.NullString{String: now, Valid: true}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `
		UPDATE commands
		SET status = ?,
		    error = COALESCE(?, error),
		    delivered_at = COALESCE(?, delivered_at),
		    completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status IN (` + placeholders + `)`

	args := []any{string(status), nullableString(errMsg), deliveredAt, completedAt, id}
	for _, s := range from {
		args = append(args, string(s))
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating command status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *SQLiteRepository) queryCommands(ctx context.Context, query string, args ...any) ([]Command, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	cmds := make([]Command, 0)
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		cmds = append(cmds, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return cmds, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(scanner rowScanner) (*Command, error) {
	var c Command
	var action, status, createdAt string
	var params, errMsg, deliveredAt, completedAt sql.NullString

	err := scanner.Scan(&c.Seq, &c.ID, &c.DeviceID, &action, &params, &status, &errMsg,
		&createdAt, &deliveredAt, &completedAt)
	if err != nil {
		return nil, err
	}

	c.Action = Action(action)
	c.Status = Status(status)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	if params.Valid {
		c.Params = []byte(params.String)
	}
	if errMsg.Valid {
		c.Error = &errMsg.String
	}
	c.DeliveredAt = parseNullableTime(deliveredAt)
	c.CompletedAt = parseNullableTime(completedAt)
	return &c, nil
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
