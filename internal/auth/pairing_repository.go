package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pairing code format.
const (
	PairingCodeLength   = 6
	pairingCodeAlphabet = "0123456789ABCDEF"

	// maxCodeAttempts bounds retries on the rare collision with a live code.
	maxCodeAttempts = 5
)

// PairingRepository persists one-time pairing codes.
type PairingRepository interface {
	// Create issues a new code valid for ttl.
	Create(ctx context.Context, ttl time.Duration) (*PairingCode, error)

	// Get returns ErrPairingNotFound if the code does not exist.
	Get(ctx context.Context, code string) (*PairingCode, error)

	// Validate returns nil if the code exists, is unused and unexpired.
	Validate(ctx context.Context, code string) error

	// Consume marks a valid code used and binds it to deviceID.
	Consume(ctx context.Context, code, deviceID string) error

	// Release undoes Consume when the bound device could not be created.
	// It only applies while the code is still bound to deviceID.
	Release(ctx context.Context, code, deviceID string) error

	// CleanupExpired deletes expired codes and returns how many were removed.
	CleanupExpired(ctx context.Context) (int64, error)
}

// SQLitePairingRepository implements PairingRepository using SQLite.
type SQLitePairingRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPairingRepository creates a new SQLite-backed pairing repository.
func NewPairingRepository(db *sql.DB) *SQLitePairingRepository {
	return &SQLitePairingRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// NormalisePairingCode upper-cases and trims user input.
func NormalisePairingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GeneratePairingCode returns a random code drawn from the hex alphabet.
func GeneratePairingCode() (string, error) {
	b := make([]byte, PairingCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating pairing code: %w", err)
	}
	for i := range b {
		b[i] = pairingCodeAlphabet[int(b[i])%len(pairingCodeAlphabet)]
	}
	return string(b), nil
}

// Create issues a new code. A collision with an existing row is retried.
func (r *SQLitePairingRepository) Create(ctx context.Context, ttl time.Duration) (*PairingCode, error) {
	now := r.now().Truncate(time.Second)
	p := &PairingCode{CreatedAt: now, ExpiresAt: now.Add(ttl)}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GeneratePairingCode()
		if err != nil {
			return nil, err
		}
		p.Code = code

		_, err = r.db.ExecContext(ctx,
			`INSERT INTO pairing_codes (code, created_at, expires_at, used) VALUES (?, ?, ?, 0)`,
			p.Code, p.CreatedAt.Format(time.RFC3339), p.ExpiresAt.Format(time.RFC3339),
		)
		if err == nil {
			return p, nil
		}
		if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("creating pairing code: %w", err)
		}
	}
	return nil, fmt.Errorf("creating pairing code: no free code after %d attempts", maxCodeAttempts)
}

// Get retrieves a pairing code.
func (r *SQLitePairingRepository) Get(ctx context.Context, code string) (*PairingCode, error) {
	var p PairingCode
	var createdAt, expiresAt string
	var used int
	var deviceID sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT code, created_at, expires_at, used, device_id FROM pairing_codes WHERE code = ?`,
		NormalisePairingCode(code),
	).Scan(&p.Code, &createdAt, &expiresAt, &used, &deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairingNotFound
		}
		return nil, fmt.Errorf("querying pairing code: %w", err)
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	p.Used = used != 0
	if deviceID.Valid {
		p.DeviceID = &deviceID.String
	}
	return &p, nil
}

// Validate checks that a code can be consumed.
func (r *SQLitePairingRepository) Validate(ctx context.Context, code string) error {
	p, err := r.Get(ctx, code)
	if err != nil {
		if errors.Is(err, ErrPairingNotFound) {
			return ErrPairingCodeInvalid
		}
		return err
	}
	if p.Used {
		return ErrPairingCodeUsed
	}
	if p.IsExpired(r.now()) {
		return ErrPairingCodeExpired
	}
	return nil
}

// Consume atomically marks the code used. Two concurrent registrations with
// the same code cannot both succeed.
func (r *SQLitePairingRepository) Consume(ctx context.Context, code, deviceID string) error {
	code = NormalisePairingCode(code)
	result, err := r.db.ExecContext(ctx,
		`UPDATE pairing_codes SET used = 1, device_id = ?
		 WHERE code = ? AND used = 0 AND expires_at > ?`,
		deviceID, code, r.now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("consuming pairing code: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}
	// Report why the update did not apply.
	if err := r.Validate(ctx, code); err != nil {
		return err
	}
	return ErrPairingCodeInvalid
}

// Release returns a consumed code to the unused state. A code bound to a
// different device is left alone and ErrPairingNotFound is returned.
func (r *SQLitePairingRepository) Release(ctx context.Context, code, deviceID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE pairing_codes SET used = 0, device_id = NULL
		 WHERE code = ? AND used = 1 AND device_id = ?`,
		NormalisePairingCode(code), deviceID,
	)
	if err != nil {
		return fmt.Errorf("releasing pairing code: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPairingNotFound
	}
	return nil
}

// CleanupExpired deletes codes past their expiry.
func (r *SQLitePairingRepository) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM pairing_codes WHERE expires_at <= ?`, r.now().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting expired pairing codes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
