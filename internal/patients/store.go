package patients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Role distinguishes patient accounts from clinic staff.
type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// User is a clinic account, patient or admin.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Role      Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides account lookup and creation for the chat flows.
type Store struct {
	db DB
}

// NewStore creates a patients store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, name, email, phone, role, active, created_at, updated_at`

// GetByID fetches one user, nil when absent.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patients: get by id: %w", err)
	}
	return user, nil
}

// GetByEmail finds a user by normalized (trimmed, lowercased) email.
// Returns nil when no account matches.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE lower(email) = $1 LIMIT 1`, email)
	user, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patients: get by email: %w", err)
	}
	return user, nil
}

// GetByPhone finds a user by phone, trying the number as given plus common
// formatting variants (with and without the leading country code digits).
func (s *Store) GetByPhone(ctx context.Context, phone string) (*User, error) {
	for _, candidate := range phoneVariants(phone) {
		row := s.db.QueryRow(ctx, `
			SELECT `+userColumns+` FROM users WHERE phone = $1 LIMIT 1`, candidate)
		user, err := scanUser(row)
		if err == pgx.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("patients: get by phone: %w", err)
		}
		return user, nil
	}
	return nil, nil
}

// CreatePatient inserts a new patient-role account.
func (s *Store) CreatePatient(ctx context.Context, name, email, phone string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Phone:     phone,
		Role:      RolePatient,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, name, email, phone, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Name, user.Email, user.Phone, string(user.Role), user.Active, now, now)
	if err != nil {
		return nil, fmt.Errorf("patients: create patient: %w", err)
	}
	return user, nil
}

// UpdatePhone replaces the phone on file, used when a known patient books
// from a new number.
func (s *Store) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE users SET phone = $1, updated_at = $2 WHERE id = $3`, phone, now, id)
	if err != nil {
		return fmt.Errorf("patients: update phone: %w", err)
	}
	return nil
}

// ListActiveAdmins returns every active admin account, used for new-booking
// notifications.
func (s *Store) ListActiveAdmins(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+` FROM users WHERE role = 'admin' AND active ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("patients: list active admins: %w", err)
	}
	defer rows.Close()

	var admins []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan admin: %w", err)
		}
		admins = append(admins, *user)
	}
	return admins, rows.Err()
}

// phoneVariants returns the lookup candidates for a normalized digit string.
// Indian numbers are stored sometimes with and sometimes without the 91
// country code.
func phoneVariants(phone string) []string {
	variants := []string{phone}
	if strings.HasPrefix(phone, "91") && len(phone) == 12 {
		variants = append(variants, phone[2:])
	} else if len(phone) == 10 {
		variants = append(variants, "91"+phone)
	}
	return variants
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		user User
		role string
	)
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &role,
		&user.Active, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Role = Role(role)
	return &user, nil
}
