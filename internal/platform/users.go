package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User mirrors the users table. InstitutionID is a plain foreign key; the
// institution record is fetched explicitly when needed.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Role          string     `json:"role"`
	PasswordHash  string     `json:"-"`
	InstitutionID *uuid.UUID `json:"institution_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// FullName joins the name parts the way the platform displays users.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ValidRoles lists the accepted user roles, most privileged first.
var ValidRoles = []string{"super_admin", "admin", "faculty", "staff", "student"}

// ValidRole reports whether role is one of the accepted values.
func ValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Users is the repository for the users table.
type Users struct {
	db Querier
}

func NewUsers(db Querier) *Users {
	return &Users{db: db}
}

const userColumns = `id, email, first_name, last_name, role, password_hash, institution_id, is_active, last_login, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.PasswordHash, &u.InstitutionID, &u.IsActive, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// Create inserts a new user. A duplicate email maps to ErrDuplicate.
func (r *Users) Create(ctx context.Context, u *User) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	if u == nil {
		return errors.New("nil user")
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if strings.TrimSpace(u.Role) == "" {
		u.Role = "student"
	}
	if !ValidRole(u.Role) {
		return fmt.Errorf("invalid role: %q", u.Role)
	}

	_, err := r.db.Exec(ctx, `
INSERT INTO users (id, email, first_name, last_name, role, password_hash, institution_id, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
`, u.ID, strings.TrimSpace(u.Email), u.FirstName, u.LastName, u.Role, u.PasswordHash, u.InstitutionID)
	return mapError(err)
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.TrimSpace(email))
	return scanUser(row)
}

func (r *Users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// List returns all users ordered by creation time, newest first.
func (r *Users) List(ctx context.Context) ([]User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, mapError(rows.Err())
}

// UpdateRole changes a user's role. Unknown user ids map to ErrNotFound.
func (r *Users) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	if !ValidRole(role) {
		return fmt.Errorf("invalid role: %q", role)
	}
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin stamps a successful login.
func (r *Users) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	return mapError(err)
}
