package platform

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	if got := mapError(nil); got != nil {
		t.Fatalf("mapError(nil) = %v", got)
	}
	if got := mapError(pgx.ErrNoRows); got != ErrNotFound {
		t.Fatalf("mapError(ErrNoRows) = %v, want ErrNotFound", got)
	}
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	if got := mapError(dup); got != ErrDuplicate {
		t.Fatalf("mapError(23505) = %v, want ErrDuplicate", got)
	}
	fk := &pgconn.PgError{Code: "23503"}
	if got := mapError(fk); got == ErrDuplicate || got == ErrNotFound {
		t.Fatalf("mapError(23503) = %v, want passthrough", got)
	}
	plain := errors.New("connection reset")
	if got := mapError(plain); got != plain {
		t.Fatalf("mapError(plain) = %v, want passthrough", got)
	}
}

func TestValidRole(t *testing.T) {
	t.Parallel()

	for _, r := range ValidRoles {
		if !ValidRole(r) {
			t.Fatalf("ValidRole(%q) = false", r)
		}
	}
	if ValidRole("root") {
		t.Fatalf("ValidRole(root) = true")
	}
	if ValidRole("") {
		t.Fatalf("ValidRole(empty) = true")
	}
}

func TestUser_FullName(t *testing.T) {
	t.Parallel()

	u := &User{FirstName: "Ada", LastName: "Lovelace"}
	if got := u.FullName(); got != "Ada Lovelace" {
		t.Fatalf("FullName = %q", got)
	}
	if got := (&User{FirstName: "Ada"}).FullName(); got != "Ada" {
		t.Fatalf("FullName = %q", got)
	}
	var nilUser *User
	if got := nilUser.FullName(); got != "" {
		t.Fatalf("nil FullName = %q", got)
	}
}

func TestNameForDomain(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"ganpatuniversity.ac.in": "Ganpatuniversity Institution",
		"MIT.edu":                "Mit Institution",
		"":                       "Unknown Institution",
	}
	for in, want := range cases {
		if got := NameForDomain(in); got != want {
			t.Fatalf("NameForDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
