package platform

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Institution mirrors the institutions table. Users reference it by domain
// extracted from their email at signup.
type Institution struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Institutions is the repository for the institutions table.
type Institutions struct {
	db Querier
}

func NewInstitutions(db Querier) *Institutions {
	return &Institutions{db: db}
}

// GetByDomain resolves the institution owning an email domain.
func (r *Institutions) GetByDomain(ctx context.Context, domain string) (*Institution, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, errors.New("missing domain")
	}

	var inst Institution
	err := r.db.QueryRow(ctx, `
SELECT id, name, domain, is_active, created_at FROM institutions WHERE domain = $1
`, domain).Scan(&inst.ID, &inst.Name, &inst.Domain, &inst.IsActive, &inst.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &inst, nil
}

// Create inserts a new institution. Duplicate domains map to ErrDuplicate.
func (r *Institutions) Create(ctx context.Context, inst *Institution) error {
	if r == nil || r.db == nil {
		return errors.New("repository not initialized")
	}
	if inst == nil {
		return errors.New("nil institution")
	}
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	inst.Domain = strings.ToLower(strings.TrimSpace(inst.Domain))
	if inst.Domain == "" {
		return errors.New("missing domain")
	}
	if strings.TrimSpace(inst.Name) == "" {
		return errors.New("missing name")
	}

	_, err := r.db.Exec(ctx, `
INSERT INTO institutions (id, name, domain, is_active) VALUES ($1, $2, $3, TRUE)
`, inst.ID, inst.Name, inst.Domain)
	return mapError(err)
}

// NameForDomain derives a placeholder institution name from an email domain,
// used when a non-student signup creates a new institution.
func NameForDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	base, _, _ := strings.Cut(domain, ".")
	if base == "" {
		return "Unknown Institution"
	}
	return strings.ToUpper(base[:1]) + base[1:] + " Institution"
}
