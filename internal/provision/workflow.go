// Package provision drives the one-shot database setup pipeline: verify the
// connection, validate the DDL source, clean the namespace, apply the schema
// atomically, seed reference rows, then verify the result against a manifest.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// State tracks pipeline progress. Transitions are strictly forward; any step
// failure moves the workflow to StateFailed and stops the run.
type State string

const (
	StateUninitialized       State = "uninitialized"
	StateConnectionVerified  State = "connection_verified"
	StateSchemaFileValidated State = "schema_file_validated"
	StateCleaned             State = "cleaned"
	StateSchemaApplied       State = "schema_applied"
	StateSeeded              State = "seeded"
	StateVerified            State = "verified"
	StateFailed              State = "failed"
)

// StepError wraps a step failure with the step name so callers can report
// exactly where the pipeline stopped.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provision step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Options configures a workflow. Zero values fall back to the embedded
// schema and manifest.
type Options struct {
	Logger    *slog.Logger
	Runner    Runner
	SchemaSQL string
	Manifest  *Manifest
}

type Workflow struct {
	log      *slog.Logger
	runner   Runner
	schema   string
	manifest *Manifest

	state    State
	warnings []string
}

func New(opts Options) (*Workflow, error) {
	if opts.Runner == nil {
		return nil, errors.New("missing runner")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SchemaSQL == "" {
		opts.SchemaSQL = DefaultSchemaSQL()
	}
	if opts.Manifest == nil {
		m, err := DefaultManifest()
		if err != nil {
			return nil, err
		}
		opts.Manifest = m
	}
	return &Workflow{
		log:      opts.Logger,
		runner:   opts.Runner,
		schema:   opts.SchemaSQL,
		manifest: opts.Manifest,
		state:    StateUninitialized,
	}, nil
}

// State returns the current pipeline state.
func (w *Workflow) State() State { return w.state }

// Warnings returns soft findings collected during verification.
func (w *Workflow) Warnings() []string {
	out := make([]string, len(w.warnings))
	copy(out, w.warnings)
	return out
}

// Run executes every step in order, stopping at the first failure.
func (w *Workflow) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
		next State
	}{
		{"verify_connection", w.verifyConnection, StateConnectionVerified},
		{"validate_schema_source", w.validateSchemaSource, StateSchemaFileValidated},
		{"clean_existing", w.cleanExisting, StateCleaned},
		{"apply_schema", w.applySchema, StateSchemaApplied},
		{"seed", w.seed, StateSeeded},
		{"verify", w.verify, StateVerified},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			w.state = StateFailed
			w.log.Error("provision step failed", "step", s.name, "error", err)
			return &StepError{Step: s.name, Err: err}
		}
		w.state = s.next
		w.log.Info("provision step complete", "step", s.name, "state", string(w.state))
	}
	for _, warn := range w.warnings {
		w.log.Warn("provision verification warning", "detail", warn)
	}
	return nil
}

func (w *Workflow) verifyConnection(ctx context.Context) error {
	return w.runner.Ping(ctx)
}

func (w *Workflow) validateSchemaSource(_ context.Context) error {
	return CheckSchemaSource(w.schema)
}

// cleanExisting empties the target namespace. The fast path drops and
// recreates the schema; when the role lacks ownership of the schema itself,
// it falls back to dropping the contained objects one by one. Running it
// against an already empty namespace is a no-op.
func (w *Workflow) cleanExisting(ctx context.Context) error {
	err := w.runner.DropAndRecreateSchema(ctx, w.manifest.Namespace)
	if err == nil {
		return nil
	}
	if !isPermissionDenied(err) {
		return err
	}
	w.log.Warn("schema drop refused, removing objects individually", "namespace", w.manifest.Namespace, "error", err)

	tables, qerr := w.runner.QueryStrings(ctx, `
SELECT tablename FROM pg_tables WHERE schemaname = $1
`, w.manifest.Namespace)
	if qerr != nil {
		return qerr
	}
	for _, t := range tables {
		stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %q.%q CASCADE`, w.manifest.Namespace, t)
		if err := w.runner.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}

	types, qerr := w.runner.QueryStrings(ctx, `
SELECT t.typname FROM pg_type t
JOIN pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1 AND t.typtype = 'e'
`, w.manifest.Namespace)
	if qerr != nil {
		return qerr
	}
	for _, ty := range types {
		stmt := fmt.Sprintf(`DROP TYPE IF EXISTS %q.%q CASCADE`, w.manifest.Namespace, ty)
		if err := w.runner.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop type %s: %w", ty, err)
		}
	}
	return nil
}

func (w *Workflow) applySchema(ctx context.Context) error {
	return w.runner.ApplyAtomic(ctx, w.schema)
}

// seed inserts reference rows. Every insert carries ON CONFLICT DO NOTHING
// so reruns against an already seeded database change nothing.
func (w *Workflow) seed(ctx context.Context) error {
	for _, c := range w.manifest.Seed.SystemConfig {
		err := w.runner.Exec(ctx, `
INSERT INTO system_config (key, value, description) VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING
`, c.Key, c.Value, c.Description)
		if err != nil {
			return fmt.Errorf("seed system_config %s: %w", c.Key, err)
		}
	}
	for _, t := range w.manifest.Seed.AITools {
		err := w.runner.Exec(ctx, `
INSERT INTO ai_tools (name, display_name, description, category) VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO NOTHING
`, t.Name, t.DisplayName, t.Description, t.Category)
		if err != nil {
			return fmt.Errorf("seed ai_tools %s: %w", t.Name, err)
		}
	}
	return nil
}

// verify checks the provisioned database. A catalog diff against the
// expected table set or a failed CRUD round trip is a hard failure; index
// and seed counts below the manifest floor only produce warnings.
func (w *Workflow) verify(ctx context.Context) error {
	tables, err := w.runner.QueryStrings(ctx, `
SELECT tablename FROM pg_tables WHERE schemaname = $1
`, w.manifest.Namespace)
	if err != nil {
		return err
	}
	if missing, extra := diffSets(w.manifest.ExpectedTables, tables); len(missing) > 0 || len(extra) > 0 {
		return fmt.Errorf("table catalog mismatch: missing %v, unexpected %v", missing, extra)
	}

	if len(w.manifest.ExpectedTypes) > 0 {
		types, err := w.runner.QueryStrings(ctx, `
SELECT t.typname FROM pg_type t
JOIN pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1 AND t.typtype = 'e'
`, w.manifest.Namespace)
		if err != nil {
			return err
		}
		if missing, _ := diffSets(w.manifest.ExpectedTypes, types); len(missing) > 0 {
			return fmt.Errorf("enum types missing: %v", missing)
		}
	}

	if err := w.roundTrip(ctx); err != nil {
		return fmt.Errorf("crud round trip: %w", err)
	}

	if w.manifest.MinIndexes > 0 {
		n, err := w.runner.QueryInt(ctx, `
SELECT COUNT(*) FROM pg_indexes WHERE schemaname = $1 AND indexname LIKE 'idx_%'
`, w.manifest.Namespace)
		if err != nil {
			return err
		}
		if n < int64(w.manifest.MinIndexes) {
			w.warnings = append(w.warnings, fmt.Sprintf("only %d indexes present, expected at least %d", n, w.manifest.MinIndexes))
		}
	}

	for table, want := range map[string]int{
		"system_config": len(w.manifest.Seed.SystemConfig),
		"ai_tools":      len(w.manifest.Seed.AITools),
	} {
		if want == 0 {
			continue
		}
		n, err := w.runner.QueryInt(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q.%q`, w.manifest.Namespace, table))
		if err != nil {
			return err
		}
		if n < int64(want) {
			w.warnings = append(w.warnings, fmt.Sprintf("%s holds %d seed rows, expected at least %d", table, n, want))
		}
	}
	return nil
}

// roundTrip inserts a probe user, reads it back, and deletes it again. The
// probe email is namespaced so a crashed run's leftovers never collide with
// real accounts.
func (w *Workflow) roundTrip(ctx context.Context) error {
	const probeEmail = "provision-probe@internal.invalid"

	err := w.runner.Exec(ctx, `
INSERT INTO users (email, first_name, last_name, role) VALUES ($1, 'Provision', 'Probe', 'student')
ON CONFLICT (email) DO NOTHING
`, probeEmail)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	n, err := w.runner.QueryInt(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, probeEmail)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("probe row count %d after insert", n)
	}

	if err := w.runner.Exec(ctx, `DELETE FROM users WHERE email = $1`, probeEmail); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func isPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "must be owner") ||
		strings.Contains(msg, "42501")
}

// diffSets returns elements of want absent from have and vice versa, both
// sorted for stable error messages.
func diffSets(want, have []string) (missing, extra []string) {
	wantSet := make(map[string]bool, len(want))
	for _, s := range want {
		wantSet[s] = true
	}
	haveSet := make(map[string]bool, len(have))
	for _, s := range have {
		haveSet[s] = true
	}
	for s := range wantSet {
		if !haveSet[s] {
			missing = append(missing, s)
		}
	}
	for s := range haveSet {
		if !wantSet[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}
