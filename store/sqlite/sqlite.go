/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements occurrence.Store and policy.Store using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  occurrence_trackers:  One counter row per (policy, employee, type)
  policies:             Policy definitions stored as JSON documents

UPSERT SEMANTICS:
  Tracker writes use INSERT .. ON CONFLICT DO UPDATE on the composite
  primary key. Together with the occurrence service's per-key locking
  this gives the single-writer-per-key guarantee the tracker depends on.

POLICY STORAGE:
  Policies are stored as their JSON definition plus extracted columns
  (company_id, status) for listing. The JSON document is the source of
  truth; columns exist only for query convenience.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/rules.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - occurrence/store.go: Tracker interface definition
  - policy/store.go: Policy interface definition
  - store/memory/memory.go: In-memory implementations for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/rule-engine/occurrence"
	"github.com/warp/rule-engine/policy"
)

// Store implements occurrence.Store and policy.Store using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	factory *policy.Factory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, factory: policy.NewFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Occurrence trackers (one counter per policy/employee/type)
	CREATE TABLE IF NOT EXISTS occurrence_trackers (
		policy_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		type TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		reset_period TEXT NOT NULL,
		last_reset_at TEXT,
		last_occurred_at TEXT,
		PRIMARY KEY (policy_id, employee_id, type)
	);

	CREATE INDEX IF NOT EXISTS idx_trackers_policy
		ON occurrence_trackers(policy_id);

	-- Policy definitions (JSON document is the source of truth)
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		status TEXT NOT NULL,
		definition_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_company
		ON policies(company_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OCCURRENCE TRACKERS
// =============================================================================

// Get returns the tracker for a key, or occurrence.ErrTrackerNotFound.
func (s *Store) Get(ctx context.Context, key occurrence.Key) (occurrence.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT count, reset_period, last_reset_at, last_occurred_at
		FROM occurrence_trackers
		WHERE policy_id = ? AND employee_id = ? AND type = ?`,
		string(key.PolicyID), string(key.EmployeeID), string(key.Type))

	tracker := occurrence.Tracker{Key: key}
	var resetPeriod string
	var lastResetAt, lastOccurredAt sql.NullString
	err := row.Scan(&tracker.Count, &resetPeriod, &lastResetAt, &lastOccurredAt)
	if err == sql.ErrNoRows {
		return occurrence.Tracker{}, occurrence.ErrTrackerNotFound
	}
	if err != nil {
		return occurrence.Tracker{}, fmt.Errorf("failed to load tracker: %w", err)
	}

	tracker.ResetPeriod = occurrence.ResetPeriod(resetPeriod)
	if tracker.LastResetAt, err = parseNullTime(lastResetAt); err != nil {
		return occurrence.Tracker{}, err
	}
	if tracker.LastOccurredAt, err = parseNullTime(lastOccurredAt); err != nil {
		return occurrence.Tracker{}, err
	}
	return tracker, nil
}

// Put atomically creates or replaces the tracker row for its key.
func (s *Store) Put(ctx context.Context, tracker occurrence.Tracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO occurrence_trackers
			(policy_id, employee_id, type, count, reset_period, last_reset_at, last_occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (policy_id, employee_id, type) DO UPDATE SET
			count = excluded.count,
			reset_period = excluded.reset_period,
			last_reset_at = excluded.last_reset_at,
			last_occurred_at = excluded.last_occurred_at`,
		string(tracker.Key.PolicyID), string(tracker.Key.EmployeeID), string(tracker.Key.Type),
		tracker.Count, string(tracker.ResetPeriod),
		formatNullTime(tracker.LastResetAt), formatNullTime(tracker.LastOccurredAt))
	if err != nil {
		return fmt.Errorf("failed to upsert tracker: %w", err)
	}
	return nil
}

// ListByPolicy returns every tracker under one policy.
func (s *Store) ListByPolicy(ctx context.Context, policyID occurrence.PolicyID) ([]occurrence.Tracker, error) {
	return s.listTrackers(ctx, `
		SELECT policy_id, employee_id, type, count, reset_period, last_reset_at, last_occurred_at
		FROM occurrence_trackers
		WHERE policy_id = ?
		ORDER BY policy_id, employee_id, type`, string(policyID))
}

// ListAll returns every tracker. Used by the auto-reset sweep.
func (s *Store) ListAll(ctx context.Context) ([]occurrence.Tracker, error) {
	return s.listTrackers(ctx, `
		SELECT policy_id, employee_id, type, count, reset_period, last_reset_at, last_occurred_at
		FROM occurrence_trackers
		ORDER BY policy_id, employee_id, type`)
}

func (s *Store) listTrackers(ctx context.Context, query string, args ...any) ([]occurrence.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trackers: %w", err)
	}
	defer rows.Close()

	var trackers []occurrence.Tracker
	for rows.Next() {
		var t occurrence.Tracker
		var policyID, employeeID, typ, resetPeriod string
		var lastResetAt, lastOccurredAt sql.NullString
		if err := rows.Scan(&policyID, &employeeID, &typ, &t.Count, &resetPeriod, &lastResetAt, &lastOccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracker: %w", err)
		}
		t.Key = occurrence.Key{
			PolicyID:   occurrence.PolicyID(policyID),
			EmployeeID: occurrence.EmployeeID(employeeID),
			Type:       occurrence.Type(typ),
		}
		t.ResetPeriod = occurrence.ResetPeriod(resetPeriod)
		if t.LastResetAt, err = parseNullTime(lastResetAt); err != nil {
			return nil, err
		}
		if t.LastOccurredAt, err = parseNullTime(lastOccurredAt); err != nil {
			return nil, err
		}
		trackers = append(trackers, t)
	}
	return trackers, rows.Err()
}

// Delete removes a tracker row.
func (s *Store) Delete(ctx context.Context, key occurrence.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM occurrence_trackers
		WHERE policy_id = ? AND employee_id = ? AND type = ?`,
		string(key.PolicyID), string(key.EmployeeID), string(key.Type))
	if err != nil {
		return fmt.Errorf("failed to delete tracker: %w", err)
	}
	return nil
}

// =============================================================================
// POLICIES
// =============================================================================

// GetPolicy returns the policy for an ID, or policy.ErrPolicyNotFound.
func (s *Store) GetPolicy(ctx context.Context, id policy.ID) (policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var definition, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT definition_json, status FROM policies WHERE id = ?`, string(id)).
		Scan(&definition, &status)
	if err == sql.ErrNoRows {
		return policy.Policy{}, policy.ErrPolicyNotFound
	}
	if err != nil {
		return policy.Policy{}, fmt.Errorf("failed to load policy: %w", err)
	}
	return s.decodePolicy(definition, status)
}

// PutPolicy creates or replaces the policy.
func (s *Store) PutPolicy(ctx context.Context, p policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	definition, err := json.Marshal(s.factory.ToJSON(&p))
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (id, company_id, status, definition_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			company_id = excluded.company_id,
			status = excluded.status,
			definition_json = excluded.definition_json,
			updated_at = excluded.updated_at`,
		string(p.ID), p.CompanyID, string(p.Status), string(definition),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert policy: %w", err)
	}
	return nil
}

// ListPoliciesByCompany returns every policy belonging to a company.
func (s *Store) ListPoliciesByCompany(ctx context.Context, companyID string) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT definition_json, status FROM policies WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []policy.Policy
	for rows.Next() {
		var definition, status string
		if err := rows.Scan(&definition, &status); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		p, err := s.decodePolicy(definition, status)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// DeletePolicy removes a policy definition.
func (s *Store) DeletePolicy(ctx context.Context, id policy.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	return nil
}

func (s *Store) decodePolicy(definition, status string) (policy.Policy, error) {
	var pj policy.PolicyJSON
	if err := json.Unmarshal([]byte(definition), &pj); err != nil {
		return policy.Policy{}, fmt.Errorf("failed to decode policy: %w", err)
	}
	p, err := s.factory.FromJSON(pj)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("stored policy is invalid: %w", err)
	}
	// The status column wins over the stored document.
	p.Status = policy.Status(status)
	return *p, nil
}

// PolicyStore adapts Store to the policy.Store interface, which the
// tracker methods would otherwise collide with (Get/Put/Delete).
type PolicyStore struct {
	store *Store
}

// Policies returns the policy.Store view of this store.
func (s *Store) Policies() *PolicyStore {
	return &PolicyStore{store: s}
}

func (ps *PolicyStore) Get(ctx context.Context, id policy.ID) (policy.Policy, error) {
	return ps.store.GetPolicy(ctx, id)
}

func (ps *PolicyStore) Put(ctx context.Context, p policy.Policy) error {
	return ps.store.PutPolicy(ctx, p)
}

func (ps *PolicyStore) ListByCompany(ctx context.Context, companyID string) ([]policy.Policy, error) {
	return ps.store.ListPoliciesByCompany(ctx, companyID)
}

func (ps *PolicyStore) Delete(ctx context.Context, id policy.ID) error {
	return ps.store.DeletePolicy(ctx, id)
}

// =============================================================================
// TIME HELPERS
// =============================================================================

func formatNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s.String, err)
	}
	return t, nil
}
