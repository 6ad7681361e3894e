package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-ingest/internal/domain"
	"github.com/animus-labs/animus-ingest/internal/repo"
)

var unitRunsSchema = []string{
	`CREATE TABLE IF NOT EXISTS ingest_unit_runs (
		unit_run_id      TEXT PRIMARY KEY,
		collection       TEXT NOT NULL,
		label            TEXT NOT NULL,
		window_start     TIMESTAMPTZ NOT NULL,
		window_end       TIMESTAMPTZ NOT NULL,
		entry_time       TIMESTAMPTZ,
		expected_entries INTEGER NOT NULL,
		result           INTEGER NOT NULL,
		status           TEXT NOT NULL,
		error            TEXT,
		started_at       TIMESTAMPTZ NOT NULL,
		finished_at      TIMESTAMPTZ NOT NULL,
		integrity_sha256 TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ingest_unit_runs_collection_window ON ingest_unit_runs (collection, window_end)`,
}

const (
	insertUnitRunQuery = `INSERT INTO ingest_unit_runs (
		unit_run_id,
		collection,
		label,
		window_start,
		window_end,
		entry_time,
		expected_entries,
		result,
		status,
		error,
		started_at,
		finished_at,
		integrity_sha256
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	unitRunColumns = `unit_run_id, collection, label, window_start, window_end, entry_time, expected_entries, result, status, error, started_at, finished_at, integrity_sha256`

	selectUnitRunQuery = `SELECT ` + unitRunColumns + `
	 FROM ingest_unit_runs
	 WHERE unit_run_id = $1`
)

type UnitRunStore struct {
	db DB
}

var _ repo.UnitRunRepository = (*UnitRunStore)(nil)

func NewUnitRunStore(db DB) *UnitRunStore {
	if db == nil {
		return nil
	}
	return &UnitRunStore{db: db}
}

// EnsureSchema creates the ledger table when missing.
func (s *UnitRunStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("unit run store not initialized")
	}
	for _, stmt := range unitRunsSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure unit run schema: %w", err)
		}
	}
	return nil
}

func (s *UnitRunStore) Insert(ctx context.Context, run domain.UnitRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("unit run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	if err := requireIntegrity(run.IntegritySHA256); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertUnitRunQuery,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.Collection),
		strings.TrimSpace(run.Label),
		run.WindowStart.UTC(),
		run.WindowEnd.UTC(),
		nullTime(run.EntryTime),
		run.ExpectedEntries,
		run.Result,
		string(run.Status),
		nullIfEmpty(run.Error),
		normalizeTime(run.StartedAt),
		normalizeTime(run.FinishedAt),
		strings.TrimSpace(run.IntegritySHA256),
	)
	if err != nil {
		return fmt.Errorf("insert unit run: %w", err)
	}
	return nil
}

func (s *UnitRunStore) Get(ctx context.Context, id string) (domain.UnitRun, error) {
	if s == nil || s.db == nil {
		return domain.UnitRun{}, fmt.Errorf("unit run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.UnitRun{}, fmt.Errorf("unit run id is required")
	}
	run, err := scanUnitRun(s.db.QueryRowContext(ctx, selectUnitRunQuery, id))
	if err != nil {
		return domain.UnitRun{}, handleNotFound(err)
	}
	return run, nil
}

func (s *UnitRunStore) List(ctx context.Context, filter repo.UnitRunFilter) ([]domain.UnitRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("unit run store not initialized")
	}
	query, args, err := buildUnitRunListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unit runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.UnitRun, 0)
	for rows.Next() {
		run, err := scanUnitRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unit runs: %w", err)
	}
	return runs, nil
}

func buildUnitRunListQuery(filter repo.UnitRunFilter) (string, []any, error) {
	collection := strings.TrimSpace(filter.Collection)
	if collection == "" {
		return "", nil, fmt.Errorf("collection is required")
	}
	args := []any{collection}
	clauses := []string{"collection = $1"}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		clauses = append(clauses, fmt.Sprintf("window_end > $%d", len(args)))
	}

	query := `SELECT ` + unitRunColumns + ` FROM ingest_unit_runs WHERE ` + strings.Join(clauses, " AND ")
	query += " ORDER BY window_end DESC, label ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

type unitRunScanner interface {
	Scan(dest ...any) error
}

func scanUnitRun(scanner unitRunScanner) (domain.UnitRun, error) {
	var run domain.UnitRun
	var status string
	var entryTime sql.NullTime
	var errText sql.NullString
	if err := scanner.Scan(
		&run.ID,
		&run.Collection,
		&run.Label,
		&run.WindowStart,
		&run.WindowEnd,
		&entryTime,
		&run.ExpectedEntries,
		&run.Result,
		&status,
		&errText,
		&run.StartedAt,
		&run.FinishedAt,
		&run.IntegritySHA256,
	); err != nil {
		return domain.UnitRun{}, err
	}
	run.Status = domain.UnitRunStatus(status)
	if entryTime.Valid {
		run.EntryTime = entryTime.Time.UTC()
	}
	if errText.Valid {
		run.Error = errText.String
	}
	run.WindowStart = run.WindowStart.UTC()
	run.WindowEnd = run.WindowEnd.UTC()
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return run, nil
}
