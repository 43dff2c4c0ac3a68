package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joescharf/eightd/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access and keeps the per-connection PRAGMAs below in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Cascading deletes of root causes depend on this.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullString stores empty optional text as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt64 stores a nil reference as NULL.
func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Problems ---

const problemColumns = `id, title, description, responsible_person, team, deadline, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProblem(row rowScanner) (*models.Problem, error) {
	p := &models.Problem{}
	var description, team, deadline sql.NullString
	var status string
	if err := row.Scan(&p.ID, &p.Title, &description, &p.ResponsiblePerson, &team, &deadline, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Team = team.String
	p.Deadline = deadline.String
	p.Status = models.ProblemStatus(status)
	return p, nil
}

func (s *SQLiteStore) CreateProblem(ctx context.Context, p *models.Problem) error {
	if p.Status == "" {
		p.Status = models.ProblemStatusOpen
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO problems (title, description, responsible_person, team, deadline, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, nullString(p.Description), p.ResponsiblePerson, nullString(p.Team), nullString(p.Deadline),
		string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create problem: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create problem: last insert id: %w", err)
	}
	p.ID = id
	return nil
}

func (s *SQLiteStore) GetProblem(ctx context.Context, id int64) (*models.Problem, error) {
	p, err := scanProblem(s.db.QueryRowContext(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("problem %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProblems(ctx context.Context) ([]*models.Problem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+problemColumns+` FROM problems ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var problems []*models.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func (s *SQLiteStore) UpdateProblem(ctx context.Context, p *models.Problem) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE problems SET title=?, description=?, responsible_person=?, team=?, deadline=?, status=?, updated_at=?
		WHERE id=?`,
		p.Title, nullString(p.Description), p.ResponsiblePerson, nullString(p.Team), nullString(p.Deadline),
		string(p.Status), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update problem: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("problem %d: %w", p.ID, ErrNotFound)
	}
	return nil
}

// DeleteProblem removes the problem; its root causes go with it through the
// foreign key cascade.
func (s *SQLiteStore) DeleteProblem(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM problems WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete problem: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("problem %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) SetProblemStatus(ctx context.Context, id int64, status models.ProblemStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE problems SET status=?, updated_at=? WHERE id=? AND status != ?`,
		string(status), time.Now().UTC(), id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("set problem status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		return true, nil
	}

	// Nothing changed: either the status already matched or the row is gone.
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM problems WHERE id = ?)", id).Scan(&exists); err != nil {
		return false, fmt.Errorf("set problem status: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("problem %d: %w", id, ErrNotFound)
	}
	return false, nil
}

// --- Root causes ---

const rootCauseColumns = `id, problem_id, parent_id, description, is_root_cause, action_plan, created_at, updated_at`

func scanRootCause(row rowScanner) (*models.RootCause, error) {
	rc := &models.RootCause{}
	var parentID sql.NullInt64
	var actionPlan sql.NullString
	if err := row.Scan(&rc.ID, &rc.ProblemID, &parentID, &rc.Description, &rc.IsRootCause, &actionPlan, &rc.CreatedAt, &rc.UpdatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		pid := parentID.Int64
		rc.ParentID = &pid
	}
	rc.ActionPlan = actionPlan.String
	return rc, nil
}

func (s *SQLiteStore) CreateRootCause(ctx context.Context, rc *models.RootCause) error {
	now := time.Now().UTC()
	rc.CreatedAt = now
	rc.UpdatedAt = now

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO root_causes (problem_id, parent_id, description, is_root_cause, action_plan, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rc.ProblemID, nullInt64(rc.ParentID), rc.Description, boolToInt(rc.IsRootCause), nullString(rc.ActionPlan),
		rc.CreatedAt, rc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create root cause: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create root cause: last insert id: %w", err)
	}
	rc.ID = id
	return nil
}

func (s *SQLiteStore) GetRootCause(ctx context.Context, id int64) (*models.RootCause, error) {
	rc, err := scanRootCause(s.db.QueryRowContext(ctx,
		`SELECT `+rootCauseColumns+` FROM root_causes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("root cause %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get root cause: %w", err)
	}
	return rc, nil
}

func (s *SQLiteStore) ListRootCauses(ctx context.Context, problemID int64) ([]*models.RootCause, error) {
	return s.queryRootCauses(ctx,
		`SELECT `+rootCauseColumns+` FROM root_causes WHERE problem_id = ? ORDER BY id ASC`, problemID)
}

func (s *SQLiteStore) UpdateRootCause(ctx context.Context, rc *models.RootCause) error {
	rc.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE root_causes SET description=?, is_root_cause=?, action_plan=?, updated_at=? WHERE id=?`,
		rc.Description, boolToInt(rc.IsRootCause), nullString(rc.ActionPlan), rc.UpdatedAt, rc.ID,
	)
	if err != nil {
		return fmt.Errorf("update root cause: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("root cause %d: %w", rc.ID, ErrNotFound)
	}
	return nil
}

// subtreeCTE selects the id of a node and of every descendant, at any depth.
const subtreeCTE = `WITH RECURSIVE subtree(id) AS (
		SELECT id FROM root_causes WHERE id = ?
		UNION ALL
		SELECT rc.id FROM root_causes rc JOIN subtree ON rc.parent_id = subtree.id
	)`

func (s *SQLiteStore) DeleteRootCause(ctx context.Context, id int64) ([]*models.RootCause, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		subtreeCTE+` SELECT `+rootCauseColumns+` FROM root_causes WHERE id IN (SELECT id FROM subtree) ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("load root cause subtree: %w", err)
	}
	var removed []*models.RootCause
	for rows.Next() {
		rc, err := scanRootCause(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan root cause: %w", err)
		}
		removed = append(removed, rc)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("load root cause subtree: %w", err)
	}
	_ = rows.Close()

	if len(removed) == 0 {
		return nil, fmt.Errorf("root cause %d: %w", id, ErrNotFound)
	}

	// Deleting the explicit subtree keeps the result independent of whether
	// the connection enforces the parent_id cascade.
	if _, err := tx.ExecContext(ctx,
		subtreeCTE+` DELETE FROM root_causes WHERE id IN (SELECT id FROM subtree)`, id); err != nil {
		return nil, fmt.Errorf("delete root cause subtree: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return removed, nil
}

func (s *SQLiteStore) RootCauseDepth(ctx context.Context, id int64) (int, error) {
	var depth int
	err := s.db.QueryRowContext(ctx,
		`WITH RECURSIVE ancestors(id, parent_id, depth) AS (
			SELECT id, parent_id, 1 FROM root_causes WHERE id = ?
			UNION ALL
			SELECT rc.id, rc.parent_id, a.depth + 1
			FROM root_causes rc JOIN ancestors a ON rc.id = a.parent_id
		)
		SELECT COALESCE(MAX(depth), 0) FROM ancestors`, id,
	).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("root cause depth: %w", err)
	}
	if depth == 0 {
		return 0, fmt.Errorf("root cause %d: %w", id, ErrNotFound)
	}
	return depth, nil
}

func (s *SQLiteStore) HasResolvedRootCause(ctx context.Context, problemID, excludeID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM root_causes
			WHERE problem_id = ? AND id != ? AND is_root_cause = 1
			AND TRIM(COALESCE(action_plan, ''), ' '||char(9)||char(10)||char(13)) != ''
		)`, problemID, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check resolved root causes: %w", err)
	}
	return exists, nil
}

// queryRootCauses is a shared helper for scanning root cause rows.
func (s *SQLiteStore) queryRootCauses(ctx context.Context, query string, args ...any) ([]*models.RootCause, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list root causes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []*models.RootCause
	for rows.Next() {
		rc, err := scanRootCause(rows)
		if err != nil {
			return nil, fmt.Errorf("scan root cause: %w", err)
		}
		nodes = append(nodes, rc)
	}
	return nodes, rows.Err()
}
