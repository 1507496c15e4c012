package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/craftlabs/forma/internal/models"

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
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer; a single connection
	// serializes all access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
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

// --- Formulations ---

func (s *SQLiteStore) CreateFormulation(ctx context.Context, f *models.Formulation) error {
	if f.ID == "" {
		f.ID = newULID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO formulations (id, input_ref, category, prompt, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.InputRef, f.Category, f.Prompt, f.Body, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create formulation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFormulation(ctx context.Context, id string) (*models.Formulation, error) {
	f := &models.Formulation{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, input_ref, category, prompt, body, created_at
		FROM formulations WHERE id = ?`, id,
	).Scan(&f.ID, &f.InputRef, &f.Category, &f.Prompt, &f.Body, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("formulation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get formulation: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) ListFormulations(ctx context.Context, category string, limit int) ([]*models.Formulation, error) {
	query := `SELECT id, input_ref, category, prompt, body, created_at
		FROM formulations`
	var args []any
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list formulations: %w", err)
	}
	defer rows.Close()

	var formulations []*models.Formulation
	for rows.Next() {
		f := &models.Formulation{}
		if err := rows.Scan(&f.ID, &f.InputRef, &f.Category, &f.Prompt, &f.Body, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan formulation: %w", err)
		}
		formulations = append(formulations, f)
	}
	return formulations, rows.Err()
}

func (s *SQLiteStore) DeleteFormulation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM formulations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete formulation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete formulation: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("formulation not found: %s", id)
	}
	return nil
}
