package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"game-devserver/internal/models"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements AccessLogRepository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the access database at dbPath
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS access_records (
		id TEXT PRIMARY KEY,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		remote_addr TEXT,
		user_agent TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_access_created_at ON access_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_access_status ON access_records(status);
	`

	_, err := r.db.Exec(schema)
	return err
}

const insertRecordQuery = `
	INSERT INTO access_records (id, method, path, status, bytes, duration_ns, remote_addr, user_agent, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertRecord(ctx context.Context, ex execer, rec *models.AccessRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := ex.ExecContext(ctx, insertRecordQuery,
		rec.ID,
		rec.Method,
		rec.Path,
		rec.Status,
		rec.Bytes,
		int64(rec.Duration),
		nullIfEmpty(rec.RemoteAddr),
		nullIfEmpty(rec.UserAgent),
		rec.CreatedAt.UnixNano(),
	)
	return err
}

// CreateRecord stores a single access record
func (r *SQLiteRepository) CreateRecord(ctx context.Context, rec *models.AccessRecord) error {
	if err := insertRecord(ctx, r.db, rec); err != nil {
		return fmt.Errorf("failed to create access record: %w", err)
	}
	return nil
}

// CreateRecords stores a batch of records in one transaction
func (r *SQLiteRepository) CreateRecords(ctx context.Context, recs []*models.AccessRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if err := insertRecord(ctx, tx, rec); err != nil {
			return fmt.Errorf("failed to create access record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRecordByID retrieves a record by ID; sql.ErrNoRows if absent
func (r *SQLiteRepository) GetRecordByID(ctx context.Context, id string) (*models.AccessRecord, error) {
	query := `
		SELECT id, method, path, status, bytes, duration_ns, remote_addr, user_agent, created_at
		FROM access_records
		WHERE id = ?
	`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get access record: %w", err)
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]*models.AccessRecord, error) {
	query := `
		SELECT id, method, path, status, bytes, duration_ns, remote_addr, user_agent, created_at
		FROM access_records
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query access records: %w", err)
	}
	defer rows.Close()

	var recs []*models.AccessRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access record: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate access records: %w", err)
	}

	return recs, nil
}

// CountByStatus returns the number of records per status code, ascending by status
func (r *SQLiteRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	query := `
		SELECT status, COUNT(*)
		FROM access_records
		GROUP BY status
		ORDER BY status ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count access records: %w", err)
	}
	defer rows.Close()

	var counts []models.StatusCount
	for rows.Next() {
		var c models.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.AccessRecord, error) {
	var rec models.AccessRecord
	var remoteAddr, userAgent sql.NullString
	var durationNs, createdAt int64

	err := row.Scan(
		&rec.ID,
		&rec.Method,
		&rec.Path,
		&rec.Status,
		&rec.Bytes,
		&durationNs,
		&remoteAddr,
		&userAgent,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Duration = time.Duration(durationNs)
	rec.CreatedAt = time.Unix(0, createdAt)
	if remoteAddr.Valid {
		rec.RemoteAddr = remoteAddr.String
	}
	if userAgent.Valid {
		rec.UserAgent = userAgent.String
	}

	return &rec, nil
}

// SQLite stores empty optional columns as NULL
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
