package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shelfline/shelfline/internal/catalog"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed product record store.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath, applies pragmas,
// and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single pooled connection keeps every statement on the same SQLite
	// handle. With ":memory:" each new connection would otherwise get its
	// own empty database.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety. WAL keeps
// readers on a consistent snapshot while a write transaction is open.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// storageError tags a failed persistence operation so callers can match it
// with errors.Is(err, catalog.ErrStorage).
func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(catalog.ErrStorage, err))
}

const recordColumns = `id, name, brand_name, image_url, is_favorite, price, discount, sync_state, created_at, updated_at`

// scanRecord scans a row into a ProductRecord.
func scanRecord(scanner interface{ Scan(...any) error }) (*catalog.ProductRecord, error) {
	var rec catalog.ProductRecord
	var brand, image, price, discount sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&brand,
		&image,
		&rec.IsFavorite,
		&price,
		&discount,
		&rec.SyncState,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if brand.Valid {
		rec.BrandName = &brand.String
	}
	if image.Valid {
		rec.ImageURL = &image.String
	}
	if price.Valid {
		rec.Price = &price.String
	}
	if discount.Valid {
		rec.Discount = &discount.String
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &rec, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]catalog.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("query products", err)
	}
	defer rows.Close()

	var records []catalog.ProductRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageError("scan product row", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate product rows", err)
	}

	return records, nil
}

// FetchAll returns every stored record in insertion order.
func (s *SQLiteStore) FetchAll(ctx context.Context) ([]catalog.ProductRecord, error) {
	return s.queryRecords(ctx, fmt.Sprintf(
		`SELECT %s FROM products ORDER BY rowid ASC`, recordColumns))
}

// Search returns records whose name contains substring, case-insensitively.
func (s *SQLiteStore) Search(ctx context.Context, substring string) ([]catalog.ProductRecord, error) {
	return s.queryRecords(ctx, fmt.Sprintf(
		`SELECT %s FROM products WHERE instr(lower(name), lower(?)) > 0 ORDER BY rowid ASC`,
		recordColumns), substring)
}

// Get returns the record with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*catalog.ProductRecord, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM products WHERE id = ?`, recordColumns), id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, storageError("get product", err)
	}

	return rec, nil
}

const upsertSQL = `
	INSERT INTO products (id, name, brand_name, image_url, is_favorite, price, discount, sync_state, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name        = excluded.name,
		brand_name  = excluded.brand_name,
		image_url   = excluded.image_url,
		is_favorite = excluded.is_favorite,
		price       = excluded.price,
		discount    = excluded.discount,
		sync_state  = excluded.sync_state,
		updated_at  = excluded.updated_at
`

func upsertArgs(rec catalog.ProductRecord, now time.Time) []any {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return []any{
		rec.ID,
		rec.Name,
		nullable(rec.BrandName),
		nullable(rec.ImageURL),
		rec.IsFavorite,
		nullable(rec.Price),
		nullable(rec.Discount),
		string(rec.SyncState),
		createdAt.Format(time.RFC3339),
		now.Format(time.RFC3339),
	}
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Upsert inserts or replaces a record by id.
func (s *SQLiteStore) Upsert(ctx context.Context, rec catalog.ProductRecord) error {
	if strings.TrimSpace(rec.Name) == "" {
		return &catalog.InvalidRecordError{Fields: []catalog.FieldError{
			{Field: "name", Message: "must not be empty"},
		}}
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, upsertSQL, upsertArgs(rec, now)...); err != nil {
		return storageError("upsert product", err)
	}

	return nil
}

// Replace atomically removes oldID and upserts rec in one transaction, used
// to swap a locally minted id for the remote-assigned one.
func (s *SQLiteStore) Replace(ctx context.Context, oldID string, rec catalog.ProductRecord) error {
	if strings.TrimSpace(rec.Name) == "" {
		return &catalog.InvalidRecordError{Fields: []catalog.FieldError{
			{Field: "name", Message: "must not be empty"},
		}}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, oldID); err != nil {
		return storageError("remove old product id", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, upsertSQL, upsertArgs(rec, now)...); err != nil {
		return storageError("insert replacement product", err)
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit replace", err)
	}

	return nil
}

// UpdateMany applies the sync state, and optionally a favorite value, to all
// matched records. The call is all-or-nothing.
func (s *SQLiteStore) UpdateMany(ctx context.Context, ids []string, state catalog.SyncState, favorite *bool) error {
	if len(ids) == 0 {
		return fmt.Errorf("update products: %w", catalog.ErrNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin update", err)
	}
	defer tx.Rollback()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := `UPDATE products SET sync_state = ?, updated_at = ?`
	args := []any{string(state), time.Now().UTC().Format(time.RFC3339)}
	if favorite != nil {
		query += `, is_favorite = ?`
		args = append(args, *favorite)
	}
	query += ` WHERE id IN (` + placeholders + `)`
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return storageError("update products", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageError("update products", err)
	}
	if affected == 0 {
		return fmt.Errorf("update products: %w", catalog.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit update", err)
	}

	return nil
}

// Delete physically removes a record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return storageError("delete product", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageError("delete product", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete product %q: %w", id, catalog.ErrNotFound)
	}

	return nil
}

// PurgeSynced removes every record in the synced state.
func (s *SQLiteStore) PurgeSynced(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM products WHERE sync_state = ?`, string(catalog.StateSynced))
	if err != nil {
		return storageError("purge synced products", err)
	}
	return nil
}

// Pending returns every record carrying an unconfirmed local mutation,
// oldest first so a flush replays mutations in submission order.
func (s *SQLiteStore) Pending(ctx context.Context) ([]catalog.ProductRecord, error) {
	return s.queryRecords(ctx, fmt.Sprintf(
		`SELECT %s FROM products WHERE sync_state != ? ORDER BY updated_at ASC, rowid ASC`,
		recordColumns), string(catalog.StateSynced))
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, storageError("count products", err)
	}
	return count, nil
}
