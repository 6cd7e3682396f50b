package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/prizzzz/leaseIQ/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contracts (
	id                      TEXT PRIMARY KEY,
	tenant                  TEXT NOT NULL,
	filename                TEXT NOT NULL,
	object_name             TEXT NOT NULL DEFAULT '',
	pdf_url                 TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL,
	error_msg               TEXT NOT NULL DEFAULT '',
	contract_text           TEXT,
	make                    TEXT,
	model                   TEXT,
	year                    TEXT,
	vin                     TEXT,
	purchase_price          REAL,
	monthly_payment         REAL,
	down_payment            REAL,
	residual_value          REAL,
	apr_percent             REAL,
	lease_term_months       INTEGER,
	annual_mileage_km       INTEGER,
	early_termination_level TEXT,
	penalty_level           TEXT,
	maintenance_type        TEXT,
	warranty_type           TEXT,
	purchase_option_status  TEXT,
	junk_fees               TEXT,
	score                   INTEGER,
	rating                  TEXT,
	explanation             TEXT,
	strategy                TEXT,
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contracts_tenant_filename ON contracts (tenant, filename, created_at);
`

// SQLiteStore is a ContractRepository on a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dsn and ensures the schema.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, c *model.Contract) error {
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contracts (id, tenant, filename, object_name, pdf_url, status, error_msg, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Tenant, c.Filename, c.ObjectName, c.PDFURL, c.Status, c.ErrorMsg, c.CreatedAt.UTC(), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	return s.scanOne(row)
}

func (s *SQLiteStore) GetByIDOrFilename(ctx context.Context, tenant, key string) (*model.Contract, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE tenant = ? AND (id = ? OR filename = ?)
		 ORDER BY (id = ?) DESC, created_at DESC LIMIT 1`,
		tenant, key, key, key,
	)
	return s.scanOne(row)
}

func (s *SQLiteStore) ListByTenant(ctx context.Context, tenant string) ([]*model.Contract, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE tenant = ? ORDER BY created_at DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var result []*model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET status = ?, error_msg = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return requireAffected(res)
}

// Lock writes the analysis only while score is still NULL, so the first
// writer wins even across processes sharing the file.
func (s *SQLiteStore) Lock(ctx context.Context, id string, a model.Analysis) error {
	sets := make([]string, len(lockAssignments))
	for i, col := range lockAssignments {
		sets[i] = col + " = ?"
	}
	args := append(lockArgs(a, s.now().UTC()), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET `+strings.Join(sets, ", ")+`, error_msg = '' WHERE id = ? AND score IS NULL`, args...)
	if err != nil {
		return fmt.Errorf("failed to lock analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrScoreLocked
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contracts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*model.Contract, error) {
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}
	return c, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
