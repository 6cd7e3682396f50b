package service

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prizzzz/leaseIQ/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies the embedded schema migrations to the database at dsn.
func RunMigrations(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("postgres: create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: run migrations up: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// DSN to the scheme of the pgx/v5 migrate driver.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// PostgresStore is a ContractRepository on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore migrates the schema, connects a pool and pings it.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *model.Contract) error {
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO contracts (id, tenant, filename, object_name, pdf_url, status, error_msg, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Tenant, c.Filename, c.ObjectName, c.PDFURL, c.Status, c.ErrorMsg, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	return s.scanOne(s.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
}

func (s *PostgresStore) GetByIDOrFilename(ctx context.Context, tenant, key string) (*model.Contract, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE tenant = $1 AND (id = $2 OR filename = $2)
		 ORDER BY (id = $2) DESC, created_at DESC LIMIT 1`,
		tenant, key,
	))
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenant string) ([]*model.Contract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE tenant = $1 ORDER BY created_at DESC`, tenant)
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

func (s *PostgresStore) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contracts SET status = $1, error_msg = $2, updated_at = $3 WHERE id = $4`,
		status, errMsg, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Lock(ctx context.Context, id string, a model.Analysis) error {
	sets := make([]string, len(lockAssignments))
	for i, col := range lockAssignments {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	args := append(lockArgs(a, s.now().UTC()), id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE contracts SET %s, error_msg = '' WHERE id = $%d AND score IS NULL`,
			strings.Join(sets, ", "), len(args)),
		args...)
	if err != nil {
		return fmt.Errorf("failed to lock analysis: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrScoreLocked
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contracts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) scanOne(row pgx.Row) (*model.Contract, error) {
	c, err := scanContract(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}
	return c, nil
}
