package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresPool implements PoolRepository on PostgreSQL for item types
// whose inventory must survive restarts. Items are never deleted on
// sale; a row in data_pool_sold marks them taken, which keeps the sold
// audit trail in the same place concurrency control happens.
type PostgresPool struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewPostgresPool opens the database and ensures the schema exists.
func NewPostgresPool(dsn string, log *logrus.Logger) (*PostgresPool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := createPoolTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Info("[PostgresPool] Initialized")
	return &PostgresPool{db: db, log: log}, nil
}

func createPoolTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS data_pool (
		pool_type TEXT NOT NULL,
		item_id TEXT NOT NULL,
		added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (pool_type, item_id)
	);
	CREATE TABLE IF NOT EXISTS data_pool_sold (
		pool_type TEXT NOT NULL,
		item_id TEXT NOT NULL,
		user_id BIGINT NOT NULL,
		sold_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (pool_type, item_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sold_user ON data_pool_sold (user_id);
	`
	_, err := db.Exec(query)
	return err
}

// AddItems inserts items into a pool, skipping ones already present.
// Returns the number actually added.
func (p *PostgresPool) AddItems(ctx context.Context, poolType string, items []string) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO data_pool (pool_type, item_id)
		VALUES ($1, $2)
		ON CONFLICT (pool_type, item_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, item := range items {
		result, err := stmt.ExecContext(ctx, poolType, item)
		if err != nil {
			return 0, fmt.Errorf("failed to insert item: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return added, nil
}

// PopItems takes up to count unsold items for a user. SKIP LOCKED lets
// concurrent purchasers claim disjoint rows without waiting on each
// other; the sold-marker primary key catches the rare case where two
// transactions still saw the same item, and one retry resolves it.
func (p *PostgresPool) PopItems(ctx context.Context, poolType string, userID int64, count int) ([]string, error) {
	items, err := p.popOnce(ctx, poolType, userID, count)
	if isUniqueViolation(err) {
		p.log.WithFields(logrus.Fields{
			"pool_type": poolType,
			"user_id":   userID,
		}).Warn("[PostgresPool] Pop collision, retrying once")
		items, err = p.popOnce(ctx, poolType, userID, count)
	}
	return items, err
}

func (p *PostgresPool) popOnce(ctx context.Context, poolType string, userID int64, count int) ([]string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT item_id FROM data_pool p
		WHERE p.pool_type = $1
		  AND NOT EXISTS (
			SELECT 1 FROM data_pool_sold s
			WHERE s.pool_type = p.pool_type AND s.item_id = p.item_id
		  )
		ORDER BY added_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, poolType, count)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}

	var items []string
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(items) == 0 {
		return nil, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO data_pool_sold (pool_type, item_id, user_id)
		VALUES ($1, $2, $3)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, poolType, item, userID); err != nil {
			return nil, fmt.Errorf("failed to mark item sold: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return items, nil
}

// Release drops the sold markers for items, returning them to the
// unsold set. Used to undo a claim whose payment did not land.
func (p *PostgresPool) Release(ctx context.Context, poolType string, items []string) error {
	if len(items) == 0 {
		return nil
	}

	_, err := p.db.ExecContext(ctx, `
		DELETE FROM data_pool_sold
		WHERE pool_type = $1 AND item_id = ANY($2)`, poolType, pq.Array(items))
	if err != nil {
		return fmt.Errorf("failed to release items: %w", err)
	}
	return nil
}

// PoolSize returns the number of unsold items in a pool.
func (p *PostgresPool) PoolSize(ctx context.Context, poolType string) (int, error) {
	var size int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM data_pool p
		LEFT JOIN data_pool_sold s
		  ON s.pool_type = p.pool_type AND s.item_id = p.item_id
		WHERE p.pool_type = $1 AND s.item_id IS NULL`, poolType).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to count pool: %w", err)
	}
	return size, nil
}

// SoldItems returns every item sold to a user, newest first.
func (p *PostgresPool) SoldItems(ctx context.Context, userID int64) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT item_id FROM data_pool_sold
		WHERE user_id = $1
		ORDER BY sold_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sold items: %w", err)
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, fmt.Errorf("failed to scan sold row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Close closes the database connection.
func (p *PostgresPool) Close() error {
	return p.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Ensure PostgresPool implements PoolRepository
var _ PoolRepository = (*PostgresPool)(nil)
