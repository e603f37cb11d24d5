package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mailseller-api/internal/model"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/sirupsen/logrus"
)

// MySQLStore implements Store using MySQL. DSN must carry
// parseTime=true so DATETIME columns scan into time.Time.
type MySQLStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewMySQLStore opens the database and ensures the schema exists.
func NewMySQLStore(dsn string, log *logrus.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createMySQLTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Info("[MySQLStore] Initialized")
	return &MySQLStore{db: db, log: log}, nil
}

func createMySQLTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS user_credit (
			user_id BIGINT PRIMARY KEY,
			credits DOUBLE NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_token (
			user_id BIGINT PRIMARY KEY,
			token VARCHAR(128) NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uniq_token (token)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(64) PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount DOUBLE NOT NULL,
			type VARCHAR(32) NOT NULL,
			description TEXT,
			item_ids TEXT,
			metadata TEXT,
			timestamp DATETIME NOT NULL,
			INDEX idx_tx_user_time (user_id, timestamp),
			INDEX idx_tx_type (type)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			custom_discount DOUBLE NULL
		)`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) GetBalance(ctx context.Context, userID int64) (float64, error) {
	var credits float64
	err := s.db.QueryRowContext(ctx,
		`SELECT credits FROM user_credit WHERE user_id = ?`, userID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return credits, nil
}

func (s *MySQLStore) UpsertBalances(ctx context.Context, balances map[int64]float64) error {
	if len(balances) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_credit (user_id, credits, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			credits = VALUES(credits),
			updated_at = VALUES(updated_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for userID, credits := range balances {
		if _, err := stmt.ExecContext(ctx, userID, credits, now); err != nil {
			return fmt.Errorf("failed to upsert balance for user %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) AllBalances(ctx context.Context) (map[int64]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, credits FROM user_credit`)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var userID int64
		var credits float64
		if err := rows.Scan(&userID, &credits); err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		out[userID] = credits
	}
	return out, rows.Err()
}

func (s *MySQLStore) GetToken(ctx context.Context, userID int64) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM user_token WHERE user_id = ?`, userID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

func (s *MySQLStore) UpsertTokens(ctx context.Context, tokens map[int64]string) error {
	if len(tokens) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_token (user_id, token, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			token = VALUES(token),
			updated_at = VALUES(updated_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for userID, token := range tokens {
		if _, err := stmt.ExecContext(ctx, userID, token, now); err != nil {
			return fmt.Errorf("failed to upsert token for user %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) AllTokens(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, token FROM user_token`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var userID int64
		var token string
		if err := rows.Scan(&userID, &token); err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		out[userID] = token
	}
	return out, rows.Err()
}

func (s *MySQLStore) InsertTransactions(ctx context.Context, txs []model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, description, item_ids, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		_, err := stmt.ExecContext(ctx, t.ID, t.UserID, t.Amount, t.Type,
			t.Description, strings.Join(t.ItemIDs, ","), t.Metadata, t.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) DeleteTransactionsOlderThan(ctx context.Context, txType string, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE type = ? AND timestamp < ?`, txType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old transactions: %w", err)
	}
	return result.RowsAffected()
}

func (s *MySQLStore) SumDeposits(ctx context.Context, userID int64, since time.Time) (float64, error) {
	var sum float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = ? AND amount > 0 AND timestamp >= ?`,
		userID, since.UTC()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum deposits: %w", err)
	}
	return sum, nil
}

func (s *MySQLStore) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.Transaction, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, description, item_ids, metadata, timestamp
		FROM transactions
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *MySQLStore) CustomDiscount(ctx context.Context, userID int64) (*float64, error) {
	var discount sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT custom_discount FROM users WHERE id = ?`, userID).Scan(&discount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get custom discount: %w", err)
	}
	if !discount.Valid {
		return nil, nil
	}
	return &discount.Float64, nil
}

func (s *MySQLStore) SetCustomDiscount(ctx context.Context, userID int64, discount *float64) error {
	var value sql.NullFloat64
	if discount != nil {
		value = sql.NullFloat64{Float64: *discount, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, custom_discount)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE custom_discount = VALUES(custom_discount)`,
		userID, value)
	if err != nil {
		return fmt.Errorf("failed to set custom discount: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Ensure MySQLStore implements Store
var _ Store = (*MySQLStore)(nil)
