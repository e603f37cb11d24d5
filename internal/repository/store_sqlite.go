package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"mailseller-api/internal/model"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store using SQLite. The default durable store
// for single-node deployments; WAL mode keeps reads concurrent while
// the mutex serializes the one writer SQLite allows.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logrus.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string, log *logrus.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Infof("[SQLiteStore] Initialized with database: %s", dbPath)
	return &SQLiteStore{db: db, log: log}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS user_credit (
		user_id INTEGER PRIMARY KEY,
		credits REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS user_token (
		user_id INTEGER PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		amount REAL NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		item_ids TEXT,
		metadata TEXT,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tx_user_time ON transactions(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_tx_type ON transactions(type);
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		custom_discount REAL
	);
	`
	_, err := db.Exec(query)
	return err
}

// GetBalance returns the persisted balance, 0 if the user has none.
func (s *SQLiteStore) GetBalance(ctx context.Context, userID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

// UpsertBalances writes a batch of balances in a single commit.
func (s *SQLiteStore) UpsertBalances(ctx context.Context, balances map[int64]float64) error {
	if len(balances) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_credit (user_id, credits, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			credits = excluded.credits,
			updated_at = excluded.updated_at`)
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

// AllBalances loads every persisted balance.
func (s *SQLiteStore) AllBalances(ctx context.Context) (map[int64]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

// GetToken returns the persisted token for a user, "" if none.
func (s *SQLiteStore) GetToken(ctx context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

// UpsertTokens writes a batch of token mappings in a single commit.
func (s *SQLiteStore) UpsertTokens(ctx context.Context, tokens map[int64]string) error {
	if len(tokens) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_token (user_id, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at`)
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

// AllTokens loads every persisted token mapping.
func (s *SQLiteStore) AllTokens(ctx context.Context) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

// InsertTransactions appends a batch of records in a single commit.
func (s *SQLiteStore) InsertTransactions(ctx context.Context, txs []model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

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

// DeleteTransactionsOlderThan prunes records of one type past the age.
func (s *SQLiteStore) DeleteTransactionsOlderThan(ctx context.Context, txType string, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-age)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE type = ? AND timestamp < ?`, txType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old transactions: %w", err)
	}
	return result.RowsAffected()
}

// SumDeposits sums positive amounts for a user since the given instant.
func (s *SQLiteStore) SumDeposits(ctx context.Context, userID int64, since time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

// ListTransactions returns a user's records newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

// CustomDiscount returns the per-user discount override, nil if unset.
func (s *SQLiteStore) CustomDiscount(ctx context.Context, userID int64) (*float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

// SetCustomDiscount sets or clears (nil) the override.
func (s *SQLiteStore) SetCustomDiscount(ctx context.Context, userID int64, discount *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value sql.NullFloat64
	if discount != nil {
		value = sql.NullFloat64{Float64: *discount, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, custom_discount)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET custom_discount = excluded.custom_discount`,
		userID, value)
	if err != nil {
		return fmt.Errorf("failed to set custom discount: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanTransaction reads one transactions row from either backend.
func scanTransaction(rows *sql.Rows) (model.Transaction, error) {
	var t model.Transaction
	var description, itemIDs, metadata sql.NullString
	if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type,
		&description, &itemIDs, &metadata, &t.Timestamp); err != nil {
		return t, fmt.Errorf("failed to scan transaction row: %w", err)
	}
	t.Description = description.String
	t.Metadata = metadata.String
	if itemIDs.String != "" {
		t.ItemIDs = strings.Split(itemIDs.String, ",")
	}
	return t, nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
