package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// UpsertTransactions inserts or replaces transactions by id inside a single
// database transaction. Transactions without an id get a random one.
func (r *SQLiteRepository) UpsertTransactions(ctx context.Context, txs []core.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PrepareContext(ctx, `
		INSERT INTO transactions (id, user_id, date, category, description, amount, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			date = excluded.date,
			category = excluded.category,
			description = excluded.description,
			amount = excluded.amount,
			type = excluded.type,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeLayout)
	for i, t := range txs {
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", i, err)
		}
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, t.UserID, t.Date.Format(dateLayout), t.Category,
			t.Description, t.Amount.String(), string(t.Type), now, now); err != nil {
			return 0, fmt.Errorf("upsert transaction %s: %w", id, err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}

	slog.DebugContext(ctx, "Transactions upserted", "count", len(txs))
	return len(txs), nil
}

// ListTransactions implements sheets.TransactionSource.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, date, category, description, amount, type
		FROM transactions
		WHERE user_id = ?
		ORDER BY date, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t              core.Transaction
			date, amt, typ string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &date, &t.Category, &t.Description, &amt, &typ); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: parse date %q: %w", t.ID, date, err)
		}
		t.Date = core.Date{Time: d}
		if t.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("transaction %s: parse amount %q: %w", t.ID, amt, err)
		}
		t.Type = core.TransactionType(typ)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// DeleteTransactionsNotIn removes the user's transactions whose ids are not in
// keep. Importers use it to mirror rows deleted from the source.
func (r *SQLiteRepository) DeleteTransactionsNotIn(ctx context.Context, userID string, keep []string) (int, error) {
	query := `DELETE FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale transactions: %w", err)
	}
	return int(n), nil
}
