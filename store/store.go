// Package store persists finalized transactions in an embedded sqlite
// database keyed by transaction id.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/YangTianz/qianji-trans/qianji"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	time INTEGER NOT NULL,
	classify TEXT NOT NULL,
	type TEXT NOT NULL,
	cost REAL NOT NULL,
	acc_from TEXT NOT NULL,
	acc_to TEXT,
	remark TEXT,
	flag TEXT,
	pic TEXT,
	status INTEGER
);`

const upsertSQL = `
INSERT INTO transactions
	(id, time, classify, type, cost, acc_from, acc_to, remark, flag, pic, status)
VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	cost = excluded.cost,
	classify = excluded.classify,
	remark = excluded.remark`

// Store wraps the sqlite database holding all known transactions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the transactions table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// UpsertBatch writes transactions with the given lifecycle status inside a
// single database transaction. Existing rows keep their identity but take
// the new status, cost, classify and remark.
func (s *Store) UpsertBatch(ctx context.Context, transactions []*qianji.Transaction, status qianji.Status) error {
	if len(transactions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range transactions {
		_, err := stmt.ExecContext(ctx,
			t.ID, t.Time, t.Classify, string(t.Type), t.Cost.InexactFloat64(),
			t.AccountFrom, t.AccountTo, t.Remark, string(t.Flag), int(status),
		)
		if err != nil {
			return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// Load returns stored transactions keyed by id, newest first when iterated
// via LoadOrdered. Passing a status restricts the result to that lifecycle
// stage.
func (s *Store) Load(ctx context.Context, status ...qianji.Status) (map[string]*qianji.Transaction, error) {
	list, err := s.LoadOrdered(ctx, status...)
	if err != nil {
		return nil, err
	}
	ret := make(map[string]*qianji.Transaction, len(list))
	for _, t := range list {
		ret[t.ID] = t
	}
	return ret, nil
}

// LoadOrdered returns stored transactions ordered by time descending.
func (s *Store) LoadOrdered(ctx context.Context, status ...qianji.Status) ([]*qianji.Transaction, error) {
	query := `SELECT id, time, classify, type, cost, acc_from, acc_to, remark, flag, status
		FROM transactions`
	var args []any
	if len(status) > 0 {
		query += ` WHERE status = ?`
		args = append(args, int(status[0]))
	}
	query += ` ORDER BY time DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	defer rows.Close()

	var ret []*qianji.Transaction
	for rows.Next() {
		var (
			t        qianji.Transaction
			typ      string
			cost     float64
			accTo    sql.NullString
			remark   sql.NullString
			flag     sql.NullString
			rowState int
		)
		if err := rows.Scan(&t.ID, &t.Time, &t.Classify, &typ, &cost,
			&t.AccountFrom, &accTo, &remark, &flag, &rowState); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = qianji.TypeFromLabel(typ)
		t.Cost = decimal.NewFromFloat(cost).Round(2)
		t.AccountTo = accTo.String
		t.Remark = remark.String
		t.Flag = qianji.FlagFromLabel(flag.String)
		t.Status = qianji.Status(rowState)
		t.Extra = map[string]string{}
		ret = append(ret, &t)
	}
	return ret, rows.Err()
}
