package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/qugok/birthday-bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("state.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Recipients: map[int64]Recipient{},
		Ledger:     map[int64][]int{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, handle, blocked, next_eligible_at FROM recipients`)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r       Recipient
			blocked int
			rawNext string
		)
		if err := rows.Scan(&r.ID, &r.Profile.DisplayName, &r.Profile.Handle, &blocked, &rawNext); err != nil {
			return Snapshot{}, err
		}
		r.Blocked = blocked != 0
		r.NextEligibleAt, err = ParseTime(rawNext)
		if err != nil {
			return Snapshot{}, fmt.Errorf("recipient %d: %w", r.ID, err)
		}
		snap.Recipients[r.ID] = r
		snap.Ledger[r.ID] = []int{}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	lrows, err := s.db.QueryContext(ctx,
		`SELECT recipient_id, item_id FROM ledger ORDER BY recipient_id, item_id`)
	if err != nil {
		return Snapshot{}, err
	}
	defer lrows.Close()
	for lrows.Next() {
		var (
			id     int64
			itemID int
		)
		if err := lrows.Scan(&id, &itemID); err != nil {
			return Snapshot{}, err
		}
		snap.Ledger[id] = append(snap.Ledger[id], itemID)
	}
	return snap, lrows.Err()
}

func (s *sqliteStore) PutRecipient(ctx context.Context, r Recipient) error {
	blocked := 0
	if r.Blocked {
		blocked = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipients (id, display_name, handle, blocked, next_eligible_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			handle = excluded.handle,
			blocked = excluded.blocked,
			next_eligible_at = excluded.next_eligible_at`,
		r.ID, r.Profile.DisplayName, r.Profile.Handle, blocked, FormatTime(r.NextEligibleAt))
	return err
}

func (s *sqliteStore) RecordDelivery(ctx context.Context, r Recipient, itemID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger (recipient_id, item_id, sent_at) VALUES (?, ?, ?)`,
		r.ID, itemID, FormatTime(time.Now())); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE recipients SET next_eligible_at = ? WHERE id = ?`,
		FormatTime(r.NextEligibleAt), r.ID); err != nil {
		return err
	}
	return tx.Commit()
}
