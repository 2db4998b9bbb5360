package state

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "github.com/qugok/birthday-bot/pkg/logx"
)

// Store is the persistence API used by the scheduler.
//
// Every method that mutates state must make the mutation durable before
// returning; an error means the durable copy was NOT updated and the caller
// must not act as if it was.
type Store interface {
	// Load reads the full state. Absent backing files mean a fresh install
	// (empty snapshot); unreadable or corrupt files are an error.
	Load(ctx context.Context) (Snapshot, error)

	// PutRecipient upserts one registry entry (registration, profile
	// refresh, block, exhaustion reschedule) and guarantees a ledger entry
	// exists for it.
	PutRecipient(ctx context.Context, r Recipient) error

	// RecordDelivery appends itemID to the recipient's ledger and stores
	// the updated registry entry. The ledger commit is durable first, so a
	// crash in between can delay but never repeat an item.
	RecordDelivery(ctx context.Context, r Recipient, itemID int) error

	Close() error
}

// Config configures the state store.
//
// Driver values:
//   - "file" (default): three JSON documents under Path, replaced atomically
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + driver)
	}
}
