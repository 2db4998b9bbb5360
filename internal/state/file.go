package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	logx "github.com/qugok/birthday-bot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files under the configured directory:
//   - recipients.json (id -> {profile, blocked})
//   - schedule.json   (id -> next-eligible timestamp)
//   - ledger.json     (id -> delivered item ids)
//
// Every write replaces the whole document via rename of a fresh temp file,
// never by rewriting in place, so a crashed write leaves the previous copy
// intact.
type fileStore struct {
	log logx.Logger
	dir string

	mu sync.Mutex

	// Mirrors of the on-disk documents, mutated before each write.
	recipients map[string]recipientDoc
	schedule   map[string]string
	ledger     map[string][]int
}

type recipientDoc struct {
	DisplayName string `json:"display_name,omitempty"`
	Handle      string `json:"handle,omitempty"`
	Blocked     bool   `json:"blocked,omitempty"`
}

const (
	recipientsFile = "recipients.json"
	scheduleFile   = "schedule.json"
	ledgerFile     = "ledger.json"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("state.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{
		log:        log,
		dir:        dir,
		recipients: map[string]recipientDoc{},
		schedule:   map[string]string{},
		ledger:     map[string][]int{},
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := loadJSON(filepath.Join(s.dir, recipientsFile), &s.recipients); err != nil {
		return Snapshot{}, fmt.Errorf("load %s: %w", recipientsFile, err)
	}
	if err := loadJSON(filepath.Join(s.dir, scheduleFile), &s.schedule); err != nil {
		return Snapshot{}, fmt.Errorf("load %s: %w", scheduleFile, err)
	}
	if err := loadJSON(filepath.Join(s.dir, ledgerFile), &s.ledger); err != nil {
		return Snapshot{}, fmt.Errorf("load %s: %w", ledgerFile, err)
	}

	snap := Snapshot{
		Recipients: map[int64]Recipient{},
		Ledger:     map[int64][]int{},
	}

	// Registry keys are the union of the schedule and profile documents:
	// older deployments only wrote the schedule file.
	for key := range s.schedule {
		if _, ok := s.recipients[key]; !ok {
			s.recipients[key] = recipientDoc{}
		}
	}
	for key, doc := range s.recipients {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%s: bad recipient id %q", recipientsFile, key)
		}
		next := MinTime
		if raw, ok := s.schedule[key]; ok {
			next, err = ParseTime(raw)
			if err != nil {
				return Snapshot{}, fmt.Errorf("%s: recipient %s: %w", scheduleFile, key, err)
			}
		}
		snap.Recipients[id] = Recipient{
			ID:             id,
			Profile:        Profile{DisplayName: doc.DisplayName, Handle: doc.Handle},
			Blocked:        doc.Blocked,
			NextEligibleAt: next,
		}
		snap.Ledger[id] = append([]int{}, s.ledger[key]...)
	}
	return snap, nil
}

func (s *fileStore) PutRecipient(_ context.Context, r Recipient) error {
	key := strconv.FormatInt(r.ID, 10)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recipients[key] = recipientDoc{
		DisplayName: r.Profile.DisplayName,
		Handle:      r.Profile.Handle,
		Blocked:     r.Blocked,
	}
	s.schedule[key] = FormatTime(r.NextEligibleAt)
	_, hadLedger := s.ledger[key]
	if !hadLedger {
		s.ledger[key] = []int{}
	}

	if err := s.writeDoc(recipientsFile, s.recipients); err != nil {
		return err
	}
	if !hadLedger {
		if err := s.writeDoc(ledgerFile, s.ledger); err != nil {
			return err
		}
	}
	return s.writeDoc(scheduleFile, s.schedule)
}

func (s *fileStore) RecordDelivery(_ context.Context, r Recipient, itemID int) error {
	key := strconv.FormatInt(r.ID, 10)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !containsInt(s.ledger[key], itemID) {
		s.ledger[key] = append(s.ledger[key], itemID)
	}
	s.schedule[key] = FormatTime(r.NextEligibleAt)

	// Ledger first: a crash between the two writes delays the next send
	// instead of repeating this item.
	if err := s.writeDoc(ledgerFile, s.ledger); err != nil {
		return err
	}
	return s.writeDoc(scheduleFile, s.schedule)
}

func (s *fileStore) writeDoc(name string, v any) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func loadJSON(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
