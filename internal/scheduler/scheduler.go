package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/qugok/birthday-bot/internal/catalog"
	"github.com/qugok/birthday-bot/internal/state"
	"github.com/qugok/birthday-bot/internal/transport"
	logx "github.com/qugok/birthday-bot/pkg/logx"
)

// Service is the delivery scheduler. All state lives in the struct; there
// are no package-level singletons.
type Service struct {
	mu  sync.Mutex
	cfg Config

	log    logx.Logger
	cat    *catalog.Catalog
	sel    catalog.Selector
	store  state.Store
	sender transport.Sender

	limiter *rate.Limiter

	recipients map[int64]state.Recipient
	ledger     map[int64]map[int]bool

	// now is swapped by tests for a fake clock.
	now func() time.Time
}

func New(cfg Config, cat *catalog.Catalog, sel catalog.Selector, store state.Store, sender transport.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:        cfg,
		log:        log,
		cat:        cat,
		sel:        sel,
		store:      store,
		sender:     sender,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		recipients: map[int64]state.Recipient{},
		ledger:     map[int64]map[int]bool{},
		now:        time.Now,
	}
}

// SetSender installs the outbound transport. The scheduler and the adapter
// reference each other (the adapter registers recipients back into the
// scheduler), so the sender is wired after both exist and before Run.
func (s *Service) SetSender(t transport.Sender) {
	s.mu.Lock()
	s.sender = t
	s.mu.Unlock()
}

// Apply re-applies runtime tunables (poll/send intervals, rate, policy).
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	if cfg.RatePerSec != s.cfg.RatePerSec {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	s.cfg = cfg
	s.mu.Unlock()
}

// LoadState reads the durable state. It must succeed before Run or Register
// are used; a broken state file is fatal to startup.
func (s *Service) LoadState(ctx context.Context) error {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients = snap.Recipients
	if s.recipients == nil {
		s.recipients = map[int64]state.Recipient{}
	}
	s.ledger = map[int64]map[int]bool{}
	for id := range s.recipients {
		set := map[int]bool{}
		for _, itemID := range snap.Ledger[id] {
			set[itemID] = true
		}
		s.ledger[id] = set
	}
	s.log.Info("state loaded",
		logx.Int("recipients", len(s.recipients)),
		logx.Int("catalog_items", s.cat.Len()))
	return nil
}

// Register ensures the recipient exists in the schedule. Idempotent:
// repeated calls refresh profile metadata only and never touch the ledger
// or the next-eligible time.
func (s *Service) Register(ctx context.Context, id int64, profile state.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.recipients[id]; ok {
		s.log.Info("already registered", logx.Int64("recipient", id), logx.String("handle", profile.Handle))
		if r.Profile == profile {
			return false, nil
		}
		r.Profile = profile
		if err := s.store.PutRecipient(ctx, r); err != nil {
			return false, fmt.Errorf("persist profile: %w", err)
		}
		s.recipients[id] = r
		return false, nil
	}

	r := state.Recipient{
		ID:             id,
		Profile:        profile,
		NextEligibleAt: s.firstContactLocked(),
	}
	if err := s.store.PutRecipient(ctx, r); err != nil {
		return false, fmt.Errorf("persist registration: %w", err)
	}
	s.recipients[id] = r
	s.ledger[id] = map[int]bool{}
	s.log.Info("recipient registered",
		logx.Int64("recipient", id),
		logx.String("handle", profile.Handle),
		logx.Time("next_eligible_at", r.NextEligibleAt))
	return true, nil
}

// firstContactLocked computes the next-eligible time for a new recipient:
// MinTime ("already due") unless a first-contact wall time is configured.
func (s *Service) firstContactLocked() time.Time {
	hh, mm, err := ParseHHMM(s.cfg.FirstContact)
	if s.cfg.FirstContact == "" || err != nil {
		return state.MinTime
	}
	now := s.now().In(state.Location)
	at := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, state.Location)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	// The minimum interval is measured from NextEligibleAt; shift back so
	// the first send happens at the configured wall time.
	return at.Add(-s.cfg.MinSendInterval)
}

// Run is the poll loop: sleep in short increments, wake early when anyone
// is due, then run one due-scan. It returns when ctx is done.
func (s *Service) Run(ctx context.Context) error {
	const step = time.Second
	s.log.Info("scheduler started",
		logx.Duration("poll_interval", s.cfg.PollInterval),
		logx.Duration("min_send_interval", s.cfg.MinSendInterval))

	for {
		s.mu.Lock()
		poll := s.cfg.PollInterval
		s.mu.Unlock()

		deadline := s.now().Add(poll)
		for s.now().Before(deadline) && !s.anyDue() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step):
			}
		}

		if err := s.DueScan(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A persistence failure aborted the tick. State on disk is
			// behind by at most one mutation; retry on the next tick.
			s.log.Error("due-scan aborted", logx.Err(err))
		}
	}
}

func (s *Service) anyDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, r := range s.recipients {
		if s.dueLocked(r, now) {
			return true
		}
	}
	return false
}

func (s *Service) dueLocked(r state.Recipient, now time.Time) bool {
	if r.Blocked || state.IsNever(r.NextEligibleAt) {
		return false
	}
	return !now.Before(r.NextEligibleAt.Add(s.cfg.MinSendInterval))
}

// DueScan performs one pass over all recipients and attempts one delivery
// for each due one. The state lock is held for the whole batch, so two
// scans can never overlap sends to the same recipient.
func (s *Service) DueScan(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, r := range s.recipients {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.dueLocked(r, now) {
			continue
		}
		if err := s.attemptLocked(ctx, r); err != nil {
			return fmt.Errorf("recipient %d: %w", id, err)
		}
	}
	return nil
}

// attemptLocked runs one delivery attempt. It returns an error only for
// persistence failures: those must abort the tick rather than leave memory
// ahead of the durable copy.
func (s *Service) attemptLocked(ctx context.Context, r state.Recipient) error {
	now := s.now()

	item := s.cat.SelectFor(s.sel, now, s.ledger[r.ID])
	if item == nil {
		return s.markExhaustedLocked(ctx, r, now)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil // shutting down; nothing mutated
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	sendErr := s.sender.Send(sctx, r.ID, *item)
	cancel()

	switch s.sender.Classify(sendErr) {
	case transport.Delivered:
		r.NextEligibleAt = now
		// Ledger commit happens only after the confirmed send. A crash
		// between the confirm and this write can re-send one item after
		// restart; accepted at-least-once risk.
		if err := s.store.RecordDelivery(ctx, r, item.ID); err != nil {
			return fmt.Errorf("persist delivery of item %d: %w", item.ID, err)
		}
		s.recipients[r.ID] = r
		if s.ledger[r.ID] == nil {
			s.ledger[r.ID] = map[int]bool{}
		}
		s.ledger[r.ID][item.ID] = true
		s.log.Info("delivered",
			logx.Int64("recipient", r.ID),
			logx.Int("item", item.ID),
			logx.Int("sent_total", len(s.ledger[r.ID])))
		return nil

	case transport.PermanentFailure:
		r.Blocked = true
		r.NextEligibleAt = state.Never
		if err := s.store.PutRecipient(ctx, r); err != nil {
			return fmt.Errorf("persist block: %w", err)
		}
		s.recipients[r.ID] = r
		s.log.Error("recipient blocked (access revoked)",
			logx.Int64("recipient", r.ID),
			logx.String("display_name", r.Profile.DisplayName),
			logx.String("handle", r.Profile.Handle),
			logx.Err(sendErr))
		return nil

	default: // transient
		// Nothing mutated; the normal cadence retries on the next tick.
		s.log.Warn("delivery failed, will retry",
			logx.Int64("recipient", r.ID),
			logx.Int("item", item.ID),
			logx.Err(sendErr))
		return nil
	}
}

func (s *Service) markExhaustedLocked(ctx context.Context, r state.Recipient, now time.Time) error {
	switch s.cfg.ExhaustPolicy {
	case ExhaustNever:
		r.NextEligibleAt = state.Never
	default:
		r.NextEligibleAt = now
	}
	if err := s.store.PutRecipient(ctx, r); err != nil {
		return fmt.Errorf("persist exhaustion: %w", err)
	}
	s.recipients[r.ID] = r
	s.log.Info("catalog exhausted for recipient",
		logx.Int64("recipient", r.ID),
		logx.Int("sent_total", len(s.ledger[r.ID])),
		logx.String("policy", string(s.cfg.ExhaustPolicy)))
	return nil
}

// Snapshot returns schedule counters for reporting.
func (s *Service) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := Stats{Recipients: len(s.recipients)}
	for _, r := range s.recipients {
		switch {
		case r.Blocked:
			st.Blocked++
		case state.IsNever(r.NextEligibleAt):
			st.Parked++
		case s.dueLocked(r, now):
			st.Due++
		}
	}
	for _, set := range s.ledger {
		st.Delivered += len(set)
	}
	return st
}
