// Package report logs a daily summary of the schedule (recipients, blocked,
// parked, deliveries) at a configured wall time.
package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/qugok/birthday-bot/internal/scheduler"
	"github.com/qugok/birthday-bot/internal/state"
	logx "github.com/qugok/birthday-bot/pkg/logx"
)

type Service struct {
	log   logx.Logger
	sched *scheduler.Service

	// mu guards c: Start arrives from the config-apply goroutine while Stop
	// runs on the shutdown path.
	mu sync.Mutex
	c  *cron.Cron
}

func New(sched *scheduler.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, sched: sched}
}

// Start schedules the daily report at the given "HH:MM" wall time in the
// bot's fixed timezone. Calling Start again replaces the schedule.
func (s *Service) Start(at string) error {
	hh, mm, err := scheduler.ParseHHMM(at)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(state.Location))
	spec := fmt.Sprintf("%d %d * * *", mm, hh)
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return err
	}
	c.Start()

	s.mu.Lock()
	prev := s.c
	s.c = c
	s.mu.Unlock()

	if prev != nil {
		<-prev.Stop().Done()
	}
	s.log.Info("daily report scheduled", logx.String("at", at))
	return nil
}

func (s *Service) run() {
	st := s.sched.Snapshot()
	s.log.Info("drip report",
		logx.Int("recipients", st.Recipients),
		logx.Int("blocked", st.Blocked),
		logx.Int("parked", st.Parked),
		logx.Int("due", st.Due),
		logx.Int("delivered_total", st.Delivered))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
