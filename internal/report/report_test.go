package report

import (
	"context"
	"sync"
	"testing"

	logx "github.com/qugok/birthday-bot/pkg/logx"
)

func TestStartRejectsBadWallTime(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())
	if err := s.Start("24:99"); err == nil {
		t.Fatal("expected error for invalid wall time")
	}
	// Nothing was scheduled, Stop must be a no-op.
	s.Stop(context.Background())
}

func TestStartReplacesSchedule(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())
	if err := s.Start("10:00"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start("11:00"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop(context.Background())
}

// Start comes from the config-apply goroutine while Stop runs on shutdown;
// the two must be safe to interleave (run with -race).
func TestStartStopConcurrent(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = s.Start("23:59")
				s.Stop(context.Background())
			}
		}()
	}
	wg.Wait()
	s.Stop(context.Background())
}
