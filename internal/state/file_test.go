package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/qugok/birthday-bot/pkg/logx"
)

func openTestStore(t *testing.T) (Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st, dir
}

func TestFileStoreFreshInstallIsEmpty(t *testing.T) {
	t.Parallel()
	st, _ := openTestStore(t)
	snap, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Recipients) != 0 || len(snap.Ledger) != 0 {
		t.Fatalf("fresh install not empty: %+v", snap)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st, dir := openTestStore(t)
	ctx := context.Background()
	if _, err := st.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	at := time.Date(2026, time.May, 1, 12, 30, 45, 0, Location)
	r := Recipient{
		ID:             42,
		Profile:        Profile{DisplayName: "Tanya", Handle: "tanya"},
		NextEligibleAt: MinTime,
	}
	if err := st.PutRecipient(ctx, r); err != nil {
		t.Fatalf("PutRecipient: %v", err)
	}
	r.NextEligibleAt = at
	if err := st.RecordDelivery(ctx, r, 7); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	r.NextEligibleAt = at.Add(time.Hour)
	if err := st.RecordDelivery(ctx, r, 9); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	// Reopen from disk and compare.
	st2, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap, err := st2.Load(ctx)
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	got, ok := snap.Recipients[42]
	if !ok {
		t.Fatal("recipient 42 missing after reload")
	}
	if got.Profile != r.Profile || got.Blocked {
		t.Fatalf("recipient = %+v, want %+v", got, r)
	}
	if !got.NextEligibleAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("NextEligibleAt = %v, want %v", got.NextEligibleAt, at.Add(time.Hour))
	}
	if l := snap.Ledger[42]; len(l) != 2 || l[0] != 7 || l[1] != 9 {
		t.Fatalf("ledger = %v, want [7 9]", l)
	}
}

func TestFileStoreDeliveryIsIdempotentPerItem(t *testing.T) {
	t.Parallel()
	st, _ := openTestStore(t)
	ctx := context.Background()

	r := Recipient{ID: 1, NextEligibleAt: MinTime}
	if err := st.PutRecipient(ctx, r); err != nil {
		t.Fatalf("PutRecipient: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := st.RecordDelivery(ctx, r, 5); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
	}
	snap, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l := snap.Ledger[1]; len(l) != 1 || l[0] != 5 {
		t.Fatalf("ledger = %v, want [5]", l)
	}
}

func TestFileStoreSentinelsSurviveReload(t *testing.T) {
	t.Parallel()
	st, dir := openTestStore(t)
	ctx := context.Background()

	if err := st.PutRecipient(ctx, Recipient{ID: 1, NextEligibleAt: MinTime}); err != nil {
		t.Fatalf("PutRecipient: %v", err)
	}
	if err := st.PutRecipient(ctx, Recipient{ID: 2, Blocked: true, NextEligibleAt: Never}); err != nil {
		t.Fatalf("PutRecipient: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap, err := st2.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !snap.Recipients[1].NextEligibleAt.Equal(MinTime) {
		t.Fatalf("MinTime did not round-trip: %v", snap.Recipients[1].NextEligibleAt)
	}
	if !IsNever(snap.Recipients[2].NextEligibleAt) || !snap.Recipients[2].Blocked {
		t.Fatalf("Never/blocked did not round-trip: %+v", snap.Recipients[2])
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	st, dir := openTestStore(t)
	ctx := context.Background()

	r := Recipient{ID: 1, NextEligibleAt: MinTime}
	if err := st.PutRecipient(ctx, r); err != nil {
		t.Fatalf("PutRecipient: %v", err)
	}
	if err := st.RecordDelivery(ctx, r, 1); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreCorruptFileFailsLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, scheduleFile), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := st.Load(context.Background()); err == nil {
		t.Fatal("expected error loading corrupt schedule file")
	}
}

func TestFileStoreLegacyScheduleOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Older deployments only wrote the schedule document.
	if err := os.WriteFile(filepath.Join(dir, scheduleFile),
		[]byte(`{"99": "2024-03-01T10:00:00"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r, ok := snap.Recipients[99]
	if !ok {
		t.Fatal("legacy recipient missing")
	}
	want := time.Date(2024, time.March, 1, 10, 0, 0, 0, Location)
	if !r.NextEligibleAt.Equal(want) {
		t.Fatalf("NextEligibleAt = %v, want %v", r.NextEligibleAt, want)
	}
	if snap.Ledger[99] == nil {
		t.Fatal("legacy recipient must get an empty ledger entry")
	}
}

func TestTimeFormatFixedOffset(t *testing.T) {
	t.Parallel()
	// A UTC instant must render in the fixed +3 offset.
	utc := time.Date(2026, time.January, 2, 9, 0, 0, 0, time.UTC)
	if got := FormatTime(utc); got != "2026-01-02T12:00:00" {
		t.Fatalf("FormatTime = %s", got)
	}
	back, err := ParseTime("2026-01-02T12:00:00")
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !back.Equal(utc) {
		t.Fatalf("round-trip mismatch: %v != %v", back, utc)
	}
}
