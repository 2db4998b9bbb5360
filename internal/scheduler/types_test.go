package scheduler

import "testing"

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		hh, mm  int
		wantErr bool
	}{
		{in: "00:00"},
		{in: "9:05", hh: 9, mm: 5},
		{in: "23:59", hh: 23, mm: 59},
		{in: " 12:30 ", hh: 12, mm: 30},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		hh, mm, err := ParseHHMM(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHHMM(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHHMM(%q): %v", tc.in, err)
			continue
		}
		if hh != tc.hh || mm != tc.mm {
			t.Errorf("ParseHHMM(%q) = %d:%d, want %d:%d", tc.in, hh, mm, tc.hh, tc.mm)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	var c Config
	got := c.withDefaults()
	if got.PollInterval <= 0 || got.MinSendInterval <= 0 || got.SendTimeout <= 0 {
		t.Fatalf("defaults missing: %+v", got)
	}
	if got.RatePerSec <= 0 {
		t.Fatalf("RatePerSec default missing: %+v", got)
	}
	if got.ExhaustPolicy != ExhaustIdle {
		t.Fatalf("ExhaustPolicy = %q, want %q", got.ExhaustPolicy, ExhaustIdle)
	}
}
