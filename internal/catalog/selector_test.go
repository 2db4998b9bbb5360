package catalog

import (
	"testing"
	"time"

	"github.com/qugok/birthday-bot/internal/state"
)

// lowestSelector deterministically picks the eligible item with the lowest ID.
type lowestSelector struct{}

func (lowestSelector) Pick(_ time.Time, eligible []Item) Item {
	best := eligible[0]
	for _, it := range eligible[1:] {
		if it.ID < best.ID {
			best = it
		}
	}
	return best
}

func date(y int, m time.Month, d int) *Date {
	dd := NewDate(y, m, d)
	return &dd
}

func TestEligibleFiltersSeenAndFutureDates(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, state.Location)

	c, err := New([]Item{
		{ID: 1, Text: "A"},
		{ID: 2, Text: "B", AvailableFrom: date(2099, time.January, 1)},
		{ID: 3, Text: "C", AvailableFrom: date(2026, time.May, 1)},
		{ID: 4, Text: "D", AvailableFrom: date(2026, time.April, 30)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := c.Eligible(now, map[int]bool{4: true})
	ids := map[int]bool{}
	for _, it := range got {
		ids[it.ID] = true
	}
	if len(got) != 2 || !ids[1] || !ids[3] {
		t.Fatalf("Eligible = %v, want items 1 and 3", ids)
	}
}

func TestSelectForExhaustion(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, state.Location)

	c, err := New([]Item{
		{ID: 1, Text: "A"},
		{ID: 2, Text: "B", AvailableFrom: date(2099, time.January, 1)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if it := c.SelectFor(lowestSelector{}, now, map[int]bool{1: true}); it != nil {
		t.Fatalf("SelectFor = %+v, want nil (exhausted)", it)
	}
}

func TestSelectForNeverRepeats(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, state.Location)

	c, err := New([]Item{{ID: 1, Text: "A"}, {ID: 2, Text: "B"}, {ID: 3, Text: "C"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := map[int]bool{}
	sel := NewRandomSelector()
	for i := 0; i < c.Len(); i++ {
		it := c.SelectFor(sel, now, seen)
		if it == nil {
			t.Fatalf("exhausted after %d picks, want %d", i, c.Len())
		}
		if seen[it.ID] {
			t.Fatalf("item %d selected twice", it.ID)
		}
		seen[it.ID] = true
	}
	if it := c.SelectFor(sel, now, seen); it != nil {
		t.Fatalf("SelectFor after full drain = %+v, want nil", it)
	}
}

func TestRandomSelectorPrefersTodayItems(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, state.Location)

	items := []Item{
		{ID: 1, Text: "backlog"},
		{ID: 2, Text: "today", AvailableFrom: date(2026, time.May, 1)},
		{ID: 3, Text: "older", AvailableFrom: date(2026, time.April, 1)},
	}
	sel := NewRandomSelector()
	for i := 0; i < 20; i++ {
		it := sel.Pick(now, items)
		if it.ID != 2 {
			t.Fatalf("Pick = item %d, want today-dated item 2", it.ID)
		}
	}
}

func TestCatalogValidation(t *testing.T) {
	t.Parallel()
	if _, err := New([]Item{{ID: 1, Text: "A"}, {ID: 1, Text: "B"}}); err == nil {
		t.Fatal("expected error for duplicate ids")
	}
	if _, err := New([]Item{{ID: 1}}); err == nil {
		t.Fatal("expected error for empty item")
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	t.Parallel()
	var d Date
	if err := d.UnmarshalJSON([]byte(`"2026-05-01"`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if d.String() != "2026-05-01" {
		t.Fatalf("String = %s", d.String())
	}
	now := time.Date(2026, time.May, 1, 23, 59, 0, 0, state.Location)
	if !d.SameDay(now) || !d.Reached(now) {
		t.Fatal("expected SameDay and Reached for the same date")
	}
	if d.Reached(now.AddDate(0, 0, -1)) {
		t.Fatal("Reached should be false the day before")
	}
}
