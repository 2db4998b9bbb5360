// Package catalog holds the content items the bot drips to recipients and
// the selection rules (availability dates, no repeats, random pick).
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/qugok/birthday-bot/internal/state"
)

// Item is one unit of deliverable content. Items are immutable once loaded;
// the catalog is reloaded fresh on every process start.
type Item struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	// MediaRef is an opaque media handle: a local file path or a
	// provider-side file id. Empty means text-only.
	MediaRef string `json:"media,omitempty"`
	// AvailableFrom gates the item until the given calendar date.
	AvailableFrom *Date `json:"available_from,omitempty"`
}

// Date is a calendar date in the bot's fixed timezone, persisted as
// "2006-01-02".
type Date struct {
	t time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, state.Location)}
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// SameDay reports whether now falls on this exact date.
func (d Date) SameDay(now time.Time) bool {
	y1, m1, d1 := d.t.Date()
	y2, m2, d2 := now.In(state.Location).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Reached reports whether the date is on or before now's calendar date.
func (d Date) Reached(now time.Time) bool {
	y, m, day := now.In(state.Location).Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, state.Location)
	return !d.t.After(today)
}

func (d Date) String() string { return d.t.Format(dateLayout) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), state.Location)
	if err != nil {
		return fmt.Errorf("bad date %q: %w", s, err)
	}
	d.t = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Catalog is the immutable-per-run content pool.
type Catalog struct {
	items []Item
	byID  map[int]Item
}

// Load reads the catalog document (a JSON list of items) and validates it.
// A missing or invalid catalog is fatal to startup: the bot must not run
// with a partial content pool.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(items)
}

// New builds a catalog from already-decoded items.
func New(items []Item) (*Catalog, error) {
	byID := make(map[int]Item, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.Text) == "" && strings.TrimSpace(it.MediaRef) == "" {
			return nil, fmt.Errorf("catalog item #%d (id=%d): empty text and media", i, it.ID)
		}
		if _, dup := byID[it.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate item id %d", it.ID)
		}
		byID[it.ID] = it
	}
	return &Catalog{items: append([]Item(nil), items...), byID: byID}, nil
}

// Len reports the total number of items.
func (c *Catalog) Len() int { return len(c.items) }

// Eligible returns the items available at now and not yet in seen.
func (c *Catalog) Eligible(now time.Time, seen map[int]bool) []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if seen[it.ID] {
			continue
		}
		if it.AvailableFrom != nil && !it.AvailableFrom.Reached(now) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// SelectFor picks the next item to deliver to a recipient, or nil when the
// catalog is exhausted for it. Exhaustion is a signal, not an error.
func (c *Catalog) SelectFor(sel Selector, now time.Time, seen map[int]bool) *Item {
	eligible := c.Eligible(now, seen)
	if len(eligible) == 0 {
		return nil
	}
	it := sel.Pick(now, eligible)
	return &it
}
