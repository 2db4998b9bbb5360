package catalog

import (
	"math/rand"
	"sync"
	"time"
)

// Selector picks one item out of a non-empty eligible slice.
//
// The production selector is random; tests inject a deterministic one.
type Selector interface {
	Pick(now time.Time, eligible []Item) Item
}

// randomSelector picks uniformly at random, but items whose AvailableFrom
// is today exactly take precedence over the general backlog (so a dated
// item lands on its day and is not crowded out).
type randomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSelector returns the default selector. Seeding is not
// deterministic; reproducible tests should use their own Selector.
func NewRandomSelector() Selector {
	return &randomSelector{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *randomSelector) Pick(now time.Time, eligible []Item) Item {
	today := make([]Item, 0, len(eligible))
	for _, it := range eligible {
		if it.AvailableFrom != nil && it.AvailableFrom.SameDay(now) {
			today = append(today, it)
		}
	}
	pool := eligible
	if len(today) > 0 {
		pool = today
	}

	s.mu.Lock()
	i := s.rng.Intn(len(pool))
	s.mu.Unlock()
	return pool[i]
}
