package calls

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/models"
)

// DefaultWindow is how long a third-party group mention stays scoreable.
const DefaultWindow = 24 * time.Hour

// Index is the rolling in-memory view of third-party Telegram call activity,
// keyed by token address. Record is idempotent on (token, group, message id).
type Index struct {
	mu     sync.RWMutex
	window time.Duration
	byTok  map[string][]models.TelegramCallEvent
	seen   map[string]bool
	now    func() time.Time
}

func NewIndex(window time.Duration) *Index {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Index{
		window: window,
		byTok:  make(map[string][]models.TelegramCallEvent),
		seen:   make(map[string]bool),
		now:    time.Now,
	}
}

// Record appends a call event. Duplicate (token, group, message) triples are
// dropped so scraper re-polls and webhook retries cannot inflate scores.
func (i *Index) Record(ev models.TelegramCallEvent) bool {
	key := dedupeKey(ev)
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seen[key] {
		return false
	}
	i.seen[key] = true
	i.byTok[ev.Token] = append(i.byTok[ev.Token], ev)
	return true
}

// Mentions returns all mentions of the token younger than within.
func (i *Index) Mentions(token string, within time.Duration) []models.TelegramCallEvent {
	if within <= 0 || within > i.window {
		within = i.window
	}
	cutoff := i.now().Add(-within)

	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []models.TelegramCallEvent
	for _, ev := range i.byTok[token] {
		if ev.Timestamp.After(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

// Activity summarizes a token's call pressure for the scoring phase.
func (i *Index) Activity(token string, within time.Duration) (distinctGroups, totalMentions int) {
	mentions := i.Mentions(token, within)
	groups := make(map[int64]bool)
	for _, m := range mentions {
		groups[m.GroupID] = true
	}
	return len(groups), len(mentions)
}

// Prune drops events older than the window. Wired to a cron job.
func (i *Index) Prune() int {
	cutoff := i.now().Add(-i.window)
	i.mu.Lock()
	defer i.mu.Unlock()

	dropped := 0
	for tok, evs := range i.byTok {
		kept := evs[:0]
		for _, ev := range evs {
			if ev.Timestamp.After(cutoff) {
				kept = append(kept, ev)
			} else {
				delete(i.seen, dedupeKey(ev))
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(i.byTok, tok)
		} else {
			i.byTok[tok] = kept
		}
	}
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("call index pruned")
	}
	return dropped
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	total := 0
	for _, evs := range i.byTok {
		total += len(evs)
	}
	return total
}

func dedupeKey(ev models.TelegramCallEvent) string {
	return fmt.Sprintf("%s:%d:%d", ev.Token, ev.GroupID, ev.MessageID)
}
