package calls

import (
	"testing"
	"time"

	"github.com/sentinel-engine/pkg/models"
)

const token = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func ev(group, msg int64, ts time.Time) models.TelegramCallEvent {
	return models.TelegramCallEvent{
		Token:     token,
		GroupID:   group,
		GroupName: "alpha-group",
		MessageID: msg,
		Timestamp: ts,
	}
}

func TestRecordDedupes(t *testing.T) {
	idx := NewIndex(DefaultWindow)
	now := time.Now()

	if !idx.Record(ev(1, 100, now)) {
		t.Fatal("first record rejected")
	}
	// Scraper re-polls replay the same (token, group, message) triple.
	if idx.Record(ev(1, 100, now.Add(time.Minute))) {
		t.Error("duplicate triple accepted")
	}
	if !idx.Record(ev(1, 101, now)) {
		t.Error("new message in same group rejected")
	}
	if !idx.Record(ev(2, 100, now)) {
		t.Error("same message id in different group rejected")
	}
	if idx.Len() != 3 {
		t.Errorf("Len = %d, want 3", idx.Len())
	}
}

func TestMentionsWindow(t *testing.T) {
	clock := time.Now()
	idx := NewIndex(DefaultWindow)
	idx.now = func() time.Time { return clock }

	idx.Record(ev(1, 1, clock.Add(-30*time.Minute)))
	idx.Record(ev(2, 2, clock.Add(-3*time.Hour)))

	if got := len(idx.Mentions(token, time.Hour)); got != 1 {
		t.Errorf("mentions within 1h = %d, want 1", got)
	}
	// Zero and oversized windows clamp to the index window.
	if got := len(idx.Mentions(token, 0)); got != 2 {
		t.Errorf("mentions with clamped window = %d, want 2", got)
	}
	if got := len(idx.Mentions(token, 48*time.Hour)); got != 2 {
		t.Errorf("mentions with oversized window = %d, want 2", got)
	}
	if got := len(idx.Mentions("other", time.Hour)); got != 0 {
		t.Errorf("mentions for unknown token = %d", got)
	}
}

func TestActivityCountsDistinctGroups(t *testing.T) {
	now := time.Now()
	idx := NewIndex(DefaultWindow)

	idx.Record(ev(1, 1, now))
	idx.Record(ev(1, 2, now))
	idx.Record(ev(2, 3, now))

	groups, mentions := idx.Activity(token, time.Hour)
	if groups != 2 || mentions != 3 {
		t.Errorf("activity = %d groups / %d mentions, want 2/3", groups, mentions)
	}
}

func TestPruneDropsExpiredAndReopensDedupe(t *testing.T) {
	clock := time.Now()
	idx := NewIndex(DefaultWindow)
	idx.now = func() time.Time { return clock }

	old := ev(1, 1, clock.Add(-25*time.Hour))
	idx.Record(old)
	idx.Record(ev(2, 2, clock.Add(-time.Hour)))

	if dropped := idx.Prune(); dropped != 1 {
		t.Errorf("dropped %d, want 1", dropped)
	}
	if idx.Len() != 1 {
		t.Errorf("Len = %d, want 1", idx.Len())
	}
	// A pruned triple may legitimately be seen again next window.
	if !idx.Record(old) {
		t.Error("pruned triple still deduplicated")
	}
}
