package narrative

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sentinel-engine/pkg/models"
)

func snapshotWith(topics ...models.NarrativeTopic) models.NarrativeSnapshot {
	return models.NarrativeSnapshot{Topics: topics}
}

func TestReloadMissingFileIsNotAnError(t *testing.T) {
	idx := NewIndex(filepath.Join(t.TempDir(), "absent.json"))
	if err := idx.Reload(); err != nil {
		t.Fatalf("Reload on missing file: %v", err)
	}
	if len(idx.Topics()) != 0 {
		t.Errorf("topics = %v, want empty", idx.Topics())
	}
}

func TestReloadParsesSnapshotAndDefaultsMultiplier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narratives.json")
	data := `{"generated_at":"2026-08-20T12:00:00Z","topics":[
		{"id":"dogs","keywords":["dog","wif"],"multiplier":1.5},
		{"id":"ai","keywords":["agent","gpt"]}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	idx := NewIndex(path)
	if err := idx.Reload(); err != nil {
		t.Fatal(err)
	}
	topics := idx.Topics()
	if len(topics) != 2 {
		t.Fatalf("topics = %d, want 2", len(topics))
	}
	if topics[0].Multiplier != 1.5 {
		t.Errorf("multiplier = %v", topics[0].Multiplier)
	}
	// Absent multiplier defaults to neutral, never zeroes a match.
	if topics[1].Multiplier != 1.0 {
		t.Errorf("default multiplier = %v, want 1.0", topics[1].Multiplier)
	}
}

func TestReloadRejectsMalformedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narratives.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewIndex(path).Reload(); err == nil {
		t.Error("malformed snapshot accepted")
	}
}

func TestMatchWeightsAndCaps(t *testing.T) {
	idx := NewIndex("")
	idx.Swap(snapshotWith(models.NarrativeTopic{
		ID:         "dogs",
		Keywords:   []string{"dog", "wif"},
		Multiplier: 1.5,
	}))

	// Single symbol hit: 12 base * 1.5.
	m := idx.Match("WIF", "some coin", "")
	if m.TopicID != "dogs" || m.Score != 18 {
		t.Errorf("symbol hit = %+v, want dogs/18", m)
	}
	if !strings.Contains(m.Reason, "dogs") {
		t.Errorf("reason = %q", m.Reason)
	}

	// Name hit is weaker than symbol: 8 * 1.5.
	if m := idx.Match("XYZ", "dog coin", ""); m.Score != 12 {
		t.Errorf("name hit score = %v, want 12", m.Score)
	}

	// Description is the weakest tier: 4 * 1.5.
	if m := idx.Match("XYZ", "coin", "the dog of all coins"); m.Score != 6 {
		t.Errorf("desc hit score = %v, want 6", m.Score)
	}

	// Two symbol hits sum to 24, base caps at 20, then 20*1.5 caps at 25.
	if m := idx.Match("dogwif", "", ""); m.Score != 25 {
		t.Errorf("capped score = %v, want 25", m.Score)
	}
}

func TestMatchPicksBestTopic(t *testing.T) {
	idx := NewIndex("")
	idx.Swap(snapshotWith(
		models.NarrativeTopic{ID: "dogs", Keywords: []string{"dog"}, Multiplier: 1.0},
		models.NarrativeTopic{ID: "ai", Keywords: []string{"agent"}, Multiplier: 1.3},
	))

	m := idx.Match("AGENT", "dog agent", "")
	if m.TopicID != "ai" {
		t.Errorf("best topic = %q, want ai", m.TopicID)
	}
}

func TestMatchEmptySnapshot(t *testing.T) {
	idx := NewIndex("")
	if m := idx.Match("WIF", "dogwifhat", "dog"); m.Score != 0 || m.TopicID != "" {
		t.Errorf("match on empty snapshot = %+v", m)
	}
}

func TestMatchNoKeywordHit(t *testing.T) {
	idx := NewIndex("")
	idx.Swap(snapshotWith(models.NarrativeTopic{ID: "dogs", Keywords: []string{"dog"}, Multiplier: 1.5}))
	if m := idx.Match("PEPE", "frog coin", "ribbit"); m.Score != 0 {
		t.Errorf("unrelated token matched: %+v", m)
	}
}
