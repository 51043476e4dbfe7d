package narrative

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/models"
)

// Matching weights. A symbol hit is the strongest evidence, then name, then
// description; the summed base strength is capped at 20 before the momentum
// multiplier and the final cap at 25.
const (
	symbolHitPoints = 12.0
	nameHitPoints   = 8.0
	descHitPoints   = 4.0
	baseCap         = 20.0
	matchCap        = 25.0
)

// Index exposes the currently-hot narrative clusters. The snapshot file is
// produced by the offline trainer; Reload swaps it in atomically so readers
// never block or see a torn snapshot.
type Index struct {
	path string
	snap atomic.Pointer[models.NarrativeSnapshot]
}

func NewIndex(path string) *Index {
	idx := &Index{path: path}
	idx.snap.Store(&models.NarrativeSnapshot{})
	return idx
}

// Reload reads the snapshot file and swaps it in. A missing file is not an
// error; the trainer may simply not have produced one yet.
func (i *Index) Reload() error {
	data, err := os.ReadFile(i.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read narrative snapshot: %w", err)
	}

	var snap models.NarrativeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode narrative snapshot: %w", err)
	}
	for idx := range snap.Topics {
		if snap.Topics[idx].Multiplier == 0 {
			snap.Topics[idx].Multiplier = 1.0
		}
	}

	i.snap.Store(&snap)
	log.Info().Int("topics", len(snap.Topics)).Time("generated", snap.GeneratedAt).
		Msg("🗞️ narrative snapshot reloaded")
	return nil
}

// Swap installs a snapshot directly (realtime refresh path and tests).
func (i *Index) Swap(snap models.NarrativeSnapshot) {
	for idx := range snap.Topics {
		if snap.Topics[idx].Multiplier == 0 {
			snap.Topics[idx].Multiplier = 1.0
		}
	}
	i.snap.Store(&snap)
}

func (i *Index) Topics() []models.NarrativeTopic {
	return i.snap.Load().Topics
}

// Match scores a token against the hot narratives. The best-scoring topic
// wins; base strength (0-20) times the topic momentum, capped at 25.
func (i *Index) Match(symbol, name, description string) models.NarrativeMatch {
	topics := i.snap.Load().Topics
	if len(topics) == 0 {
		return models.NarrativeMatch{}
	}

	symbol = strings.ToLower(symbol)
	name = strings.ToLower(name)
	description = strings.ToLower(description)

	var best models.NarrativeMatch
	for _, topic := range topics {
		base, hits := 0.0, []string{}
		for _, kw := range topic.Keywords {
			kw = strings.ToLower(kw)
			if kw == "" {
				continue
			}
			switch {
			case strings.Contains(symbol, kw):
				base += symbolHitPoints
				hits = append(hits, kw+"(symbol)")
			case strings.Contains(name, kw):
				base += nameHitPoints
				hits = append(hits, kw+"(name)")
			case strings.Contains(description, kw):
				base += descHitPoints
				hits = append(hits, kw+"(desc)")
			}
		}
		if base == 0 {
			continue
		}
		if base > baseCap {
			base = baseCap
		}
		score := base * topic.Multiplier
		if score > matchCap {
			score = matchCap
		}
		if score > best.Score {
			best = models.NarrativeMatch{
				TopicID: topic.ID,
				Score:   score,
				Reason:  fmt.Sprintf("%s ×%.1f: %s", topic.ID, topic.Multiplier, strings.Join(hits, ", ")),
			}
		}
	}
	return best
}
