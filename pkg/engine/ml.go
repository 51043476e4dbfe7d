package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sentinel-engine/pkg/models"
)

// Predictor is the pluggable outcome classifier. The engine treats it as a
// pure function; training and model updates happen offline.
type Predictor interface {
	// Predict returns the predicted outcome class. ok=false means the model
	// abstains (not enough features, model not loaded) and the engine skips
	// the ML phase entirely.
	Predict(fv models.FeatureVector) (models.Prediction, bool)
}

// NoopPredictor always abstains. Installed when ENABLE_ML_PREDICTIONS is off
// or no model file is present.
type NoopPredictor struct{}

func (NoopPredictor) Predict(models.FeatureVector) (models.Prediction, bool) {
	return models.Prediction{}, false
}

// TablePredictor classifies from a coarse offline-exported decision table.
// Each rule is a conjunction of feature bounds; first match wins. It stands
// in until a real model server exists.
type TablePredictor struct {
	rules []predictorRule
}

type predictorRule struct {
	MinMCAP         float64             `json:"min_mcap"`
	MaxMCAP         float64             `json:"max_mcap"`
	MinBuyPct       float64             `json:"min_buy_pct"`
	MinUniqueBuyers int                 `json:"min_unique_buyers"`
	MaxTop10Pct     float64             `json:"max_top10_pct"`
	Class           models.OutcomeClass `json:"class"`
	Confidence      float64             `json:"confidence"`
}

// LoadTablePredictor reads an exported rule table. A missing file yields a
// nil predictor so the caller falls back to NoopPredictor.
func LoadTablePredictor(path string) (*TablePredictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read predictor table: %w", err)
	}
	var rules []predictorRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("decode predictor table: %w", err)
	}
	return &TablePredictor{rules: rules}, nil
}

func (p *TablePredictor) Predict(fv models.FeatureVector) (models.Prediction, bool) {
	for _, r := range p.rules {
		if r.MinMCAP > 0 && fv.MarketCap < r.MinMCAP {
			continue
		}
		if r.MaxMCAP > 0 && fv.MarketCap > r.MaxMCAP {
			continue
		}
		if fv.BuyPercentage < r.MinBuyPct {
			continue
		}
		if fv.UniqueBuyers < r.MinUniqueBuyers {
			continue
		}
		if r.MaxTop10Pct > 0 && fv.Top10Pct > r.MaxTop10Pct {
			continue
		}
		return models.Prediction{Class: r.Class, Confidence: r.Confidence}, true
	}
	return models.Prediction{}, false
}

// DevSellDetector reports whether the token creator has dumped their own
// supply. The on-chain implementation needs creator-transfer history; until
// that exists the no-op detector keeps the flag inert.
type DevSellDetector interface {
	DevSold(ctx context.Context, token string) bool
}

type NoopDevSellDetector struct{}

func (NoopDevSellDetector) DevSold(context.Context, string) bool { return false }
