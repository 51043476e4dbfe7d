package tracker

import (
	"sync"
	"time"

	"github.com/sentinel-engine/pkg/fetcher"
	"github.com/sentinel-engine/pkg/models"
)

// TrackedToken is the live state of one token under watch. The polling loop
// is the main writer; ingress events (KOL buys) arrive from other goroutines,
// so every field access goes through mu.
type TrackedToken struct {
	mu sync.Mutex

	Address string
	Source  models.TokenSource
	State   models.TokenState

	AddedAt   time.Time
	CreatedAt time.Time // on-chain creation, zero until the curve is fetched

	PollCount           int
	ConsecutiveFailures int
	StuckPolls          int

	Graduated       bool
	BondingProgress float64
	UniqueBuyers    int // monotonic max across observations
	PrevTop10Pct    float64
	PrevTop3Pct     float64

	LastData  fetcher.TokenData
	LastScore models.ScoreBreakdown

	KOLBuyers []models.WalletInfo
	kolSeen   map[string]bool
	buyTimes  []time.Time

	convergencePending bool
	convergenceFired   bool

	SignaledAt   time.Time
	EntryPrice   float64
	RetiredAt    time.Time
	RetireReason models.RetireReason

	baselineBuyers   int // unique buyers at admission, for the early kill
	earlyKillChecked bool
	lastBucket       int // previous score bucket (score/10), -1 before the first pass
}

func newTrackedToken(address string, source models.TokenSource, now time.Time) *TrackedToken {
	return &TrackedToken{
		Address:    address,
		Source:     source,
		State:      models.StateTracking,
		AddedAt:    now,
		kolSeen:    make(map[string]bool),
		lastBucket: -1,
	}
}

// addBuyer records a distinct curated buyer. Returns the number of distinct
// buyers inside the convergence window.
func (t *TrackedToken) addBuyer(w models.WalletInfo, at time.Time, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.kolSeen[w.Address] {
		t.kolSeen[w.Address] = true
		t.KOLBuyers = append(t.KOLBuyers, w)
		t.buyTimes = append(t.buyTimes, at)
	}

	cutoff := at.Add(-window)
	recent := 0
	for _, bt := range t.buyTimes {
		if bt.After(cutoff) {
			recent++
		}
	}
	return recent
}

// age is the wall-clock tracking age. On-chain creation time is preferred
// once known, since the token may be minutes old before anyone calls it.
func (t *TrackedToken) age(now time.Time) time.Duration {
	if !t.CreatedAt.IsZero() {
		return now.Sub(t.CreatedAt)
	}
	return now.Sub(t.AddedAt)
}

// Snapshot is the read-only dashboard view of a tracked token.
type Snapshot struct {
	Address         string                `json:"address"`
	Symbol          string                `json:"symbol"`
	Name            string                `json:"name"`
	Source          models.TokenSource    `json:"source"`
	State           models.TokenState     `json:"state"`
	AddedAt         time.Time             `json:"added_at"`
	AgeSeconds      float64               `json:"age_seconds"`
	PollCount       int                   `json:"poll_count"`
	StuckPolls      int                   `json:"stuck_polls"`
	Graduated       bool                  `json:"graduated"`
	BondingProgress float64               `json:"bonding_progress_pct"`
	UniqueBuyers    int                   `json:"unique_buyers"`
	KOLCount        int                   `json:"kol_count"`
	Score           float64               `json:"score"`
	Threshold       float64               `json:"threshold"`
	Breakdown       models.ScoreBreakdown `json:"breakdown"`
	PriceUSD        float64               `json:"price_usd"`
	MarketCap       float64               `json:"market_cap"`
	LiquidityUSD    float64               `json:"liquidity_usd"`
	SignaledAt      *time.Time            `json:"signaled_at,omitempty"`
	RetireReason    models.RetireReason   `json:"retire_reason,omitempty"`
}

func (t *TrackedToken) snapshot(now time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Address:         t.Address,
		Symbol:          t.LastData.Symbol,
		Name:            t.LastData.Name,
		Source:          t.Source,
		State:           t.State,
		AddedAt:         t.AddedAt,
		AgeSeconds:      t.age(now).Seconds(),
		PollCount:       t.PollCount,
		StuckPolls:      t.StuckPolls,
		Graduated:       t.Graduated,
		BondingProgress: t.BondingProgress,
		UniqueBuyers:    t.UniqueBuyers,
		KOLCount:        len(t.KOLBuyers),
		Score:           t.LastScore.FinalScore,
		Threshold:       t.LastScore.Threshold,
		Breakdown:       t.LastScore,
		PriceUSD:        t.LastData.PriceUSD,
		MarketCap:       t.LastData.MarketCap,
		LiquidityUSD:    t.LastData.LiquidityUSD,
		RetireReason:    t.RetireReason,
	}
	if !t.SignaledAt.IsZero() {
		sig := t.SignaledAt
		s.SignaledAt = &sig
	}
	return s
}
