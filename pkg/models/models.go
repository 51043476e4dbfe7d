package models

import (
	"sort"
	"time"
)

// ---- Wallets ----

type WalletTier string

const (
	TierElite    WalletTier = "elite"
	TierTopKOL   WalletTier = "top_kol"
	TierEmerging WalletTier = "emerging"
	TierWhale    WalletTier = "whale"
	TierUnknown  WalletTier = "unknown"
)

// Multiplier scales a wallet's smart-money contribution in the conviction score.
func (t WalletTier) Multiplier() float64 {
	switch t {
	case TierElite:
		return 1.5
	case TierTopKOL:
		return 1.0
	case TierEmerging:
		return 0.5
	case TierWhale:
		return 0.3
	}
	return 0
}

func (t WalletTier) Badge() string {
	switch t {
	case TierElite:
		return "👑"
	case TierTopKOL:
		return "⭐"
	case TierEmerging:
		return "🌱"
	case TierWhale:
		return "🐋"
	}
	return "❔"
}

type WalletInfo struct {
	Address      string     `json:"address"`
	DisplayName  string     `json:"display_name"`
	Tier         WalletTier `json:"tier"`
	WinRate      float64    `json:"win_rate"` // [0,1]
	IsEarlyWhale bool       `json:"is_early_whale"`
}

// ---- Inbound events ----

type TokenSource string

const (
	SourceKOLBuy       TokenSource = "kol_buy"
	SourceTelegramCall TokenSource = "telegram_call"
	SourceWhaleBuy     TokenSource = "whale_buy"
)

type KOLBuyEvent struct {
	Wallet      string    `json:"wallet"`
	Token       string    `json:"token_address"`
	SolAmount   float64   `json:"sol_amount"`
	Timestamp   time.Time `json:"timestamp"`
	TxSignature string    `json:"tx_signature"`
}

type TelegramCallEvent struct {
	Token     string    `json:"token_address"`
	GroupID   int64     `json:"group_id"`
	GroupName string    `json:"group_name"`
	MessageID int64     `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ---- Score breakdown ----

// Component names used across engine, diagnostics and persistence.
const (
	CompSmartWallets   = "smart_wallets"
	CompTelegramCalls  = "telegram_calls"
	CompNarrative      = "narrative"
	CompBuyPressure    = "buy_pressure"
	CompVolumeVelocity = "volume_velocity"
	CompMomentum       = "momentum"
	CompVolLiquidity   = "vol_liquidity"
	CompMCAPPenalty    = "mcap_penalty"
	CompUniqueBuyers   = "unique_buyers"
	CompHolders        = "holders"
	CompRugRisk        = "rug_risk"
	CompMLBonus        = "ml_bonus"
	CompConvergence    = "kol_convergence"
)

type ScoreComponent struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// ScoreBreakdown is the complete output of one conviction pass. The engine
// always returns one; it never raises.
type ScoreBreakdown struct {
	Components []ScoreComponent `json:"components"`
	FinalScore float64          `json:"final_score"`
	Threshold  float64          `json:"threshold"`

	DataQualityFailed bool   `json:"data_quality_failed"`
	QualityReason     string `json:"quality_reason,omitempty"`
	EmergencyStopped  bool   `json:"emergency_stopped"`
	StopReason        string `json:"stop_reason,omitempty"`
	MCAPCapped        bool   `json:"mcap_capped"`
	EarlyTriggered    bool   `json:"early_triggered"`

	Passed      bool        `json:"passed"`
	WhyNoSignal *Diagnostic `json:"why_no_signal,omitempty"`
}

func (b *ScoreBreakdown) Add(name string, points float64) {
	b.Components = append(b.Components, ScoreComponent{Name: name, Points: points})
	b.FinalScore += points
}

func (b *ScoreBreakdown) Component(name string) float64 {
	for _, c := range b.Components {
		if c.Name == name {
			return c.Points
		}
	}
	return 0
}

// Positives returns the non-penalty components sorted ascending by points.
func (b *ScoreBreakdown) Positives() []ScoreComponent {
	var out []ScoreComponent
	for _, c := range b.Components {
		if c.Points >= 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Points < out[j].Points })
	return out
}

func (b *ScoreBreakdown) Penalties() []ScoreComponent {
	var out []ScoreComponent
	for _, c := range b.Components {
		if c.Points < 0 {
			out = append(out, c)
		}
	}
	return out
}

// Diagnostic explains a near-miss: which components had the most headroom,
// which penalties applied, and what would most likely flip the decision.
type Diagnostic struct {
	MissingComponents []ScoreComponent `json:"missing_components"`
	Penalties         []ScoreComponent `json:"penalties"`
	Recommendations   []string         `json:"recommendations"`
}

// ---- Signals ----

type Signal struct {
	ID              string         `json:"id"`
	Token           string         `json:"token_address"`
	Symbol          string         `json:"symbol"`
	Name            string         `json:"name"`
	Score           float64        `json:"score"`
	Breakdown       ScoreBreakdown `json:"breakdown"`
	PostedAt        time.Time      `json:"posted_at"`
	MessageID       int64          `json:"message_id"`
	EntryPrice      float64        `json:"entry_price"`
	EntryLiquidity  float64        `json:"entry_liquidity"`
	MarketCap       float64        `json:"market_cap"`
	BuyPercentage   float64        `json:"buy_percentage"`
	Buys24h         int            `json:"buys_24h"`
	Sells24h        int            `json:"sells_24h"`
	Volume24h       float64        `json:"volume_24h"`
	BondingProgress float64        `json:"bonding_progress_pct"`
	KOLWallets      []WalletInfo   `json:"kol_wallets"`
	Narratives      []string       `json:"narratives"`
	DeliveryPending bool           `json:"delivery_pending"`
}

type ExitAlert struct {
	Token         string        `json:"token_address"`
	Symbol        string        `json:"symbol"`
	SignalPrice   float64       `json:"signal_price"`
	ObservedPrice float64       `json:"observed_price"`
	DropPct       float64       `json:"drop_pct"`
	Elapsed       time.Duration `json:"elapsed"`
	AlertedAt     time.Time     `json:"alerted_at"`
}

// ---- Narratives ----

type NarrativeTopic struct {
	ID         string   `json:"id"`
	Keywords   []string `json:"keywords"`
	Multiplier float64  `json:"multiplier"` // one of 1.0, 1.1, 1.2, 1.3, 1.5
}

type NarrativeSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Topics      []NarrativeTopic `json:"topics"`
}

type NarrativeMatch struct {
	TopicID string  `json:"narrative_id"`
	Score   float64 `json:"score"` // [0,25]
	Reason  string  `json:"reason"`
}

// ---- Token lifecycle ----

type TokenState string

const (
	StateTracking  TokenState = "tracking"
	StateSignaled  TokenState = "signaled"
	StateMonitored TokenState = "monitored"
	StateRetired   TokenState = "retired"
)

type RetireReason string

const (
	RetireMaxAge            RetireReason = "max_age"
	RetirePostSignalAge     RetireReason = "post_signal_age"
	RetireLowConviction     RetireReason = "low_conviction"
	RetireEarlyKill         RetireReason = "early_kill"
	RetireSourceUnavailable RetireReason = "source_unavailable"
)

// ---- ML prediction ----

type OutcomeClass string

const (
	OutcomeRug  OutcomeClass = "rug"
	Outcome2x   OutcomeClass = "2x"
	Outcome10x  OutcomeClass = "10x"
	Outcome50x  OutcomeClass = "50x"
	Outcome100x OutcomeClass = "100x+"
)

type Prediction struct {
	Class      OutcomeClass `json:"class"`
	Confidence float64      `json:"confidence"`
}

// FeatureVector is the engine-side input to an ML predictor. Field order is
// part of the contract with the offline trainer.
type FeatureVector struct {
	MarketCap       float64 `json:"market_cap"`
	LiquidityUSD    float64 `json:"liquidity_usd"`
	Volume24h       float64 `json:"volume_24h"`
	BuyPercentage   float64 `json:"buy_percentage"`
	PriceChange1h   float64 `json:"price_change_1h"`
	BondingProgress float64 `json:"bonding_progress_pct"`
	HolderCount     int     `json:"holder_count"`
	Top10Pct        float64 `json:"top10_pct"`
	UniqueBuyers    int     `json:"unique_buyers"`
	KOLCount        int     `json:"kol_count"`
	CallGroups      int     `json:"call_groups"`
	AgeSeconds      float64 `json:"age_seconds"`
}
