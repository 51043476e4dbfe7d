package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/fetcher"
	"github.com/sentinel-engine/pkg/models"
)

// Scoring constants. The free base phase never spends credits; holders and
// rug data are only pulled once the mid-score clears the enrichment gate.
const (
	smartWalletUnit   = 10.0
	smartWalletCap    = 40.0
	callGroupUnit     = 6.0
	callGroupCapCount = 3
	callExtraCap      = 4.0
	callCap           = 22.0
	convergenceBonus  = 15.0
	enrichmentGate    = 40.0
	enrichBondingPct  = 40.0
)

// HolderSource is the paid-enrichment slice of the fetcher.
type HolderSource interface {
	GetHolders(ctx context.Context, address string) (fetcher.HolderDistribution, error)
	GetRugCheck(ctx context.Context, address string) (fetcher.RugScore, error)
}

// CallActivity reports third-party call pressure for a token.
type CallActivity interface {
	Activity(token string, within time.Duration) (distinctGroups, totalMentions int)
}

// NarrativeMatcher matches a token against the hot narrative clusters.
type NarrativeMatcher interface {
	Match(symbol, name, description string) models.NarrativeMatch
}

// Input is one immutable scoring frame. The tracker assembles it from
// already-fetched snapshots; scoring itself only suspends inside the paid
// enrichment phase.
type Input struct {
	Token   fetcher.TokenData
	Bonding *fetcher.BondingCurve

	Age       time.Duration
	PollCount int

	Graduated        bool
	BondingProgress  float64
	HolderCount      int
	HolderCountKnown bool
	PrevTop10Pct     float64 // last observed concentration, 0 = none
	PrevTop3Pct      float64

	KOLBuyers        []models.WalletInfo
	UniqueBuyers     int
	ConvergenceBonus bool

	Description string
}

// Engine computes conviction breakdowns. Same inputs produce the same
// outputs; the only wall-clock dependence is the caller-supplied Age.
type Engine struct {
	cfg        *config.Config
	holders    HolderSource
	calls      CallActivity
	narratives NarrativeMatcher
	predictor  Predictor
	devSells   DevSellDetector
}

func New(cfg *config.Config, holders HolderSource, callIdx CallActivity, narratives NarrativeMatcher, predictor Predictor) *Engine {
	if predictor == nil {
		predictor = NoopPredictor{}
	}
	return &Engine{
		cfg:        cfg,
		holders:    holders,
		calls:      callIdx,
		narratives: narratives,
		predictor:  predictor,
		devSells:   NoopDevSellDetector{},
	}
}

// SetDevSellDetector installs the optional dev-sell capability
// (ENABLE_DEV_SELL_DETECTION). Default is a no-op.
func (e *Engine) SetDevSellDetector(d DevSellDetector) {
	if d != nil {
		e.devSells = d
	}
}

// Score runs the six scoring phases. It always returns a breakdown and never
// raises; provider problems arrive pre-absorbed in the snapshot.
func (e *Engine) Score(ctx context.Context, in Input) models.ScoreBreakdown {
	b := models.ScoreBreakdown{Threshold: e.threshold(in)}

	// Phase 0: data quality gate.
	if reason := e.dataQuality(in); reason != "" {
		b.DataQualityFailed = true
		b.QualityReason = reason
		return b
	}

	// Phase 1: emergency stops.
	if reason := e.emergencyStops(ctx, in); reason != "" {
		b.EmergencyStopped = true
		b.StopReason = reason
		return b
	}

	// Phase 2: free base score.
	e.scoreSmartWallets(&b, in)
	e.scoreTelegramCalls(&b, in)
	e.scoreNarrative(&b, in)
	e.scoreBuyPressure(&b, in)
	e.scoreVolumeVelocity(&b, in)
	e.scoreMomentum(&b, in)
	e.scoreVolLiquidity(&b, in)
	e.scoreMCAPPenalty(&b, in)
	if in.ConvergenceBonus {
		b.Add(models.CompConvergence, convergenceBonus)
	}

	// Phase 3: conditional paid enrichment.
	e.scoreUniqueBuyers(&b, in)
	if b.FinalScore >= enrichmentGate && (in.BondingProgress >= enrichBondingPct || in.Graduated) {
		if stopped := e.scoreHolders(ctx, &b, in); stopped {
			return b
		}
		e.scoreRugRisk(ctx, &b, in)
	}

	// Phase 4: ML bonus.
	e.scoreMLBonus(&b, in)

	// Phase 5: threshold and special rules.
	e.decide(&b, in)

	// Phase 6: why-no-signal diagnostic for near misses.
	if !b.Passed && !b.EmergencyStopped && !b.DataQualityFailed &&
		b.FinalScore >= b.Threshold-e.cfg.EarlyTriggerGracePoints {
		b.WhyNoSignal = e.diagnose(&b, in)
	}
	return b
}

func (e *Engine) threshold(in Input) float64 {
	if in.Graduated {
		return float64(e.cfg.PostGradThreshold)
	}
	return float64(e.cfg.MinConvictionScore)
}

// ── Phase 0 ─────────────────────────────────────────────────

func (e *Engine) dataQuality(in Input) string {
	if in.Token.SourceError != "" {
		return fmt.Sprintf("source error: %s", in.Token.SourceError)
	}
	if in.Token.PriceUSD == 0 {
		return "zero price"
	}
	if in.Graduated && in.Token.LiquidityUSD < 1000 {
		return "graduated with missing or dust liquidity"
	}
	if in.Graduated && in.HolderCountKnown && in.HolderCount == 0 {
		return "graduated with zero holders"
	}
	if in.Token.Symbol == "" && in.Token.Name == "" {
		return "no identity (symbol and name both empty)"
	}
	return ""
}

// ── Phase 1 ─────────────────────────────────────────────────

func (e *Engine) emergencyStops(ctx context.Context, in Input) string {
	// Concentration data only exists once a token has been enriched at
	// least once; zero means not yet observed, not "nobody holds it".
	if in.PrevTop3Pct > 80 {
		return fmt.Sprintf("top3 holders own %.0f%%", in.PrevTop3Pct)
	}
	if in.Token.LiquidityUSD > 0 && in.Token.LiquidityUSD < 5000 && in.Graduated {
		return fmt.Sprintf("liquidity $%.0f below floor", in.Token.LiquidityUSD)
	}
	if !in.Graduated && in.Age < 2*time.Minute {
		return "token under 2 minutes old on bonding curve"
	}
	if !in.Graduated && in.BondingProgress == 0 && in.PollCount > 3 {
		return "dead launch (no bonding progress after 3 polls)"
	}
	if e.cfg.EnableDevSellDetection && e.devSells.DevSold(ctx, in.Token.Address) {
		return "creator sold their supply"
	}
	return ""
}

// ── Phase 2 ─────────────────────────────────────────────────

func (e *Engine) scoreSmartWallets(b *models.ScoreBreakdown, in Input) {
	if len(in.KOLBuyers) == 0 {
		b.Add(models.CompSmartWallets, 0)
		return
	}
	total := 0.0
	for _, w := range in.KOLBuyers {
		total += smartWalletUnit * w.Tier.Multiplier()
	}
	if total > smartWalletCap {
		total = smartWalletCap
	}
	b.Add(models.CompSmartWallets, total)
}

func (e *Engine) scoreTelegramCalls(b *models.ScoreBreakdown, in Input) {
	if !e.cfg.EnableTelegramCalls || e.calls == nil {
		b.Add(models.CompTelegramCalls, 0)
		return
	}
	groups, mentions := e.calls.Activity(in.Token.Address, 0)
	if groups == 0 {
		b.Add(models.CompTelegramCalls, 0)
		return
	}
	capped := groups
	if capped > callGroupCapCount {
		capped = callGroupCapCount
	}
	pts := callGroupUnit * float64(capped)
	extra := float64(mentions - groups)
	if extra > callExtraCap {
		extra = callExtraCap
	}
	if extra > 0 {
		pts += extra
	}
	if pts > callCap {
		pts = callCap
	}
	b.Add(models.CompTelegramCalls, pts)
}

func (e *Engine) scoreNarrative(b *models.ScoreBreakdown, in Input) {
	if !e.cfg.EnableNarratives || e.narratives == nil {
		b.Add(models.CompNarrative, 0)
		return
	}
	m := e.narratives.Match(in.Token.Symbol, in.Token.Name, in.Description)
	b.Add(models.CompNarrative, m.Score)
}

// scoreBuyPressure maps buy percentage onto banded points, linear within
// each band. Thin activity (<20 txns) scores a flat neutral 8.
func (e *Engine) scoreBuyPressure(b *models.ScoreBreakdown, in Input) {
	total := in.Token.Buys24h + in.Token.Sells24h
	if total < 20 {
		b.Add(models.CompBuyPressure, 8)
		return
	}
	p := in.Token.BuyPercentage()
	var pts float64
	switch {
	case p >= 80:
		pts = 16 + (p-80)/20*4
	case p >= 70:
		pts = 12 + (p-70)/10*4
	case p >= 50:
		pts = 8 + (p-50)/20*4
	case p >= 30:
		pts = 4 + (p-30)/20*4
	default:
		pts = p / 30 * 4
	}
	b.Add(models.CompBuyPressure, pts)
}

func (e *Engine) scoreVolumeVelocity(b *models.ScoreBreakdown, in Input) {
	if in.Token.MarketCap == 0 {
		b.Add(models.CompVolumeVelocity, 0)
		return
	}
	r := in.Token.Volume24h / in.Token.MarketCap
	var pts float64
	switch {
	case r > 2:
		pts = 10
	case r > 1.25:
		pts = 7
	case r > 1.0:
		pts = 3
	}
	b.Add(models.CompVolumeVelocity, pts)
}

// scoreMomentum approximates the 5-minute price derivative from the 1-hour
// change when finer data is absent.
func (e *Engine) scoreMomentum(b *models.ScoreBreakdown, in Input) {
	chg := in.Token.PriceChange1h
	var pts float64
	switch {
	case chg >= 50:
		pts = 10
	case chg >= 30:
		pts = 7
	case chg >= 10:
		pts = 3
	}
	b.Add(models.CompMomentum, pts)
}

func (e *Engine) scoreVolLiquidity(b *models.ScoreBreakdown, in Input) {
	if in.Token.LiquidityUSD == 0 {
		b.Add(models.CompVolLiquidity, 0)
		return
	}
	v := in.Token.Volume24h / in.Token.LiquidityUSD
	var pts float64
	switch {
	case v > 30:
		pts = 10
	case v > 20:
		pts = 8
	case v > 10:
		pts = 5
	case v > 5:
		pts = 3
	case v > 2:
		pts = 1
	case v < 1:
		pts = -3
	}
	b.Add(models.CompVolLiquidity, pts)
}

func (e *Engine) scoreMCAPPenalty(b *models.ScoreBreakdown, in Input) {
	var pts float64
	switch {
	case in.Token.MarketCap > 25_000_000:
		pts = -20
	case in.Token.MarketCap > 5_000_000:
		pts = -10
	}
	b.Add(models.CompMCAPPenalty, pts)
}

// ── Phase 3 ─────────────────────────────────────────────────

func (e *Engine) scoreUniqueBuyers(b *models.ScoreBreakdown, in Input) {
	var pts float64
	switch {
	case in.UniqueBuyers >= 100:
		pts = 15
	case in.UniqueBuyers >= 70:
		pts = 12
	case in.UniqueBuyers >= 40:
		pts = 8
	case in.UniqueBuyers >= 20:
		pts = 5
	}
	b.Add(models.CompUniqueBuyers, pts)
}

// scoreHolders pulls the expensive distribution data (10 credits on miss)
// and applies concentration penalties. Returns true on the top-10 emergency
// stop, which overrides everything downstream.
func (e *Engine) scoreHolders(ctx context.Context, b *models.ScoreBreakdown, in Input) bool {
	if e.holders == nil {
		return false
	}
	hd, err := e.holders.GetHolders(ctx, in.Token.Address)
	if err != nil {
		log.Debug().Err(err).Str("token", in.Token.Address).Msg("holder enrichment unavailable")
		return false
	}

	if hd.Top10Pct > 80 {
		b.EmergencyStopped = true
		b.StopReason = fmt.Sprintf("top10 holders own %.0f%%", hd.Top10Pct)
		b.Passed = false
		return true
	}

	var pts float64
	switch {
	case hd.Top10Pct > 70:
		pts = -35
	case hd.Top10Pct > 50:
		pts = -20
	case hd.Top10Pct > 40:
		pts = -10
	}
	// Improving-distribution bonus: concentration dropped ≥5 points since
	// the previous observation.
	if in.PrevTop10Pct > 0 && in.PrevTop10Pct >= hd.Top10Pct+5 {
		pts += 5
	}
	b.Add(models.CompHolders, pts)
	return false
}

func (e *Engine) scoreRugRisk(ctx context.Context, b *models.ScoreBreakdown, in Input) {
	if e.holders == nil {
		return
	}
	rs, err := e.holders.GetRugCheck(ctx, in.Token.Address)
	if err != nil {
		log.Debug().Err(err).Str("token", in.Token.Address).Msg("rug check unavailable")
		return
	}
	if rs.Normalized <= 3 {
		b.Add(models.CompRugRisk, 0)
		return
	}
	pts := -10.0
	switch {
	case rs.Normalized > 9:
		pts -= 40
	case rs.Normalized > 7:
		pts -= 25
	case rs.Normalized > 5:
		pts -= 15
	default:
		pts -= 5
	}
	b.Add(models.CompRugRisk, pts)
}

// ── Phase 4 ─────────────────────────────────────────────────

func (e *Engine) scoreMLBonus(b *models.ScoreBreakdown, in Input) {
	if !e.cfg.EnableMLPredictions {
		return
	}
	pred, ok := e.predictor.Predict(e.features(in))
	if !ok {
		return
	}
	var pts float64
	switch pred.Class {
	case models.Outcome100x:
		switch {
		case pred.Confidence >= 0.7:
			pts = 20
		case pred.Confidence >= 0.5:
			pts = 15
		default:
			pts = 10
		}
	case models.Outcome50x:
		switch {
		case pred.Confidence >= 0.7:
			pts = 15
		case pred.Confidence >= 0.5:
			pts = 12
		default:
			pts = 10
		}
	case models.Outcome10x:
		switch {
		case pred.Confidence >= 0.7:
			pts = 10
		case pred.Confidence >= 0.5:
			pts = 8
		default:
			pts = 5
		}
	case models.Outcome2x:
		pts = 0
	case models.OutcomeRug:
		if pred.Confidence >= 0.5 {
			pts = -30
		}
	}
	b.Add(models.CompMLBonus, pts)
}

func (e *Engine) features(in Input) models.FeatureVector {
	groups := 0
	if e.cfg.EnableTelegramCalls && e.calls != nil {
		groups, _ = e.calls.Activity(in.Token.Address, 0)
	}
	return models.FeatureVector{
		MarketCap:       in.Token.MarketCap,
		LiquidityUSD:    in.Token.LiquidityUSD,
		Volume24h:       in.Token.Volume24h,
		BuyPercentage:   in.Token.BuyPercentage(),
		PriceChange1h:   in.Token.PriceChange1h,
		BondingProgress: in.BondingProgress,
		HolderCount:     in.HolderCount,
		Top10Pct:        in.PrevTop10Pct,
		UniqueBuyers:    in.UniqueBuyers,
		KOLCount:        len(in.KOLBuyers),
		CallGroups:      groups,
		AgeSeconds:      in.Age.Seconds(),
	}
}

// ── Phase 5 ─────────────────────────────────────────────────

func (e *Engine) decide(b *models.ScoreBreakdown, in Input) {
	// MCAP cap beats everything, including early trigger.
	capLimit := e.cfg.MaxMCAPPreGrad
	if in.Graduated {
		capLimit = e.cfg.MaxMCAPPostGrad
	}
	if in.Token.MarketCap > capLimit {
		b.MCAPCapped = true
		b.Passed = false
		return
	}

	if b.FinalScore >= b.Threshold {
		b.Passed = true
	} else if in.BondingProgress >= e.cfg.EarlyTriggerBondingPct &&
		in.UniqueBuyers >= e.cfg.EarlyTriggerMinBuyers &&
		b.FinalScore >= b.Threshold-e.cfg.EarlyTriggerGracePoints {
		b.Passed = true
		b.EarlyTriggered = true
	}

	// A pass must rest on at least one guarded component: curated wallets,
	// third-party calls, or a strong ML read. Unguarded market metrics alone
	// never signal.
	if b.Passed {
		if b.Component(models.CompSmartWallets) <= 0 &&
			b.Component(models.CompTelegramCalls) <= 0 &&
			b.Component(models.CompMLBonus) < 10 {
			b.Passed = false
			b.EarlyTriggered = false
		}
	}
}
