package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/engine"
	"github.com/sentinel-engine/pkg/fetcher"
	"github.com/sentinel-engine/pkg/models"
	"github.com/sentinel-engine/pkg/wallets"
)

// DataSource is the market-data slice of the fetcher the tracker polls.
type DataSource interface {
	GetTokenData(ctx context.Context, address string) fetcher.TokenData
	GetBondingCurve(ctx context.Context, address string) (fetcher.BondingCurve, error)
	GetMetadata(ctx context.Context, address string) (fetcher.Metadata, error)
	PeekHolders(address string) (fetcher.HolderDistribution, bool)
}

// Scorer is the conviction engine surface the tracker drives.
type Scorer interface {
	Score(ctx context.Context, in engine.Input) models.ScoreBreakdown
}

// SignalHistory answers whether a token ever produced a posted signal. The
// sqlite store satisfies it; admission consults it so a restart cannot
// re-post a token that already signaled.
type SignalHistory interface {
	HasSignal(token string) (bool, error)
}

// Tracker owns the set of live tokens. Each admitted token gets its own
// polling goroutine; admission is idempotent so duplicate events from the
// ingress layer cannot double-track.
type Tracker struct {
	cfg      *config.Config
	data     DataSource
	scorer   Scorer
	registry *wallets.Registry

	mu      sync.Mutex
	tokens  map[string]*TrackedToken
	cancels map[string]context.CancelFunc

	wg  sync.WaitGroup
	now func() time.Time

	onSignal func(models.Signal)
	onRetire func(address string, reason models.RetireReason)
	matcher  engine.NarrativeMatcher
	history  SignalHistory
}

func New(cfg *config.Config, data DataSource, scorer Scorer, registry *wallets.Registry) *Tracker {
	return &Tracker{
		cfg:      cfg,
		data:     data,
		scorer:   scorer,
		registry: registry,
		tokens:   make(map[string]*TrackedToken),
		cancels:  make(map[string]context.CancelFunc),
		now:      time.Now,
	}
}

// SetSignalCallback wires the publisher. Must be set before Track is called.
func (tr *Tracker) SetSignalCallback(fn func(models.Signal)) { tr.onSignal = fn }

// SetRetireCallback is invoked once per retirement, after the loop stops.
func (tr *Tracker) SetRetireCallback(fn func(address string, reason models.RetireReason)) {
	tr.onRetire = fn
}

// SetNarrativeMatcher lets outbound signals name the matched narrative.
func (tr *Tracker) SetNarrativeMatcher(m engine.NarrativeMatcher) { tr.matcher = m }

// SetSignalHistory wires the persisted signal record into admission.
func (tr *Tracker) SetSignalHistory(h SignalHistory) { tr.history = h }

// Track admits a token. Re-admitting a token that is already tracking,
// signaled or monitored is a no-op. A retired token starts fresh unless it
// ever signaled: signaled tokens stay in the map as tombstones, so one token
// can never produce a second signal.
func (tr *Tracker) Track(ctx context.Context, address string, source models.TokenSource) bool {
	tr.mu.Lock()
	if existing, ok := tr.tokens[address]; ok {
		existing.mu.Lock()
		state := existing.State
		signaled := !existing.SignaledAt.IsZero()
		existing.mu.Unlock()
		if state != models.StateRetired || signaled {
			tr.mu.Unlock()
			return false
		}
	}
	if tr.history != nil {
		if has, err := tr.history.HasSignal(address); err == nil && has {
			tr.mu.Unlock()
			log.Debug().Str("token", abbrev(address)).Msg("already signaled in a previous run, not re-admitting")
			return false
		}
	}

	t := newTrackedToken(address, source, tr.now())
	tr.tokens[address] = t

	loopCtx, cancel := context.WithCancel(ctx)
	tr.cancels[address] = cancel
	tr.mu.Unlock()

	log.Info().Str("token", abbrev(address)).Str("source", string(source)).Msg("🔭 tracking token")

	tr.wg.Add(1)
	go tr.loop(loopCtx, t)
	return true
}

// RecordKOLBuy feeds a curated-wallet buy into the token's state, admitting
// the token first if needed. Fires the one-shot convergence bonus when enough
// distinct curated buyers land inside the window.
func (tr *Tracker) RecordKOLBuy(ctx context.Context, ev models.KOLBuyEvent) {
	w := tr.registry.Lookup(ev.Wallet)
	if w.Tier == models.TierUnknown {
		return
	}

	source := models.SourceKOLBuy
	if w.Tier == models.TierWhale {
		source = models.SourceWhaleBuy
	}
	tr.Track(ctx, ev.Token, source)

	tr.mu.Lock()
	t := tr.tokens[ev.Token]
	tr.mu.Unlock()
	if t == nil {
		return
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = tr.now()
	}
	recent := t.addBuyer(w, at, tr.cfg.MultiKOLWindow)

	t.mu.Lock()
	if recent >= tr.cfg.MultiKOLMinCount && !t.convergenceFired {
		t.convergencePending = true
		log.Info().Str("token", abbrev(ev.Token)).Int("buyers", recent).Msg("🤝 multi-KOL convergence")
	}
	t.mu.Unlock()
}

// Len returns the number of non-retired tokens.
func (tr *Tracker) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := 0
	for _, t := range tr.tokens {
		t.mu.Lock()
		if t.State != models.StateRetired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// Snapshots returns the dashboard view of every token, retired included.
func (tr *Tracker) Snapshots() []Snapshot {
	tr.mu.Lock()
	list := make([]*TrackedToken, 0, len(tr.tokens))
	for _, t := range tr.tokens {
		list = append(list, t)
	}
	tr.mu.Unlock()

	now := tr.now()
	out := make([]Snapshot, 0, len(list))
	for _, t := range list {
		out = append(out, t.snapshot(now))
	}
	return out
}

// Get returns one token's snapshot.
func (tr *Tracker) Get(address string) (Snapshot, bool) {
	tr.mu.Lock()
	t, ok := tr.tokens[address]
	tr.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(tr.now()), true
}

// Stop cancels every loop and waits for them to drain.
func (tr *Tracker) Stop() {
	tr.mu.Lock()
	for _, cancel := range tr.cancels {
		cancel()
	}
	tr.mu.Unlock()
	tr.wg.Wait()
}

// ── polling loop ────────────────────────────────────────────

func (tr *Tracker) loop(ctx context.Context, t *TrackedToken) {
	defer tr.wg.Done()

	timer := time.NewTimer(0) // first poll immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if done := tr.poll(ctx, t); done {
			return
		}
		timer.Reset(tr.interval(t))
	}
}

// interval picks the adaptive cadence: fast while fresh, slow when the curve
// is stuck, normal otherwise.
func (tr *Tracker) interval(t *TrackedToken) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr.now().Sub(t.AddedAt) < tr.cfg.InitialDuration {
		return tr.cfg.InitialInterval
	}
	if t.StuckPolls >= tr.cfg.StuckThreshold {
		return tr.cfg.SlowInterval
	}
	return tr.cfg.NormalInterval
}

// poll runs one observe-score-decide pass. Returns true when the token
// retired and the loop should exit.
func (tr *Tracker) poll(ctx context.Context, t *TrackedToken) bool {
	data := tr.data.GetTokenData(ctx, t.Address)

	var curve *fetcher.BondingCurve
	t.mu.Lock()
	graduated := t.Graduated
	t.mu.Unlock()
	if !graduated {
		if c, err := tr.data.GetBondingCurve(ctx, t.Address); err == nil {
			curve = &c
		}
	}

	var desc string
	if md, err := tr.data.GetMetadata(ctx, t.Address); err == nil {
		desc = md.Description
	}

	now := tr.now()

	t.mu.Lock()
	t.PollCount++
	t.LastData = data
	buyersBefore := t.UniqueBuyers

	if data.SourceError != "" {
		t.ConsecutiveFailures++
		if t.ConsecutiveFailures >= 3 {
			t.mu.Unlock()
			return tr.retire(t, models.RetireSourceUnavailable)
		}
		// Transient outage: skip this pass rather than score a partial
		// snapshot the quality gate would reject anyway.
		t.mu.Unlock()
		return false
	}
	t.ConsecutiveFailures = 0

	if curve != nil {
		t.BondingProgress = curve.ProgressPct
		t.Graduated = curve.Graduated
		if !curve.CreatedAt.IsZero() {
			t.CreatedAt = curve.CreatedAt
		}
		if curve.UniqueBuyers > t.UniqueBuyers {
			t.UniqueBuyers = curve.UniqueBuyers
		}
		if t.PollCount == 1 {
			t.baselineBuyers = t.UniqueBuyers
		}
	}

	age := t.age(now)
	if reason, ok := tr.retirement(t, age, now); ok {
		t.mu.Unlock()
		return tr.retire(t, reason)
	}

	in := engine.Input{
		Token:            data,
		Bonding:          curve,
		Age:              age,
		PollCount:        t.PollCount,
		Graduated:        t.Graduated,
		BondingProgress:  t.BondingProgress,
		PrevTop10Pct:     t.PrevTop10Pct,
		PrevTop3Pct:      t.PrevTop3Pct,
		UniqueBuyers:     t.UniqueBuyers,
		ConvergenceBonus: t.convergencePending,
		Description:      desc,
	}
	in.KOLBuyers = append(in.KOLBuyers, t.KOLBuyers...)
	if t.Graduated {
		if hd, ok := tr.data.PeekHolders(t.Address); ok {
			in.HolderCount = hd.HolderCount
			in.HolderCountKnown = true
		}
	} else if curve != nil {
		in.HolderCount = curve.HolderCount
		in.HolderCountKnown = true
	}
	alreadySignaled := t.State == models.StateSignaled || t.State == models.StateMonitored
	t.mu.Unlock()

	// Scoring may spend credits and block on enrichment; never hold the
	// token lock across it.
	b := tr.scorer.Score(ctx, in)

	t.mu.Lock()
	t.LastScore = b

	// Stuck means no meaningful state change: same score bucket and no new
	// buyer. Three in a row drops the loop to the slow cadence.
	bucket := int(b.FinalScore / 10)
	if t.lastBucket >= 0 && bucket == t.lastBucket && t.UniqueBuyers == buyersBefore {
		t.StuckPolls++
	} else {
		t.StuckPolls = 0
	}
	t.lastBucket = bucket

	if in.ConvergenceBonus {
		t.convergencePending = false
		t.convergenceFired = true
	}
	if hd, ok := tr.data.PeekHolders(t.Address); ok {
		t.PrevTop10Pct = hd.Top10Pct
		t.PrevTop3Pct = hd.Top3Pct
	}

	if b.Passed && !alreadySignaled {
		sig := tr.buildSignal(t, in, b, now)
		t.State = models.StateSignaled
		t.SignaledAt = now
		t.EntryPrice = data.PriceUSD
		t.mu.Unlock()

		log.Info().Str("token", abbrev(t.Address)).Float64("score", b.FinalScore).
			Bool("early", b.EarlyTriggered).Msg("🚨 signal")
		if tr.onSignal != nil {
			tr.onSignal(sig)
		}
		return false
	}
	t.mu.Unlock()
	return false
}

// retirement evaluates the age- and activity-based exit rules. Called with
// t.mu held.
func (tr *Tracker) retirement(t *TrackedToken, age time.Duration, now time.Time) (models.RetireReason, bool) {
	switch t.State {
	case models.StateSignaled, models.StateMonitored:
		if now.Sub(t.SignaledAt) > tr.cfg.PostSignalMaxAge {
			return models.RetirePostSignalAge, true
		}
		return "", false
	}

	if age > tr.cfg.MaxTokenAge {
		return models.RetireMaxAge, true
	}

	// Early kill: one check at the end of the window. A token that climbed
	// past the kill line on the curve but stopped attracting buyers has
	// stalled; below the line the launch is still forming and gets to live.
	if !t.earlyKillChecked && now.Sub(t.AddedAt) >= tr.cfg.EarlyKillWindow {
		t.earlyKillChecked = true
		newBuyers := t.UniqueBuyers - t.baselineBuyers
		if newBuyers < tr.cfg.EarlyKillMinNewBuyers && t.BondingProgress >= tr.cfg.EarlyKillBondingPct {
			return models.RetireEarlyKill, true
		}
	}

	// Persistent low conviction past the halfway mark is not coming back.
	if age > tr.cfg.MaxTokenAge/2 && t.LastScore.FinalScore > 0 &&
		t.LastScore.FinalScore < t.LastScore.Threshold/2 {
		return models.RetireLowConviction, true
	}

	return "", false
}

// MarkMonitored records that the post-call monitor picked the signal up.
// Only a signaled token can transition.
func (tr *Tracker) MarkMonitored(address string) {
	tr.mu.Lock()
	t := tr.tokens[address]
	tr.mu.Unlock()
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.State == models.StateSignaled {
		t.State = models.StateMonitored
	}
	t.mu.Unlock()
}

// retire finalizes a token and stops its loop. Always returns true so poll
// can tail-call it.
func (tr *Tracker) retire(t *TrackedToken, reason models.RetireReason) bool {
	t.mu.Lock()
	if t.State == models.StateRetired {
		t.mu.Unlock()
		return true
	}
	t.State = models.StateRetired
	t.RetireReason = reason
	t.RetiredAt = tr.now()
	t.mu.Unlock()

	tr.mu.Lock()
	if cancel, ok := tr.cancels[t.Address]; ok {
		cancel()
		delete(tr.cancels, t.Address)
	}
	tr.mu.Unlock()

	log.Info().Str("token", abbrev(t.Address)).Str("reason", string(reason)).Msg("🪦 token retired")
	if tr.onRetire != nil {
		tr.onRetire(t.Address, reason)
	}
	return true
}

// buildSignal assembles the outbound signal from the current pass. Called
// with t.mu held.
func (tr *Tracker) buildSignal(t *TrackedToken, in engine.Input, b models.ScoreBreakdown, now time.Time) models.Signal {
	sig := models.Signal{
		ID:              uuid.NewString(),
		Token:           t.Address,
		Symbol:          in.Token.Symbol,
		Name:            in.Token.Name,
		Score:           b.FinalScore,
		Breakdown:       b,
		PostedAt:        now,
		EntryPrice:      in.Token.PriceUSD,
		EntryLiquidity:  in.Token.LiquidityUSD,
		MarketCap:       in.Token.MarketCap,
		BuyPercentage:   in.Token.BuyPercentage(),
		Buys24h:         in.Token.Buys24h,
		Sells24h:        in.Token.Sells24h,
		Volume24h:       in.Token.Volume24h,
		BondingProgress: t.BondingProgress,
	}
	sig.KOLWallets = append(sig.KOLWallets, t.KOLBuyers...)
	if b.Component(models.CompNarrative) > 0 && tr.matcher != nil {
		if m := tr.matcher.Match(in.Token.Symbol, in.Token.Name, in.Description); m.TopicID != "" {
			sig.Narratives = append(sig.Narratives, m.Reason)
		}
	}
	return sig
}

func abbrev(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}
