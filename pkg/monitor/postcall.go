package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/models"
)

// PriceSource is the single-value probe the monitor polls. Kept narrow so
// monitoring never competes with the tracker for full snapshots.
type PriceSource interface {
	GetPrice(ctx context.Context, address string) (float64, error)
}

// Monitor watches freshly-signaled tokens for an immediate dump. One watch
// per token, one alert per watch, then the watch ends either way.
type Monitor struct {
	cfg    *config.Config
	prices PriceSource

	mu      sync.Mutex
	watches map[string]context.CancelFunc
	wg      sync.WaitGroup

	onAlert func(models.ExitAlert)
}

func New(cfg *config.Config, prices PriceSource) *Monitor {
	return &Monitor{
		cfg:     cfg,
		prices:  prices,
		watches: make(map[string]context.CancelFunc),
	}
}

// SetAlertCallback wires the publisher's exit-alert path.
func (m *Monitor) SetAlertCallback(fn func(models.ExitAlert)) { m.onAlert = fn }

// Watch starts the post-call window for a signal. Watching a token already
// under watch is a no-op.
func (m *Monitor) Watch(ctx context.Context, sig models.Signal) bool {
	if sig.EntryPrice <= 0 {
		log.Warn().Str("token", sig.Token).Msg("cannot monitor a signal without an entry price")
		return false
	}

	m.mu.Lock()
	if _, ok := m.watches[sig.Token]; ok {
		m.mu.Unlock()
		return false
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.watches[sig.Token] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(watchCtx, sig)
	return true
}

// Cancel ends a token's watch without emitting an alert. The tracker's
// retire path calls this so a retired token cannot alert afterwards.
func (m *Monitor) Cancel(token string) {
	m.mu.Lock()
	cancel, ok := m.watches[token]
	m.mu.Unlock()
	if ok {
		cancel()
		log.Info().Str("token", token).Msg("post-call watch canceled")
	}
}

// Watching reports whether the token is inside its post-call window.
func (m *Monitor) Watching(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[token]
	return ok
}

// Stop cancels every active watch and waits for them to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	for _, cancel := range m.watches {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, sig models.Signal) {
	defer m.wg.Done()
	defer m.release(sig.Token)

	started := time.Now()
	deadline := time.NewTimer(m.cfg.MonitoringDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(m.cfg.MonitorCheckInterval)
	defer ticker.Stop()

	log.Info().Str("token", sig.Token).Dur("window", m.cfg.MonitoringDuration).
		Msg("👁️ post-call watch started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			log.Info().Str("token", sig.Token).Msg("post-call watch ended clean")
			return
		case <-ticker.C:
		}

		price, err := m.prices.GetPrice(ctx, sig.Token)
		if err != nil || price <= 0 {
			// A failed probe is skipped, not alerted; the next tick retries.
			continue
		}

		// The watch may have been canceled while the probe was in flight.
		if ctx.Err() != nil {
			return
		}

		dropPct := (price - sig.EntryPrice) / sig.EntryPrice * 100
		if dropPct <= m.cfg.ExitAlertThresholdPct {
			alert := models.ExitAlert{
				Token:         sig.Token,
				Symbol:        sig.Symbol,
				SignalPrice:   sig.EntryPrice,
				ObservedPrice: price,
				DropPct:       dropPct,
				Elapsed:       time.Since(started),
				AlertedAt:     time.Now().UTC(),
			}
			log.Warn().Str("token", sig.Token).Float64("drop_pct", dropPct).Msg("📉 exit alert")
			if m.onAlert != nil {
				m.onAlert(alert)
			}
			return
		}
	}
}

func (m *Monitor) release(token string) {
	m.mu.Lock()
	if cancel, ok := m.watches[token]; ok {
		cancel()
		delete(m.watches, token)
	}
	m.mu.Unlock()
}
