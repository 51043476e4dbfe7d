package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/models"
)

const (
	defaultAPIBase = "https://api.telegram.org"

	// Consecutive send failures before the publisher reports itself degraded.
	persistentFailureThreshold = 3
)

// SignalStore persists signals so a Telegram outage never loses one. The
// sqlite store satisfies it.
type SignalStore interface {
	SaveSignal(models.Signal) error
	PendingSignals() ([]models.Signal, error)
	MarkDelivered(id string, messageID int64) error
}

// Publisher delivers signals and exit alerts to the configured Telegram
// channel. Sends are serialized; Telegram rate-limits per chat and ordering
// matters to readers.
type Publisher struct {
	cfg     *config.Config
	store   SignalStore
	client  *http.Client
	apiBase string
	backoff time.Duration

	mu      sync.Mutex
	enabled bool

	sent        atomic.Int64
	failed      atomic.Int64
	consecutive atomic.Int64
	degraded    atomic.Bool
}

// HealthStatus is the publisher's delivery health, exposed on the dashboard.
type HealthStatus struct {
	Sent                int64 `json:"sent"`
	Failed              int64 `json:"failed"`
	ConsecutiveFailures int64 `json:"consecutive_failures"`
	Degraded            bool  `json:"degraded"`
}

func New(cfg *config.Config, store SignalStore) *Publisher {
	p := &Publisher{
		cfg:     cfg,
		store:   store,
		client:  &http.Client{Timeout: 15 * time.Second},
		apiBase: defaultAPIBase,
		backoff: 2 * time.Second,
	}
	ready, missing := cfg.PublisherReady()
	p.enabled = ready
	if !ready {
		log.Warn().Strs("missing", missing).
			Msg("📪 publisher disabled, signals will be persisted but not delivered")
	}
	return p
}

// Enabled reports whether outbound delivery is configured.
func (p *Publisher) Enabled() bool { return p.enabled }

// Health returns the delivery counters and the degraded flag.
func (p *Publisher) Health() HealthStatus {
	return HealthStatus{
		Sent:                p.sent.Load(),
		Failed:              p.failed.Load(),
		ConsecutiveFailures: p.consecutive.Load(),
		Degraded:            p.degraded.Load(),
	}
}

// recordFailure bumps the rolling consecutive-failure count. The third in a
// row flips the publisher to degraded, loudly and exactly once per episode.
func (p *Publisher) recordFailure() {
	p.failed.Add(1)
	if n := p.consecutive.Add(1); n >= persistentFailureThreshold && !p.degraded.Swap(true) {
		log.Error().Int64("consecutive_failures", n).
			Msg("🚑 publisher degraded, deliveries are failing persistently")
	}
}

func (p *Publisher) recordSuccess() {
	p.sent.Add(1)
	p.consecutive.Store(0)
	if p.degraded.Swap(false) {
		log.Info().Msg("publisher recovered")
	}
}

// PublishSignal persists the signal, then attempts delivery. A delivery
// failure is not an error to the caller; the signal stays pending and Flush
// picks it up later.
func (p *Publisher) PublishSignal(ctx context.Context, sig models.Signal) error {
	sig.DeliveryPending = true
	if p.store != nil {
		if err := p.store.SaveSignal(sig); err != nil {
			return fmt.Errorf("persist signal: %w", err)
		}
	}
	if !p.enabled {
		log.Info().Str("token", sig.Token).Float64("score", sig.Score).
			Msg("📋 signal recorded (publisher disabled)")
		return nil
	}

	msgID, err := p.send(ctx, FormatSignal(sig))
	if err != nil {
		p.recordFailure()
		log.Error().Err(err).Str("token", sig.Token).Msg("signal delivery failed, left pending")
		return nil
	}
	p.recordSuccess()
	if p.store != nil {
		if err := p.store.MarkDelivered(sig.ID, msgID); err != nil {
			log.Error().Err(err).Str("signal", sig.ID).Msg("mark delivered failed")
		}
	}
	log.Info().Str("token", sig.Token).Int64("message_id", msgID).Msg("📤 signal published")
	return nil
}

// PublishExitAlert sends a post-call drawdown warning. Exit alerts are
// time-sensitive; they are not persisted or replayed.
func (p *Publisher) PublishExitAlert(ctx context.Context, alert models.ExitAlert) error {
	if !p.enabled {
		log.Warn().Str("token", alert.Token).Float64("drop_pct", alert.DropPct).
			Msg("exit alert suppressed (publisher disabled)")
		return nil
	}
	if _, err := p.send(ctx, FormatExitAlert(alert)); err != nil {
		p.recordFailure()
		return fmt.Errorf("exit alert: %w", err)
	}
	p.recordSuccess()
	return nil
}

// Flush retries every pending signal. Called at startup and on shutdown.
func (p *Publisher) Flush(ctx context.Context) {
	if p.store == nil || !p.enabled {
		return
	}
	pending, err := p.store.PendingSignals()
	if err != nil {
		log.Error().Err(err).Msg("load pending signals")
		return
	}
	for _, sig := range pending {
		msgID, err := p.send(ctx, FormatSignal(sig))
		if err != nil {
			p.recordFailure()
			log.Warn().Err(err).Str("signal", sig.ID).Msg("pending signal still undeliverable")
			continue
		}
		p.recordSuccess()
		if err := p.store.MarkDelivered(sig.ID, msgID); err != nil {
			log.Error().Err(err).Str("signal", sig.ID).Msg("mark delivered failed")
		}
	}
}

// send posts one message with up to three attempts. Only transient failures
// (429, 5xx, network) are retried; a 400 or 403 will fail the same way every
// time.
func (p *Publisher) send(ctx context.Context, text string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(p.backoff):
			}
		}
		msgID, retryable, err := p.sendOnce(ctx, text)
		if err == nil {
			return msgID, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return 0, lastErr
}

func (p *Publisher) sendOnce(ctx context.Context, text string) (msgID int64, retryable bool, err error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"chat_id":                  p.cfg.TelegramChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	url := fmt.Sprintf("%s/bot%s/sendMessage", p.apiBase, p.cfg.TelegramBotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, true, fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, true, fmt.Errorf("telegram: decode response: %w", err)
	}
	if !body.OK {
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return 0, transient, fmt.Errorf("telegram: %d %s", resp.StatusCode, body.Description)
	}
	return body.Result.MessageID, false, nil
}
