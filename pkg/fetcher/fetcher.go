package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/config"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
	callTimeout    = 10 * time.Second
)

// Fetcher exposes one coherent view of a token's external state while hiding
// provider heterogeneity. Each data kind has its own cache and TTL; every
// cache miss records a credit charge.
type Fetcher struct {
	cfg     *config.Config
	client  *http.Client
	credits *Credits

	tokenCache   *ttlCache[TokenData]
	metaCache    *ttlCache[Metadata]
	bondingCache *ttlCache[BondingCurve]
	holdersCache *ttlCache[HolderDistribution]
	rugCache     *ttlCache[RugScore] // process-lifetime TTL

	batcher *metadataBatcher
}

func New(cfg *config.Config, credits *Credits) *Fetcher {
	f := &Fetcher{
		cfg:          cfg,
		client:       &http.Client{Timeout: callTimeout},
		credits:      credits,
		tokenCache:   newTTLCache[TokenData](cfg.TokenDataTTL),
		metaCache:    newTTLCache[Metadata](cfg.MetadataTTL),
		bondingCache: newTTLCache[BondingCurve](cfg.BondingCurveTTL),
		holdersCache: newTTLCache[HolderDistribution](cfg.HoldersTTL),
		rugCache:     newTTLCache[RugScore](365 * 24 * time.Hour),
	}
	f.batcher = newMetadataBatcher(f)
	return f
}

func (f *Fetcher) Credits() *Credits { return f.credits }

// GetTokenData aggregates price, market cap, liquidity, volume, txn counts and
// price changes. DEX aggregator is primary; name/symbol holes are filled from
// the metadata cache without charging credits. On hard provider failure the
// returned value is a zero snapshot with SourceError set, never an error.
func (f *Fetcher) GetTokenData(ctx context.Context, address string) TokenData {
	td, _, err := f.tokenCache.GetOrFetch(address, func() (TokenData, error) {
		f.credits.Charge(ProviderDexScreener, CostTokenData)
		return f.dexScreenerToken(ctx, address)
	})
	if err != nil {
		log.Debug().Err(err).Str("token", abbrev(address)).Msg("token data fetch failed")
		return TokenData{Address: address, SourceError: err.Error(), FetchedAt: time.Now().UTC()}
	}
	if td.Symbol == "" || td.Name == "" {
		if meta, ok := f.metaCache.Peek(address); ok {
			if td.Symbol == "" {
				td.Symbol = meta.Symbol
			}
			if td.Name == "" {
				td.Name = meta.Name
			}
		}
	}
	return td
}

// GetMetadata returns name/symbol/description. Misses are coalesced into
// batch calls by the metadata batcher (up to 100 addresses per upstream call).
func (f *Fetcher) GetMetadata(ctx context.Context, address string) (Metadata, error) {
	if meta, ok := f.metaCache.Peek(address); ok {
		return meta, nil
	}
	return f.batcher.Get(ctx, address)
}

func (f *Fetcher) GetBondingCurve(ctx context.Context, address string) (BondingCurve, error) {
	bc, _, err := f.bondingCache.GetOrFetch(address, func() (BondingCurve, error) {
		f.credits.Charge(ProviderPumpFun, CostBondingCurve)
		return f.pumpFunCurve(ctx, address)
	})
	return bc, err
}

// GetHolders is the most expensive call (10 credits per miss) and is only
// reached through the engine's paid-enrichment gate. It refuses fresh misses
// once the provider budget is exhausted; cached values keep flowing.
func (f *Fetcher) GetHolders(ctx context.Context, address string) (HolderDistribution, error) {
	if hd, ok := f.holdersCache.Peek(address); ok {
		return hd, nil
	}
	if f.credits.Exhausted(ProviderHelius) {
		return HolderDistribution{}, fmt.Errorf("helius credit budget exhausted")
	}
	hd, _, err := f.holdersCache.GetOrFetch(address, func() (HolderDistribution, error) {
		f.credits.Charge(ProviderHelius, CostHolders)
		return f.heliusHolders(ctx, address)
	})
	return hd, err
}

// PeekHolders exposes the previous cached observation, used for the
// improving-distribution bonus. No upstream call, no charge.
func (f *Fetcher) PeekHolders(address string) (HolderDistribution, bool) {
	return f.holdersCache.Peek(address)
}

func (f *Fetcher) GetRugCheck(ctx context.Context, address string) (RugScore, error) {
	rs, _, err := f.rugCache.GetOrFetch(address, func() (RugScore, error) {
		f.credits.Charge(ProviderRugCheck, CostRugCheck)
		return f.rugCheckSummary(ctx, address)
	})
	return rs, err
}

// GetPrice is the monitor's cheap price probe: token-data path with its own
// shorter timeout.
func (f *Fetcher) GetPrice(ctx context.Context, address string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	td := f.GetTokenData(ctx, address)
	if td.SourceError != "" {
		return 0, fmt.Errorf("price probe: %s", td.SourceError)
	}
	return td.PriceUSD, nil
}

// SweepCaches drops expired entries from every cache. Wired to a cron job.
func (f *Fetcher) SweepCaches() {
	dropped := f.tokenCache.Sweep() + f.metaCache.Sweep() + f.bondingCache.Sweep() + f.holdersCache.Sweep()
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("cache sweep")
	}
}

// ── HTTP plumbing ───────────────────────────────────────────

// ProviderError carries the HTTP status so callers can classify
// transient (retry) vs permanent (gate) failures.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient errors are retried: network failures, 429, 5xx.
func (e *ProviderError) Transient() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// getJSON performs a GET with bounded retry: 3 attempts, exponential backoff
// 200/400/800 ms, doubled after an explicit 429. Permanent 4xx fails fast.
func (f *Fetcher) getJSON(ctx context.Context, provider, url string, out interface{}) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := f.doJSON(ctx, provider, url, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var pe *ProviderError
		if !asProviderError(err, &pe) || !pe.Transient() {
			return err
		}
		if pe.Status == http.StatusTooManyRequests {
			backoff *= 2
		}
	}
	return lastErr
}

func (f *Fetcher) doJSON(ctx context.Context, provider, url string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &ProviderError{Provider: provider, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: provider, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (f *Fetcher) postJSON(ctx context.Context, provider, url string, payload, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &ProviderError{Provider: provider, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return &ProviderError{Provider: provider, Err: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Provider: provider, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func asProviderError(err error, target **ProviderError) bool {
	for err != nil {
		if pe, ok := err.(*ProviderError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func abbrev(addr string) string {
	if len(addr) > 12 {
		return addr[:6] + "..." + addr[len(addr)-4:]
	}
	return addr
}
