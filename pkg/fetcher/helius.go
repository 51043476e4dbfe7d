package fetcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	batchWindow  = time.Second
	batchMaxSize = 100
)

// ── Metadata (batched) ──────────────────────────────────────

type metaResult struct {
	meta Metadata
	err  error
}

// metadataBatcher coalesces metadata misses arriving within a 1-second window
// into one getAssetBatch call (up to 100 addresses). Each flushed call charges
// one credit; a request that ends up alone in its window costs the solo rate.
type metadataBatcher struct {
	f *Fetcher

	mu      sync.Mutex
	pending map[string][]chan metaResult
	timer   *time.Timer
}

func newMetadataBatcher(f *Fetcher) *metadataBatcher {
	return &metadataBatcher{f: f, pending: make(map[string][]chan metaResult)}
}

func (b *metadataBatcher) Get(ctx context.Context, address string) (Metadata, error) {
	ch := make(chan metaResult, 1)

	b.mu.Lock()
	b.pending[address] = append(b.pending[address], ch)
	if len(b.pending) >= batchMaxSize {
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		go b.flush()
	} else if b.timer == nil {
		b.timer = time.AfterFunc(batchWindow, func() {
			b.mu.Lock()
			b.timer = nil
			b.mu.Unlock()
			b.flush()
		})
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	case r := <-ch:
		return r.meta, r.err
	}
}

func (b *metadataBatcher) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string][]chan metaResult)
	b.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	addrs := make([]string, 0, len(pending))
	for a := range pending {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	cost := int64(CostMetadataBatch)
	if len(addrs) == 1 {
		cost = CostMetadataSolo
	}
	b.f.credits.Charge(ProviderHelius, cost)

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	results, err := b.f.heliusAssetBatch(ctx, addrs)
	if err != nil {
		log.Warn().Err(err).Int("addrs", len(addrs)).Msg("metadata batch failed")
	}

	for addr, waiters := range pending {
		r := metaResult{err: err}
		if err == nil {
			meta, ok := results[addr]
			if !ok {
				r.err = fmt.Errorf("no metadata for %s", abbrev(addr))
			} else {
				b.f.metaCache.Put(addr, meta)
				r.meta = meta
			}
		}
		for _, ch := range waiters {
			ch <- r
		}
	}
}

// heliusAssetBatch resolves up to 100 mints via the DAS getAssetBatch method.
func (f *Fetcher) heliusAssetBatch(ctx context.Context, addrs []string) (map[string]Metadata, error) {
	url := fmt.Sprintf("%s/?api-key=%s", f.cfg.HeliusRPCURL, f.cfg.HeliusAPIKey)

	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "sentinel-meta",
		"method":  "getAssetBatch",
		"params":  map[string]interface{}{"ids": addrs},
	}

	var resp struct {
		Result []struct {
			ID      string `json:"id"`
			Content struct {
				Metadata struct {
					Name        string `json:"name"`
					Symbol      string `json:"symbol"`
					Description string `json:"description"`
				} `json:"metadata"`
			} `json:"content"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := f.postJSON(ctx, ProviderHelius, url, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ProviderError{Provider: ProviderHelius, Status: 200,
			Err: fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)}
	}

	now := time.Now().UTC()
	out := make(map[string]Metadata, len(resp.Result))
	for _, a := range resp.Result {
		if a.ID == "" {
			continue
		}
		out[a.ID] = Metadata{
			Address:     a.ID,
			Name:        a.Content.Metadata.Name,
			Symbol:      a.Content.Metadata.Symbol,
			Description: a.Content.Metadata.Description,
			FetchedAt:   now,
		}
	}
	return out, nil
}

// ── Holder distribution ─────────────────────────────────────

// heliusHolders walks the token-accounts pages for a mint and derives the
// concentration figures the engine penalizes on. One logical call, 10 credits.
func (f *Fetcher) heliusHolders(ctx context.Context, address string) (HolderDistribution, error) {
	url := fmt.Sprintf("%s/?api-key=%s", f.cfg.HeliusRPCURL, f.cfg.HeliusAPIKey)

	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "sentinel-holders",
		"method":  "getTokenAccounts",
		"params": map[string]interface{}{
			"mint":  address,
			"limit": 1000,
		},
	}

	var resp struct {
		Result struct {
			TokenAccounts []struct {
				Owner  string  `json:"owner"`
				Amount float64 `json:"amount"`
			} `json:"token_accounts"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := f.postJSON(ctx, ProviderHelius, url, payload, &resp); err != nil {
		return HolderDistribution{}, err
	}
	if resp.Error != nil {
		return HolderDistribution{}, &ProviderError{Provider: ProviderHelius, Status: 200,
			Err: fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)}
	}

	// Aggregate per owner: one holder may hold through several token accounts.
	byOwner := make(map[string]float64)
	var supply float64
	for _, acc := range resp.Result.TokenAccounts {
		if acc.Amount <= 0 {
			continue
		}
		byOwner[acc.Owner] += acc.Amount
		supply += acc.Amount
	}

	balances := make([]float64, 0, len(byOwner))
	for _, amt := range byOwner {
		balances = append(balances, amt)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(balances)))

	hd := HolderDistribution{
		Address:     address,
		HolderCount: len(balances),
		FetchedAt:   time.Now().UTC(),
	}
	if supply > 0 {
		hd.Top1Pct = topShare(balances, 1) / supply * 100
		hd.Top3Pct = topShare(balances, 3) / supply * 100
		hd.Top10Pct = topShare(balances, 10) / supply * 100
	}
	return hd, nil
}

func topShare(sorted []float64, n int) float64 {
	var sum float64
	for i := 0; i < n && i < len(sorted); i++ {
		sum += sorted[i]
	}
	return sum
}
