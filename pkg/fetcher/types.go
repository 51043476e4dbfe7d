package fetcher

import "time"

// TokenData is the aggregated market view of one token. Primary source is the
// DEX aggregator; name/symbol holes are filled from the metadata cache. A
// provider failure produces a partial value with SourceError set instead of an
// error; the engine's data-quality gate rejects it downstream.
type TokenData struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`

	PriceUSD     float64 `json:"price_usd"`
	MarketCap    float64 `json:"market_cap"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	Volume24h    float64 `json:"volume_24h"`

	Buys24h  int `json:"buys_24h"`
	Sells24h int `json:"sells_24h"`

	PriceChange1h  float64 `json:"price_change_1h"`
	PriceChange6h  float64 `json:"price_change_6h"`
	PriceChange24h float64 `json:"price_change_24h"`

	Website  string `json:"website,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`

	SourceError string    `json:"source_error,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// BuyPercentage returns buys/(buys+sells) in percent, or 0 with no activity.
func (t TokenData) BuyPercentage() float64 {
	total := t.Buys24h + t.Sells24h
	if total == 0 {
		return 0
	}
	return float64(t.Buys24h) / float64(total) * 100
}

type Metadata struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Description string    `json:"description"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type BondingCurve struct {
	Address           string    `json:"address"`
	ProgressPct       float64   `json:"progress_pct"`
	VirtualSolReserve float64   `json:"virtual_sol_reserves"`
	VirtualTokReserve float64   `json:"virtual_token_reserves"`
	Graduated         bool      `json:"graduated"`
	HolderCount       int       `json:"holder_count"`
	UniqueBuyers      int       `json:"unique_buyers"`
	CreatedAt         time.Time `json:"created_at"`
	FetchedAt         time.Time `json:"fetched_at"`
}

type HolderDistribution struct {
	Address     string    `json:"address"`
	HolderCount int       `json:"holder_count"`
	Top10Pct    float64   `json:"top10_pct"`
	Top3Pct     float64   `json:"top3_pct"`
	Top1Pct     float64   `json:"top1_pct"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// RugScore is the security-provider risk normalized into [0,10].
// 0 = clean, 10 = certain rug. Cached per token for the process lifetime.
type RugScore struct {
	Address    string    `json:"address"`
	Normalized float64   `json:"normalized"`
	Risks      []string  `json:"risks,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}
