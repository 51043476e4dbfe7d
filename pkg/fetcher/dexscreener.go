package fetcher

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// dexScreenerToken pulls the best pair for a mint from the DEX aggregator.
// When multiple pairs exist the one with the deepest liquidity wins.
func (f *Fetcher) dexScreenerToken(ctx context.Context, address string) (TokenData, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", f.cfg.DexScreenerAPI, address)

	var resp struct {
		Pairs []struct {
			BaseToken struct {
				Address string `json:"address"`
				Name    string `json:"name"`
				Symbol  string `json:"symbol"`
			} `json:"baseToken"`
			PriceUSD  string  `json:"priceUsd"`
			MarketCap float64 `json:"marketCap"`
			FDV       float64 `json:"fdv"`
			Liquidity struct {
				USD float64 `json:"usd"`
			} `json:"liquidity"`
			Volume struct {
				H24 float64 `json:"h24"`
			} `json:"volume"`
			Txns struct {
				H24 struct {
					Buys  int `json:"buys"`
					Sells int `json:"sells"`
				} `json:"h24"`
			} `json:"txns"`
			PriceChange struct {
				H1  float64 `json:"h1"`
				H6  float64 `json:"h6"`
				H24 float64 `json:"h24"`
			} `json:"priceChange"`
			Info struct {
				Websites []struct {
					URL string `json:"url"`
				} `json:"websites"`
				Socials []struct {
					Type string `json:"type"`
					URL  string `json:"url"`
				} `json:"socials"`
			} `json:"info"`
		} `json:"pairs"`
	}

	if err := f.getJSON(ctx, ProviderDexScreener, url, &resp); err != nil {
		return TokenData{}, err
	}
	if len(resp.Pairs) == 0 {
		return TokenData{}, &ProviderError{Provider: ProviderDexScreener, Status: 200, Err: fmt.Errorf("no pairs for %s", abbrev(address))}
	}

	best := resp.Pairs[0]
	for _, p := range resp.Pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}

	td := TokenData{
		Address:        address,
		Symbol:         best.BaseToken.Symbol,
		Name:           best.BaseToken.Name,
		PriceUSD:       parseFloat(best.PriceUSD),
		MarketCap:      best.MarketCap,
		LiquidityUSD:   best.Liquidity.USD,
		Volume24h:      best.Volume.H24,
		Buys24h:        best.Txns.H24.Buys,
		Sells24h:       best.Txns.H24.Sells,
		PriceChange1h:  best.PriceChange.H1,
		PriceChange6h:  best.PriceChange.H6,
		PriceChange24h: best.PriceChange.H24,
		FetchedAt:      time.Now().UTC(),
	}
	if td.MarketCap == 0 {
		td.MarketCap = best.FDV
	}
	if len(best.Info.Websites) > 0 {
		td.Website = best.Info.Websites[0].URL
	}
	for _, s := range best.Info.Socials {
		switch s.Type {
		case "twitter":
			td.Twitter = s.URL
		case "telegram":
			td.Telegram = s.URL
		}
	}
	return td, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
