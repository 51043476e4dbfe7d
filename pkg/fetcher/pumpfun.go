package fetcher

import (
	"context"
	"fmt"
	"time"
)

// Graduation target on the launchpad curve: ~85 SOL of real reserves.
const graduationSolTarget = 85.0

// pumpFunCurve fetches bonding-curve state from the launchpad frontend API.
// Pre-graduation tokens hit this every poll, so the cache TTL is 5 seconds.
func (f *Fetcher) pumpFunCurve(ctx context.Context, address string) (BondingCurve, error) {
	url := fmt.Sprintf("%s/coins/%s", f.cfg.PumpFunAPI, address)

	var resp struct {
		Mint                 string  `json:"mint"`
		Complete             bool    `json:"complete"`
		VirtualSolReserves   float64 `json:"virtual_sol_reserves"`
		VirtualTokenReserves float64 `json:"virtual_token_reserves"`
		RealSolReserves      float64 `json:"real_sol_reserves"`
		HolderCount          int     `json:"holder_count"`
		UniqueBuyers         int     `json:"unique_buyers"`
		CreatedTimestamp     int64   `json:"created_timestamp"` // ms
	}
	if err := f.getJSON(ctx, ProviderPumpFun, url, &resp); err != nil {
		return BondingCurve{}, err
	}

	bc := BondingCurve{
		Address:           address,
		Graduated:         resp.Complete,
		VirtualSolReserve: resp.VirtualSolReserves / 1e9,
		VirtualTokReserve: resp.VirtualTokenReserves,
		HolderCount:       resp.HolderCount,
		UniqueBuyers:      resp.UniqueBuyers,
		FetchedAt:         time.Now().UTC(),
	}
	if resp.CreatedTimestamp > 0 {
		bc.CreatedAt = time.UnixMilli(resp.CreatedTimestamp).UTC()
	}

	if resp.Complete {
		bc.ProgressPct = 100
	} else if resp.RealSolReserves > 0 {
		pct := resp.RealSolReserves / 1e9 / graduationSolTarget * 100
		if pct > 99.9 {
			pct = 99.9
		}
		bc.ProgressPct = pct
	}
	return bc, nil
}
