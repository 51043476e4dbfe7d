package fetcher

import (
	"context"
	"fmt"
	"time"
)

// rugCheckSummary fetches the security report summary and normalizes the
// provider's raw score into [0,10]. Cached for the process lifetime once
// obtained; rug risk does not improve with age.
func (f *Fetcher) rugCheckSummary(ctx context.Context, address string) (RugScore, error) {
	url := fmt.Sprintf("%s/tokens/%s/report/summary", f.cfg.RugCheckAPI, address)

	var resp struct {
		Score           float64 `json:"score"`
		ScoreNormalised float64 `json:"score_normalised"`
		Risks           []struct {
			Name  string `json:"name"`
			Level string `json:"level"`
		} `json:"risks"`
	}
	if err := f.getJSON(ctx, ProviderRugCheck, url, &resp); err != nil {
		return RugScore{}, err
	}

	// score_normalised is 0-100 when present; raw score is open-ended.
	norm := resp.ScoreNormalised / 10
	if resp.ScoreNormalised == 0 && resp.Score > 0 {
		norm = resp.Score / 10
	}
	if norm > 10 {
		norm = 10
	}
	if norm < 0 {
		norm = 0
	}

	rs := RugScore{Address: address, Normalized: norm, FetchedAt: time.Now().UTC()}
	for _, r := range resp.Risks {
		rs.Risks = append(rs.Risks, r.Name)
	}
	return rs, nil
}
