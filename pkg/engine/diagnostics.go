package engine

import (
	"sort"

	"github.com/sentinel-engine/pkg/models"
)

// Headroom per component: how many points each could still contribute. Used
// to rank what a near-miss token is most lacking.
var componentCeilings = map[string]float64{
	models.CompSmartWallets:   smartWalletCap,
	models.CompTelegramCalls:  callCap,
	models.CompNarrative:      25,
	models.CompBuyPressure:    20,
	models.CompVolumeVelocity: 10,
	models.CompMomentum:       10,
	models.CompVolLiquidity:   10,
	models.CompUniqueBuyers:   15,
}

var componentAdvice = map[string]string{
	models.CompSmartWallets:   "no curated wallets in yet; wait for a tracked buyer",
	models.CompTelegramCalls:  "no third-party group calls recorded",
	models.CompNarrative:      "token matches no hot narrative",
	models.CompBuyPressure:    "buy pressure is weak or activity too thin",
	models.CompVolumeVelocity: "volume is low relative to market cap",
	models.CompMomentum:       "price momentum has stalled",
	models.CompVolLiquidity:   "volume is thin relative to liquidity",
	models.CompUniqueBuyers:   "unique buyer count still low",
}

// diagnose builds the why-no-signal report for a near miss: the three
// components with the most unrealized headroom, every penalty that applied,
// and operator-facing recommendations.
func (e *Engine) diagnose(b *models.ScoreBreakdown, in Input) *models.Diagnostic {
	d := &models.Diagnostic{Penalties: b.Penalties()}

	type gap struct {
		name     string
		headroom float64
	}
	var gaps []gap
	for name, ceiling := range componentCeilings {
		if have := b.Component(name); ceiling-have > 0 {
			gaps = append(gaps, gap{name, ceiling - have})
		}
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].headroom > gaps[j].headroom })
	if len(gaps) > 3 {
		gaps = gaps[:3]
	}
	for _, g := range gaps {
		d.MissingComponents = append(d.MissingComponents, models.ScoreComponent{
			Name:   g.name,
			Points: b.Component(g.name),
		})
		if advice, ok := componentAdvice[g.name]; ok {
			d.Recommendations = append(d.Recommendations, advice)
		}
	}

	if b.MCAPCapped {
		d.Recommendations = append(d.Recommendations, "market cap above the signal cap; entry too late")
	}
	if b.Component(models.CompHolders) < 0 {
		d.Recommendations = append(d.Recommendations, "holder concentration penalty active; watch for distribution")
	}
	if b.Component(models.CompRugRisk) < 0 {
		d.Recommendations = append(d.Recommendations, "security scan flagged risks")
	}
	if b.Component(models.CompSmartWallets) <= 0 && b.Component(models.CompTelegramCalls) <= 0 {
		d.Recommendations = append(d.Recommendations, "score rests on market metrics only; a guarded component is required to signal")
	}
	return d
}
