package publisher

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sentinel-engine/pkg/models"
)

// Telegram caps a message at 4096 characters.
const maxMessageLen = 4096

// FormatSignal renders the call message. HTML parse mode; keep the structure
// scannable on a phone.
func FormatSignal(sig models.Signal) string {
	var b strings.Builder

	head := "🚨 <b>SENTINEL CALL</b>"
	if sig.Breakdown.EarlyTriggered {
		head = "⚡ <b>SENTINEL EARLY CALL</b>"
	}
	fmt.Fprintf(&b, "%s — <b>$%s</b>\n", head, escape(sig.Symbol))
	if sig.Name != "" && sig.Name != sig.Symbol {
		fmt.Fprintf(&b, "%s\n", escape(sig.Name))
	}
	fmt.Fprintf(&b, "<code>%s</code>\n\n", sig.Token)

	fmt.Fprintf(&b, "📊 Conviction: <b>%.0f</b> / %.0f\n", sig.Score, sig.Breakdown.Threshold)
	fmt.Fprintf(&b, "💰 MCAP: $%s | LP: $%s\n", compact(sig.MarketCap), compact(sig.EntryLiquidity))
	fmt.Fprintf(&b, "📈 Vol 24h: $%s | Buys: %.0f%%\n", compact(sig.Volume24h), sig.BuyPercentage)
	if sig.BondingProgress > 0 && sig.BondingProgress < 100 {
		fmt.Fprintf(&b, "🎢 Bonding: %.1f%%\n", sig.BondingProgress)
	}

	if len(sig.KOLWallets) > 0 {
		b.WriteString("\n👥 <b>Smart money in:</b>\n")
		for i, w := range sig.KOLWallets {
			if i == 5 {
				fmt.Fprintf(&b, "   …and %d more\n", len(sig.KOLWallets)-5)
				break
			}
			name := w.DisplayName
			if name == "" {
				name = shortAddr(w.Address)
			}
			fmt.Fprintf(&b, "   %s %s\n", w.Tier.Badge(), escape(name))
		}
	}

	if len(sig.Narratives) > 0 {
		fmt.Fprintf(&b, "\n🗞️ %s\n", escape(strings.Join(sig.Narratives, "; ")))
	}

	if tops := topComponents(sig.Breakdown, 3); len(tops) > 0 {
		b.WriteString("\n🧮 <b>Top factors:</b>\n")
		for _, c := range tops {
			fmt.Fprintf(&b, "   %s +%.0f\n", componentLabel(c.Name), c.Points)
		}
	}

	fmt.Fprintf(&b, "\n🔗 <a href=\"https://dexscreener.com/solana/%s\">Chart</a>", sig.Token)
	fmt.Fprintf(&b, " | <a href=\"https://pump.fun/%s\">Pump</a>", sig.Token)
	fmt.Fprintf(&b, " | <a href=\"https://solscan.io/token/%s\">Scan</a>", sig.Token)

	return truncate(b.String())
}

// FormatExitAlert renders the post-call drawdown warning.
func FormatExitAlert(a models.ExitAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ <b>EXIT WATCH</b> — <b>$%s</b>\n", escape(a.Symbol))
	fmt.Fprintf(&b, "<code>%s</code>\n\n", a.Token)
	fmt.Fprintf(&b, "📉 Down <b>%.1f%%</b> from call price within %s\n", -a.DropPct, a.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Call: $%.8f → Now: $%.8f\n", a.SignalPrice, a.ObservedPrice)
	fmt.Fprintf(&b, "\n🔗 <a href=\"https://dexscreener.com/solana/%s\">Chart</a>", a.Token)
	return truncate(b.String())
}

func topComponents(b models.ScoreBreakdown, n int) []models.ScoreComponent {
	pos := b.Positives() // ascending
	var out []models.ScoreComponent
	for i := len(pos) - 1; i >= 0 && len(out) < n; i-- {
		if pos[i].Points > 0 {
			out = append(out, pos[i])
		}
	}
	return out
}

func componentLabel(name string) string {
	switch name {
	case models.CompSmartWallets:
		return "Smart wallets"
	case models.CompTelegramCalls:
		return "Group calls"
	case models.CompNarrative:
		return "Narrative"
	case models.CompBuyPressure:
		return "Buy pressure"
	case models.CompVolumeVelocity:
		return "Volume velocity"
	case models.CompMomentum:
		return "Momentum"
	case models.CompVolLiquidity:
		return "Vol/LP"
	case models.CompUniqueBuyers:
		return "Unique buyers"
	case models.CompMLBonus:
		return "Model"
	case models.CompConvergence:
		return "KOL convergence"
	}
	return name
}

func compact(v float64) string {
	switch {
	case v >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", v/1_000_000_000)
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", v/1_000)
	}
	return fmt.Sprintf("%.0f", v)
}

func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-4:]
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := maxMessageLen - len("…")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
