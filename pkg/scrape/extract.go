package scrape

import (
	"regexp"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	solanaAddrRe = regexp.MustCompile(`\b([1-9A-HJ-NP-Za-km-z]{32,44})\b`)

	dexscreenerRe = regexp.MustCompile(`https?://(?:www\.)?dexscreener\.com/[^\s\)\]]+`)
	birdeyeRe     = regexp.MustCompile(`https?://(?:www\.)?birdeye\.so/[^\s\)\]]+`)
	pumpfunRe     = regexp.MustCompile(`https?://(?:www\.)?pump\.fun/[^\s\)\]]+`)
	photonRe      = regexp.MustCompile(`https?://(?:www\.)?photon-sol\.tinyastro\.io/[^\s\)\]]+`)
	gmgnRe        = regexp.MustCompile(`https?://(?:www\.)?gmgn\.ai/[^\s\)\]]+`)
	genericURLRe  = regexp.MustCompile(`https?://[^\s\)\]]+`)

	// Well-known addresses and words that match the base58 shape but are
	// never a fresh memecoin mint.
	falsePositives = map[string]bool{
		"So11111111111111111111111111111111111111112":  true, // wSOL
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": true, // USDC
		"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": true, // USDT
	}
)

// ExtractMints pulls candidate token mints out of a call message: contract
// addresses pasted bare plus addresses embedded in chart and trading links.
// Order is first-appearance; duplicates are collapsed.
func ExtractMints(text string) []string {
	var mints []string
	seen := make(map[string]bool)
	add := func(addr string) {
		if addr == "" || seen[addr] || falsePositives[addr] {
			return
		}
		seen[addr] = true
		mints = append(mints, addr)
	}

	// Typed links first; their path segment is the most reliable CA source.
	var links []string
	for _, re := range []*regexp.Regexp{dexscreenerRe, birdeyeRe, pumpfunRe, photonRe, gmgnRe} {
		links = append(links, re.FindAllString(text, -1)...)
	}
	for _, link := range links {
		add(mintFromLink(link))
	}

	// Strip every URL before scanning bare text, so path noise does not
	// produce fake addresses.
	clean := text
	for _, u := range genericURLRe.FindAllString(text, -1) {
		clean = strings.Replace(clean, u, " ", 1)
	}
	for _, addr := range solanaAddrRe.FindAllString(clean, -1) {
		if plausibleMint(addr) {
			add(addr)
		}
	}
	return mints
}

// mintFromLink takes the last path segment that looks like a base58 address.
func mintFromLink(link string) string {
	link = strings.TrimRight(link, "/.,!?")
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	parts := strings.Split(link, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		seg := parts[i]
		if solanaAddrRe.MatchString(seg) && plausibleMint(seg) {
			return seg
		}
	}
	return ""
}

// plausibleMint filters base58-shaped noise. The candidate must decode to a
// real 32-byte public key, and a case-uniform run that long is almost always
// a word, not an address.
func plausibleMint(addr string) bool {
	if _, err := solana.PublicKeyFromBase58(addr); err != nil {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, c := range addr {
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= '1' && c <= '9':
			hasDigit = true
		}
	}
	return (hasUpper && hasLower) || (hasDigit && (hasUpper || hasLower))
}
