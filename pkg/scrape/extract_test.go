package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/models"
)

const mint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func TestExtractMints(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			"bare address",
			"new gem just launched " + mint + " send it",
			[]string{mint},
		},
		{
			"dexscreener link",
			"chart: https://dexscreener.com/solana/" + mint,
			[]string{mint},
		},
		{
			"pump.fun link with query",
			"https://pump.fun/" + mint + "?ref=abc aping this",
			[]string{mint},
		},
		{
			"duplicate bare and link",
			mint + " https://dexscreener.com/solana/" + mint,
			[]string{mint},
		},
		{
			"wrapped sol filtered",
			"swap via So11111111111111111111111111111111111111112 lol",
			nil,
		},
		{
			"no address",
			"gm gm wagmi, big things coming 🚀",
			nil,
		},
		{
			"base58 shaped but not a real key",
			"ape FakeMintAaAaAaAaAaAaAaAaAaAaAaAaAa1 now",
			nil,
		},
		{
			"url noise not scanned as address",
			"read https://example.com/somelongpathsegmentthatlooksbase58ish",
			nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractMints(tc.text)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestGroupIDStableAndDistinct(t *testing.T) {
	a, b := GroupID("AlphaCalls"), GroupID("alphacalls")
	if a != b {
		t.Error("group id should be case-insensitive")
	}
	if GroupID("AlphaCalls") == GroupID("BetaCalls") {
		t.Error("distinct groups must get distinct ids")
	}
	if a < 0 {
		t.Error("group id must be non-negative")
	}
}

func TestParsePreview(t *testing.T) {
	body := `
<div class="tgme_widget_message" data-post="alphacalls/101"></div>
<div class="tgme_widget_message_text js-message_text">🚀 NEW CALL ` + mint + ` &amp; more</div>
<time datetime="2026-08-24T10:00:00+00:00"></time>
<div class="tgme_widget_message" data-post="alphacalls/102"></div>
<div class="tgme_widget_message_text js-message_text">gm frens</div>
<time datetime="2026-08-24T10:05:00+00:00"></time>`

	msgs := parsePreview(body)
	if len(msgs) != 2 {
		t.Fatalf("parsed %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != 101 || msgs[1].ID != 102 {
		t.Errorf("ids = %d,%d", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Timestamp.Hour() != 10 {
		t.Errorf("timestamp not parsed: %v", msgs[0].Timestamp)
	}
	if got := ExtractMints(msgs[0].Text); len(got) != 1 || got[0] != mint {
		t.Errorf("mint not recoverable from parsed text: %v", got)
	}
}

func TestScraperEmitsCallsOnce(t *testing.T) {
	page := `
<div class="tgme_widget_message" data-post="alphacalls/7"></div>
<div class="tgme_widget_message_text js-message_text">call: https://dexscreener.com/solana/` + mint + `</div>
<time datetime="2026-08-24T10:00:00+00:00"></time>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	cfg := &config.Config{
		CallGroups:         []string{"alphacalls"},
		ScrapePollInterval: 5 * time.Millisecond,
	}
	s := NewScraper(cfg)
	s.baseURL = srv.URL

	var mu sync.Mutex
	var events []models.TelegramCallEvent
	s.SetCallCallback(func(ev models.TelegramCallEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx) // several poll cycles over the same page

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1 (message seen once)", len(events))
	}
	ev := events[0]
	if ev.Token != mint || ev.GroupName != "alphacalls" || ev.MessageID != 7 {
		t.Errorf("bad event: %+v", ev)
	}
	if ev.GroupID != GroupID("alphacalls") {
		t.Error("group id mismatch")
	}
}
