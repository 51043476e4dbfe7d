package scrape

import (
	"context"
	"fmt"
	"hash/fnv"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/models"
)

// Scraper polls public call groups through their t.me/s web preview pages.
// No Telegram account or API credentials needed; the preview shows the last
// ~20 messages of any public group.
type Scraper struct {
	cfg    *config.Config
	client *http.Client

	mu   sync.Mutex
	seen map[string]bool // "channel/msgid"

	baseURL string // overridable for tests

	onCall func(models.TelegramCallEvent)
}

func NewScraper(cfg *config.Config) *Scraper {
	return &Scraper{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		seen:    make(map[string]bool),
		baseURL: "https://t.me",
	}
}

// SetCallCallback wires the call index and tracker admission.
func (s *Scraper) SetCallCallback(fn func(models.TelegramCallEvent)) { s.onCall = fn }

// Run polls every configured group until the context ends.
func (s *Scraper) Run(ctx context.Context) error {
	if len(s.cfg.CallGroups) == 0 {
		log.Info().Msg("📨 no call groups configured, scraper idle")
		<-ctx.Done()
		return ctx.Err()
	}

	log.Info().Strs("groups", s.cfg.CallGroups).Msg("📨 call-group scraper started")

	ticker := time.NewTicker(s.cfg.ScrapePollInterval)
	defer ticker.Stop()

	s.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pollAll(ctx)
		}
	}
}

func (s *Scraper) pollAll(ctx context.Context) {
	for _, group := range s.cfg.CallGroups {
		if ctx.Err() != nil {
			return
		}
		msgs, err := s.fetchMessages(ctx, group)
		if err != nil {
			log.Debug().Err(err).Str("group", group).Msg("call group fetch error")
			continue
		}

		newCalls := 0
		for _, msg := range msgs {
			key := group + "/" + strconv.FormatInt(msg.ID, 10)
			s.mu.Lock()
			dup := s.seen[key]
			if !dup {
				s.seen[key] = true
			}
			s.mu.Unlock()
			if dup {
				continue
			}
			newCalls += s.processMessage(group, msg)
		}
		if newCalls > 0 {
			log.Info().Str("group", group).Int("calls", newCalls).Msg("📨 new calls scraped")
		}
	}
}

func (s *Scraper) processMessage(group string, msg tgMessage) int {
	mints := ExtractMints(msg.Text)
	if len(mints) == 0 {
		return 0
	}
	for _, mint := range mints {
		ev := models.TelegramCallEvent{
			Token:     mint,
			GroupID:   GroupID(group),
			GroupName: group,
			MessageID: msg.ID,
			Timestamp: msg.Timestamp,
		}
		if s.onCall != nil {
			s.onCall(ev)
		}
	}
	return len(mints)
}

type tgMessage struct {
	ID        int64
	Text      string
	Timestamp time.Time
}

var (
	msgIDRe   = regexp.MustCompile(`data-post="[^/]+/(\d+)"`)
	msgTextRe = regexp.MustCompile(`<div class="tgme_widget_message_text[^"]*"[^>]*>(.*?)</div>`)
	timeRe    = regexp.MustCompile(`datetime="([^"]+)"`)
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
)

func (s *Scraper) fetchMessages(ctx context.Context, group string) ([]tgMessage, error) {
	url := fmt.Sprintf("%s/s/%s", s.baseURL, group)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return parsePreview(string(body)), nil
}

// parsePreview pulls (id, text, time) triples out of the web preview HTML.
// The page is stable enough that three regexes beat a full HTML parser.
func parsePreview(body string) []tgMessage {
	ids := msgIDRe.FindAllStringSubmatch(body, -1)
	texts := msgTextRe.FindAllStringSubmatch(body, -1)
	times := timeRe.FindAllStringSubmatch(body, -1)

	var msgs []tgMessage
	for i := 0; i < len(ids) && i < len(texts); i++ {
		id, err := strconv.ParseInt(ids[i][1], 10, 64)
		if err != nil {
			continue
		}
		text := htmlTagRe.ReplaceAllString(texts[i][1], " ")
		text = html.UnescapeString(text)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		var ts time.Time
		if i < len(times) {
			ts, _ = time.Parse(time.RFC3339, times[i][1])
		}
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		msgs = append(msgs, tgMessage{ID: id, Text: text, Timestamp: ts})
	}
	return msgs
}

// GroupID derives a stable numeric id from the public group name. The web
// preview never exposes the real chat id, and the call index only needs
// distinctness.
func GroupID(group string) int64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(group)))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
