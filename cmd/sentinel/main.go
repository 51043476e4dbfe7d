package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/calls"
	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/dashboard"
	"github.com/sentinel-engine/pkg/db"
	"github.com/sentinel-engine/pkg/engine"
	"github.com/sentinel-engine/pkg/fetcher"
	"github.com/sentinel-engine/pkg/ingress"
	"github.com/sentinel-engine/pkg/models"
	"github.com/sentinel-engine/pkg/monitor"
	"github.com/sentinel-engine/pkg/narrative"
	"github.com/sentinel-engine/pkg/publisher"
	"github.com/sentinel-engine/pkg/scrape"
	"github.com/sentinel-engine/pkg/tracker"
	"github.com/sentinel-engine/pkg/wallets"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	log.Info().Msg("🛰️ Sentinel starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config invalid")
	}

	store, err := db.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer store.Close()

	// Wallet registry: persisted rows first, config seed on top.
	registry := wallets.NewRegistry(store)
	if err := registry.Load(cfg); err != nil {
		log.Fatal().Err(err).Msg("wallet registry load failed")
	}

	credits := fetcher.NewCredits(cfg.CreditDailyBudget)
	fetch := fetcher.New(cfg, credits)

	callIdx := calls.NewIndex(calls.DefaultWindow)
	if recent, err := store.LoadRecentCalls(time.Now().Add(-calls.DefaultWindow)); err == nil {
		for _, ev := range recent {
			callIdx.Record(ev)
		}
		log.Info().Int("calls", len(recent)).Msg("📨 call index rehydrated")
	}

	narratives := narrative.NewIndex(cfg.NarrativeSnapshotPath)
	if err := narratives.Reload(); err != nil {
		log.Warn().Err(err).Msg("narrative snapshot unreadable, starting empty")
	}

	var predictor engine.Predictor
	if cfg.EnableMLPredictions {
		if tp, err := engine.LoadTablePredictor("predictor.json"); err != nil {
			log.Warn().Err(err).Msg("predictor table unreadable, ML bonus disabled")
		} else if tp != nil {
			predictor = tp
		}
	}

	scorer := engine.New(cfg, fetch, callIdx, narratives, predictor)
	trk := tracker.New(cfg, fetch, scorer, registry)
	trk.SetNarrativeMatcher(narratives)
	trk.SetSignalHistory(store)

	pub := publisher.New(cfg, store)
	postCall := monitor.New(cfg, fetch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dash := dashboard.NewServer(cfg, trk, store, credits, pub, wireIngress(ctx, store, callIdx, trk))
	hub := dash.Hub()

	// Signal path: tracker -> publisher + post-call monitor + websocket.
	trk.SetSignalCallback(func(sig models.Signal) {
		if err := pub.PublishSignal(ctx, sig); err != nil {
			log.Error().Err(err).Str("token", sig.Token).Msg("signal persist failed")
		}
		if postCall.Watch(ctx, sig) {
			trk.MarkMonitored(sig.Token)
		}
		hub.Broadcast("signal", sig)
	})
	trk.SetRetireCallback(func(address string, reason models.RetireReason) {
		postCall.Cancel(address)
		if err := store.RecordRetirement(address, reason); err != nil {
			log.Error().Err(err).Msg("record retirement failed")
		}
		hub.Broadcast("retired", map[string]string{"token": address, "reason": string(reason)})
	})
	postCall.SetAlertCallback(func(alert models.ExitAlert) {
		if err := pub.PublishExitAlert(ctx, alert); err != nil {
			log.Error().Err(err).Str("token", alert.Token).Msg("exit alert delivery failed")
		}
		if err := store.RecordExitAlert(alert); err != nil {
			log.Error().Err(err).Msg("record exit alert failed")
		}
		hub.Broadcast("exit_alert", alert)
	})

	// Scraper feeds the same path as webhook calls.
	scraper := scrape.NewScraper(cfg)
	scraper.SetCallCallback(func(ev models.TelegramCallEvent) {
		if callIdx.Record(ev) {
			if err := store.RecordTelegramCall(ev); err != nil {
				log.Error().Err(err).Msg("persist telegram call failed")
			}
			trk.Track(ctx, ev.Token, models.SourceTelegramCall)
		}
	})

	// Retry anything a previous run failed to deliver.
	pub.Flush(ctx)

	cronRunner := startCron(cfg, fetch, callIdx, narratives, credits)
	defer cronRunner.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down...")
		cancel()
	}()

	errCh := make(chan error, 4)
	go func() { errCh <- scraper.Run(ctx) }()
	go func() { errCh <- dash.Run() }()
	if cfg.DashboardTUI {
		tui := dashboard.NewTUI(trk)
		go func() { errCh <- tui.Run() }()
	}

	printBanner(cfg, registry, pub)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("component failed")
		}
		cancel()
	}

	trk.Stop()
	postCall.Stop()
	// Last chance for anything still pending before the process ends.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pub.Flush(flushCtx)
	flushCancel()

	log.Info().Msg("goodbye 👋")
}

// wireIngress connects webhook events to persistence, the call index and
// tracker admission.
func wireIngress(ctx context.Context, store *db.Store, callIdx *calls.Index, trk *tracker.Tracker) *ingress.Ingress {
	ing := ingress.New()
	ing.SetBuyCallback(func(ev models.KOLBuyEvent) {
		if err := store.RecordKOLBuy(ev); err != nil {
			log.Error().Err(err).Msg("persist kol buy failed")
		}
		trk.RecordKOLBuy(ctx, ev)
	})
	ing.SetCallCallback(func(ev models.TelegramCallEvent) {
		if callIdx.Record(ev) {
			if err := store.RecordTelegramCall(ev); err != nil {
				log.Error().Err(err).Msg("persist telegram call failed")
			}
			trk.Track(ctx, ev.Token, models.SourceTelegramCall)
		}
	})
	return ing
}

func startCron(cfg *config.Config, fetch *fetcher.Fetcher, callIdx *calls.Index, narratives *narrative.Index, credits *fetcher.Credits) *cron.Cron {
	c := cron.New()

	c.AddFunc(cfg.NarrativeReloadCron, func() {
		if err := narratives.Reload(); err != nil {
			log.Warn().Err(err).Msg("narrative reload failed")
		}
	})
	c.AddFunc("@every 1m", fetch.SweepCaches)
	c.AddFunc("@every 10m", func() { callIdx.Prune() })
	c.AddFunc("@daily", func() {
		log.Info().Int64("used", credits.Total()).Msg("💳 daily credit counters reset")
		credits.Reset()
	})

	c.Start()
	return c
}

func printBanner(cfg *config.Config, registry *wallets.Registry, pub *publisher.Publisher) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("\n  🛰️  SENTINEL — memecoin signal engine")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Component", "Status"})
	table.SetBorder(false)

	pubStatus := color.GreenString("enabled")
	if !pub.Enabled() {
		pubStatus = color.YellowString("disabled (persist only)")
	}
	table.Append([]string{"Publisher", pubStatus})
	table.Append([]string{"Curated wallets", strconv.Itoa(registry.Len())})
	table.Append([]string{"Call groups", strconv.Itoa(len(cfg.CallGroups))})
	table.Append([]string{"Thresholds", fmt.Sprintf("%d pre-grad / %d post-grad", cfg.MinConvictionScore, cfg.PostGradThreshold)})
	table.Append([]string{"Dashboard", fmt.Sprintf("http://localhost:%d", cfg.DashboardPort)})
	table.Render()
	fmt.Println()
}
