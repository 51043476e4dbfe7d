package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the single validated knob set for the whole process. Every
// component receives it at construction; there are no hidden singletons.
type Config struct {
	// Providers
	HeliusAPIKey   string
	HeliusRPCURL   string
	DexScreenerAPI string
	PumpFunAPI     string
	RugCheckAPI    string

	// Telegram outbound (publisher)
	TelegramBotToken string
	TelegramChatID   string

	// Telegram call scraping (t.me/s web preview)
	CallGroups         []string
	ScrapePollInterval time.Duration

	// Conviction thresholds
	MinConvictionScore int
	PostGradThreshold  int

	// Polling cadence
	InitialInterval time.Duration
	InitialDuration time.Duration
	NormalInterval  time.Duration
	SlowInterval    time.Duration
	StuckThreshold  int
	MaxTokenAge     time.Duration

	// Signaled tokens live on their own clock
	PostSignalMaxAge time.Duration

	// Early kill
	EarlyKillMinNewBuyers int
	EarlyKillWindow       time.Duration
	EarlyKillBondingPct   float64

	// Early trigger
	EarlyTriggerBondingPct  float64
	EarlyTriggerMinBuyers   int
	EarlyTriggerGracePoints float64

	// MCAP cap
	MaxMCAPPreGrad  float64
	MaxMCAPPostGrad float64

	// Multi-KOL convergence
	MultiKOLWindow   time.Duration
	MultiKOLMinCount int

	// Post-call monitor
	ExitAlertThresholdPct float64
	MonitoringDuration    time.Duration
	MonitorCheckInterval  time.Duration

	// Cache TTLs
	MetadataTTL     time.Duration
	HoldersTTL      time.Duration
	BondingCurveTTL time.Duration
	TokenDataTTL    time.Duration

	// Credit budget (per provider, per day; 0 = unlimited)
	CreditDailyBudget int64

	// Feature flags
	EnableNarratives        bool
	EnableTelegramCalls     bool
	EnableMLPredictions     bool
	EnableRealtimeNarrative bool
	EnableDevSellDetection  bool

	// Narrative snapshot
	NarrativeSnapshotPath string
	NarrativeReloadCron   string

	// Curated wallet seed: "addr:tier:name:winrate,addr:tier,..."
	SeedWallets []SeedWallet

	// Storage
	DBPath string

	// Dashboard
	DashboardPort int
	DashboardTUI  bool
}

type SeedWallet struct {
	Address string
	Tier    string
	Name    string
	WinRate float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HeliusAPIKey:   os.Getenv("HELIUS_API_KEY"),
		HeliusRPCURL:   envOr("HELIUS_RPC_URL", "https://mainnet.helius-rpc.com"),
		DexScreenerAPI: envOr("DEXSCREENER_API", "https://api.dexscreener.com"),
		PumpFunAPI:     envOr("PUMPFUN_API", "https://frontend-api.pump.fun"),
		RugCheckAPI:    envOr("RUGCHECK_API", "https://api.rugcheck.xyz/v1"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		CallGroups:         splitTrim(os.Getenv("CALL_GROUPS")),
		ScrapePollInterval: time.Duration(envInt("SCRAPE_POLL_INTERVAL", 30)) * time.Second,

		MinConvictionScore: envInt("MIN_CONVICTION_SCORE", 45),
		PostGradThreshold:  envInt("POST_GRAD_THRESHOLD", 75),

		InitialInterval: time.Duration(envInt("POLL_INITIAL_SECONDS", 5)) * time.Second,
		InitialDuration: time.Duration(envInt("POLL_INITIAL_DURATION", 120)) * time.Second,
		NormalInterval:  time.Duration(envInt("POLL_NORMAL_SECONDS", 15)) * time.Second,
		SlowInterval:    time.Duration(envInt("POLL_SLOW_SECONDS", 30)) * time.Second,
		StuckThreshold:  envInt("POLL_STUCK_THRESHOLD", 3),
		MaxTokenAge:     time.Duration(envInt("MAX_TOKEN_AGE_SECONDS", 1800)) * time.Second,

		PostSignalMaxAge: time.Duration(envInt("POST_SIGNAL_MAX_AGE_SECONDS", 3600)) * time.Second,

		EarlyKillMinNewBuyers: envInt("EARLY_KILL_MIN_NEW_BUYERS", 5),
		EarlyKillWindow:       time.Duration(envInt("EARLY_KILL_WINDOW_SECONDS", 120)) * time.Second,
		EarlyKillBondingPct:   envFloat("EARLY_KILL_BONDING_PCT", 50),

		EarlyTriggerBondingPct:  envFloat("EARLY_TRIGGER_BONDING_PCT", 30),
		EarlyTriggerMinBuyers:   envInt("EARLY_TRIGGER_MIN_BUYERS", 200),
		EarlyTriggerGracePoints: envFloat("EARLY_TRIGGER_GRACE_POINTS", 5),

		MaxMCAPPreGrad:  envFloat("MAX_MCAP_PRE_GRAD", 25000),
		MaxMCAPPostGrad: envFloat("MAX_MCAP_POST_GRAD", 50000),

		MultiKOLWindow:   time.Duration(envInt("MULTI_KOL_WINDOW_SECONDS", 300)) * time.Second,
		MultiKOLMinCount: envInt("MULTI_KOL_MIN_COUNT", 3),

		ExitAlertThresholdPct: envFloat("EXIT_ALERT_THRESHOLD", -15),
		MonitoringDuration:    time.Duration(envInt("MONITORING_DURATION", 300)) * time.Second,
		MonitorCheckInterval:  time.Duration(envInt("MONITOR_CHECK_INTERVAL", 30)) * time.Second,

		MetadataTTL:     time.Duration(envInt("METADATA_TTL_MINUTES", 60)) * time.Minute,
		HoldersTTL:      time.Duration(envInt("HOLDERS_TTL_MINUTES", 120)) * time.Minute,
		BondingCurveTTL: time.Duration(envInt("BONDING_CURVE_TTL_SECONDS", 5)) * time.Second,
		TokenDataTTL:    time.Duration(envInt("TOKEN_DATA_TTL_SECONDS", 10)) * time.Second,

		CreditDailyBudget: int64(envInt("CREDIT_DAILY_BUDGET", 0)),

		EnableNarratives:        envBool("ENABLE_NARRATIVES", true),
		EnableTelegramCalls:     envBool("ENABLE_TELEGRAM_CALLS", true),
		EnableMLPredictions:     envBool("ENABLE_ML_PREDICTIONS", false),
		EnableRealtimeNarrative: envBool("ENABLE_REALTIME_NARRATIVES", false),
		EnableDevSellDetection:  envBool("ENABLE_DEV_SELL_DETECTION", false),

		NarrativeSnapshotPath: envOr("NARRATIVE_SNAPSHOT_PATH", "narratives.json"),
		NarrativeReloadCron:   envOr("NARRATIVE_RELOAD_CRON", "@every 10m"),

		DBPath: envOr("SENTINEL_DB_PATH", "sentinel.db"),

		DashboardPort: envInt("DASHBOARD_PORT", 8080),
		DashboardTUI:  envBool("DASHBOARD_TUI", false),
	}

	// Curated wallet seed: "addr:tier:name:winrate"
	for _, entry := range splitTrim(os.Getenv("KOL_WALLETS")) {
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 2 {
			continue
		}
		sw := SeedWallet{Address: parts[0], Tier: parts[1]}
		if len(parts) >= 3 {
			sw.Name = parts[2]
		}
		if len(parts) == 4 {
			if wr, err := strconv.ParseFloat(parts[3], 64); err == nil {
				sw.WinRate = wr
			}
		}
		cfg.SeedWallets = append(cfg.SeedWallets, sw)
	}

	return cfg, nil
}

// Validate enforces the startup contract: a missing data-provider key is the
// only fatal configuration error. A missing Telegram bot just disables the
// publisher; the publisher logs that at warn, never silently.
func (c *Config) Validate() error {
	if c.HeliusAPIKey == "" {
		return fmt.Errorf("HELIUS_API_KEY is required: the fetcher layer cannot run without the on-chain provider")
	}
	if c.DBPath == "" {
		return fmt.Errorf("SENTINEL_DB_PATH must not be empty")
	}
	if c.MinConvictionScore <= 0 || c.PostGradThreshold <= 0 {
		return fmt.Errorf("conviction thresholds must be positive (got %d / %d)", c.MinConvictionScore, c.PostGradThreshold)
	}
	if c.MonitorCheckInterval <= 0 || c.MonitoringDuration < c.MonitorCheckInterval {
		return fmt.Errorf("monitor window %s must cover at least one check interval %s", c.MonitoringDuration, c.MonitorCheckInterval)
	}
	return nil
}

// PublisherReady reports whether the outbound Telegram channel is fully
// configured, and if not, which fields are missing.
func (c *Config) PublisherReady() (bool, []string) {
	var missing []string
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.TelegramChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	return len(missing) == 0, missing
}

// helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
