package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HELIUS_API_KEY", "test-key")
	t.Setenv("MIN_CONVICTION_SCORE", "")
	t.Setenv("KOL_WALLETS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MinConvictionScore != 45 || cfg.PostGradThreshold != 75 {
		t.Errorf("thresholds = %d/%d", cfg.MinConvictionScore, cfg.PostGradThreshold)
	}
	if cfg.DBPath != "sentinel.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ScrapePollInterval != 30*time.Second {
		t.Errorf("ScrapePollInterval = %s", cfg.ScrapePollInterval)
	}
	if cfg.ExitAlertThresholdPct != -15 {
		t.Errorf("ExitAlertThresholdPct = %v", cfg.ExitAlertThresholdPct)
	}
	if cfg.PostSignalMaxAge != time.Hour {
		t.Errorf("PostSignalMaxAge = %s", cfg.PostSignalMaxAge)
	}
	if !cfg.EnableNarratives || cfg.EnableMLPredictions {
		t.Errorf("feature flag defaults = %v/%v", cfg.EnableNarratives, cfg.EnableMLPredictions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadParsesSeedWallets(t *testing.T) {
	t.Setenv("HELIUS_API_KEY", "test-key")
	t.Setenv("KOL_WALLETS", "addr1:elite:Ansem:0.62, addr2:whale ,junk")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.SeedWallets) != 2 {
		t.Fatalf("SeedWallets = %+v", cfg.SeedWallets)
	}
	first := cfg.SeedWallets[0]
	if first.Address != "addr1" || first.Tier != "elite" || first.Name != "Ansem" || first.WinRate != 0.62 {
		t.Errorf("first seed = %+v", first)
	}
	second := cfg.SeedWallets[1]
	if second.Address != "addr2" || second.Tier != "whale" || second.Name != "" {
		t.Errorf("second seed = %+v", second)
	}
}

func TestLoadParsesCallGroups(t *testing.T) {
	t.Setenv("HELIUS_API_KEY", "test-key")
	t.Setenv("CALL_GROUPS", "alphacalls, degenplays ,")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CallGroups) != 2 || cfg.CallGroups[0] != "alphacalls" || cfg.CallGroups[1] != "degenplays" {
		t.Errorf("CallGroups = %v", cfg.CallGroups)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		HeliusAPIKey:         "k",
		DBPath:               "x.db",
		MinConvictionScore:   45,
		PostGradThreshold:    75,
		MonitoringDuration:   5 * time.Minute,
		MonitorCheckInterval: 30 * time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing provider key", func(c *Config) { c.HeliusAPIKey = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero threshold", func(c *Config) { c.MinConvictionScore = 0 }},
		{"monitor window below interval", func(c *Config) { c.MonitoringDuration = time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPublisherReady(t *testing.T) {
	c := Config{}
	ok, missing := c.PublisherReady()
	if ok || len(missing) != 2 {
		t.Errorf("ready = %v, missing = %v", ok, missing)
	}

	c.TelegramBotToken = "token"
	if _, missing := c.PublisherReady(); len(missing) != 1 || missing[0] != "TELEGRAM_CHAT_ID" {
		t.Errorf("missing = %v", missing)
	}

	c.TelegramChatID = "-100123"
	if ok, _ := c.PublisherReady(); !ok {
		t.Error("fully configured publisher reported not ready")
	}
}
