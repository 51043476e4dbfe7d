package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sentinel-engine/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCuratedWalletRoundtrip(t *testing.T) {
	s := newTestStore(t)

	w := models.WalletInfo{
		Address: "W1", DisplayName: "ansem", Tier: models.TierElite, WinRate: 0.61,
	}
	if err := s.UpsertCuratedWallet(w); err != nil {
		t.Fatal(err)
	}
	// Upsert same address with a new tier.
	w.Tier = models.TierTopKOL
	if err := s.UpsertCuratedWallet(w); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadCuratedWallets()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d wallets, want 1", len(got))
	}
	if got[0].Tier != models.TierTopKOL || got[0].DisplayName != "ansem" || got[0].WinRate != 0.61 {
		t.Errorf("roundtrip mismatch: %+v", got[0])
	}
}

func TestSignalLifecycle(t *testing.T) {
	s := newTestStore(t)

	sig := models.Signal{
		ID: "sig-1", Token: "tok", Symbol: "WAGMI", Score: 85,
		Breakdown: models.ScoreBreakdown{
			FinalScore: 85, Threshold: 45, Passed: true,
			Components: []models.ScoreComponent{{Name: models.CompSmartWallets, Points: 25}},
		},
		PostedAt:        time.Now().UTC(),
		EntryPrice:      0.0001,
		BondingProgress: 62,
		KOLWallets:      []models.WalletInfo{{Address: "W1", Tier: models.TierElite}},
		DeliveryPending: true,
	}
	if err := s.SaveSignal(sig); err != nil {
		t.Fatal(err)
	}
	// Re-saving the same ID must not duplicate.
	if err := s.SaveSignal(sig); err != nil {
		t.Fatal(err)
	}

	pending, err := s.PendingSignals()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("%d pending signals, want 1", len(pending))
	}
	got := pending[0]
	if got.Breakdown.FinalScore != 85 || len(got.KOLWallets) != 1 || got.KOLWallets[0].Tier != models.TierElite {
		t.Errorf("breakdown/kols did not survive the roundtrip: %+v", got)
	}

	if err := s.MarkDelivered("sig-1", 42); err != nil {
		t.Fatal(err)
	}
	pending, _ = s.PendingSignals()
	if len(pending) != 0 {
		t.Error("delivered signal still pending")
	}

	recent, err := s.RecentSignals(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].MessageID != 42 {
		t.Errorf("recent = %+v", recent)
	}

	has, err := s.HasSignal("tok")
	if err != nil || !has {
		t.Errorf("HasSignal = %v, %v", has, err)
	}
	if has, _ := s.HasSignal("other"); has {
		t.Error("HasSignal should be false for an unsignaled token")
	}
}

func TestTelegramCallDedupe(t *testing.T) {
	s := newTestStore(t)

	ev := models.TelegramCallEvent{
		Token: "tok", GroupID: 100, GroupName: "alpha", MessageID: 5,
		Timestamp: time.Now().UTC(),
	}
	for i := 0; i < 3; i++ {
		if err := s.RecordTelegramCall(ev); err != nil {
			t.Fatal(err)
		}
	}

	calls, err := s.LoadRecentCalls(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Errorf("%d calls recorded, want 1 after dedupe", len(calls))
	}
}

func TestKOLActivityDedupeBySignature(t *testing.T) {
	s := newTestStore(t)

	ev := models.KOLBuyEvent{
		Wallet: "W1", Token: "tok", SolAmount: 2.5,
		TxSignature: "sigA", Timestamp: time.Now().UTC(),
	}
	if err := s.RecordKOLBuy(ev); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordKOLBuy(ev); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM kol_activity`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("%d activity rows, want 1", n)
	}
}

func TestOutcomeAndExitAlert(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordRetirement("tok", models.RetireEarlyKill); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordOutcome("tok", "sig-1", 12.5, models.Outcome10x); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordExitAlert(models.ExitAlert{
		Token: "tok", SignalPrice: 0.0001, ObservedPrice: 0.00008,
		DropPct: -20, Elapsed: 90 * time.Second, AlertedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	var outcomes, alerts int
	s.db.QueryRow(`SELECT COUNT(1) FROM outcomes`).Scan(&outcomes)
	s.db.QueryRow(`SELECT COUNT(1) FROM exit_alerts`).Scan(&alerts)
	if outcomes != 2 || alerts != 1 {
		t.Errorf("outcomes=%d alerts=%d, want 2/1", outcomes, alerts)
	}
}
