package wallets

import (
	"testing"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/models"
)

const (
	addrA = "DfMxre4cKmvogbLrPigxmibVTTQDuzjdXojWzjCXXhzj"
	addrB = "8rvAsDKeAcEjEkiZMug9k8v1y8mW6gQQiMobd89Uy7qR"
)

type memWalletStore struct {
	rows map[string]models.WalletInfo
}

func newMemWalletStore() *memWalletStore {
	return &memWalletStore{rows: make(map[string]models.WalletInfo)}
}

func (s *memWalletStore) UpsertCuratedWallet(w models.WalletInfo) error {
	s.rows[w.Address] = w
	return nil
}

func (s *memWalletStore) LoadCuratedWallets() ([]models.WalletInfo, error) {
	out := make([]models.WalletInfo, 0, len(s.rows))
	for _, w := range s.rows {
		out = append(out, w)
	}
	return out, nil
}

func TestLoadSeedsConfigOverStore(t *testing.T) {
	store := newMemWalletStore()
	store.rows[addrA] = models.WalletInfo{Address: addrA, DisplayName: "stale", Tier: models.TierEmerging}
	store.rows[addrB] = models.WalletInfo{Address: addrB, DisplayName: "whale-2", Tier: models.TierWhale}

	r := NewRegistry(store)
	cfg := &config.Config{SeedWallets: []config.SeedWallet{
		{Address: addrA, Tier: "elite", Name: "Ansem", WinRate: 0.62},
	}}
	if err := r.Load(cfg); err != nil {
		t.Fatal(err)
	}

	// Config entry wins over the persisted row for the same address.
	w := r.Lookup(addrA)
	if w.Tier != models.TierElite || w.DisplayName != "Ansem" || w.WinRate != 0.62 {
		t.Errorf("Lookup = %+v", w)
	}
	// Persisted rows without a config override survive.
	if w := r.Lookup(addrB); w.Tier != models.TierWhale {
		t.Errorf("persisted wallet = %+v", w)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestLoadSkipsUnknownTier(t *testing.T) {
	r := NewRegistry(nil)
	cfg := &config.Config{SeedWallets: []config.SeedWallet{
		{Address: addrA, Tier: "legendary"},
		{Address: addrB, Tier: "top_kol"},
	}}
	if err := r.Load(cfg); err != nil {
		t.Fatal(err)
	}
	if r.IsCurated(addrA) {
		t.Error("wallet with bogus tier admitted")
	}
	if !r.IsCurated(addrB) {
		t.Error("valid wallet skipped")
	}
}

func TestLookupUnknownWallet(t *testing.T) {
	r := NewRegistry(nil)
	w := r.Lookup(addrA)
	if w.Tier != models.TierUnknown || w.Address != addrA {
		t.Errorf("Lookup = %+v", w)
	}
}

func TestUpsertDiscoveredDefaultsTierAndPersists(t *testing.T) {
	store := newMemWalletStore()
	r := NewRegistry(store)

	if err := r.UpsertDiscovered(models.WalletInfo{Address: addrA, WinRate: 0.41}); err != nil {
		t.Fatal(err)
	}
	if w := r.Lookup(addrA); w.Tier != models.TierEmerging {
		t.Errorf("default tier = %q, want emerging", w.Tier)
	}
	if persisted, ok := store.rows[addrA]; !ok || persisted.Tier != models.TierEmerging {
		t.Errorf("persisted = %+v, %v", persisted, ok)
	}
}
