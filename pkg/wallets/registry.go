package wallets

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/models"
)

// Store is the persistence surface the registry writes through to. The
// sqlite store satisfies it; tests use a nil store.
type Store interface {
	UpsertCuratedWallet(models.WalletInfo) error
	LoadCuratedWallets() ([]models.WalletInfo, error)
}

// Registry classifies observed buyer wallets. Reads are an in-memory map
// lookup; writes come from config seeding at startup and from the offline
// discovery job via UpsertDiscovered. No TTL; registry changes are rare and
// visible on the next lookup.
type Registry struct {
	mu      sync.RWMutex
	wallets map[string]models.WalletInfo
	store   Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{wallets: make(map[string]models.WalletInfo), store: store}
}

// Load seeds the registry from persisted rows first, then layers config
// entries on top (config wins on conflict).
func (r *Registry) Load(cfg *config.Config) error {
	if r.store != nil {
		persisted, err := r.store.LoadCuratedWallets()
		if err != nil {
			return err
		}
		r.mu.Lock()
		for _, w := range persisted {
			r.wallets[w.Address] = w
		}
		r.mu.Unlock()
	}

	for _, sw := range cfg.SeedWallets {
		tier := models.WalletTier(sw.Tier)
		switch tier {
		case models.TierElite, models.TierTopKOL, models.TierEmerging, models.TierWhale:
		default:
			log.Warn().Str("wallet", sw.Address).Str("tier", sw.Tier).Msg("unknown tier in KOL_WALLETS seed, skipping")
			continue
		}
		r.put(models.WalletInfo{
			Address:     sw.Address,
			DisplayName: sw.Name,
			Tier:        tier,
			WinRate:     sw.WinRate,
		})
	}

	log.Info().Int("wallets", r.Len()).Msg("👛 curated-wallet registry loaded")
	return nil
}

// Lookup returns the wallet's classification, or a TierUnknown entry for
// wallets outside the curated set.
func (r *Registry) Lookup(address string) models.WalletInfo {
	r.mu.RLock()
	w, ok := r.wallets[address]
	r.mu.RUnlock()
	if !ok {
		return models.WalletInfo{Address: address, Tier: models.TierUnknown}
	}
	return w
}

func (r *Registry) IsCurated(address string) bool {
	r.mu.RLock()
	_, ok := r.wallets[address]
	r.mu.RUnlock()
	return ok
}

// UpsertDiscovered is the offline discovery job's write path. It persists
// through the store so the wallet survives restarts.
func (r *Registry) UpsertDiscovered(w models.WalletInfo) error {
	if w.Tier == "" {
		w.Tier = models.TierEmerging
	}
	r.put(w)
	if r.store != nil {
		return r.store.UpsertCuratedWallet(w)
	}
	return nil
}

func (r *Registry) put(w models.WalletInfo) {
	r.mu.Lock()
	r.wallets[w.Address] = w
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}
