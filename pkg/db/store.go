package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sentinel-engine/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS curated_wallets (
    address TEXT PRIMARY KEY,
    display_name TEXT,
    tier TEXT NOT NULL,
    win_rate REAL DEFAULT 0,
    is_early_whale BOOLEAN DEFAULT FALSE,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    token_address TEXT NOT NULL,
    symbol TEXT,
    name TEXT,
    score REAL NOT NULL,
    breakdown TEXT NOT NULL DEFAULT '{}',
    posted_at TIMESTAMP NOT NULL,
    message_id INTEGER DEFAULT 0,
    entry_price REAL,
    entry_liquidity REAL,
    market_cap REAL,
    buy_percentage REAL,
    buys_24h INTEGER,
    sells_24h INTEGER,
    volume_24h REAL,
    bonding_progress REAL,
    kol_wallets TEXT DEFAULT '[]',
    narratives TEXT DEFAULT '[]',
    delivery_pending BOOLEAN DEFAULT TRUE,
    UNIQUE(token_address, posted_at)
);

CREATE TABLE IF NOT EXISTS kol_activity (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    wallet TEXT NOT NULL,
    token_address TEXT NOT NULL,
    sol_amount REAL,
    tx_signature TEXT,
    observed_at TIMESTAMP NOT NULL,
    UNIQUE(tx_signature)
);

CREATE TABLE IF NOT EXISTS telegram_calls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    token_address TEXT NOT NULL,
    group_id INTEGER NOT NULL,
    group_name TEXT,
    message_id INTEGER NOT NULL,
    called_at TIMESTAMP NOT NULL,
    UNIQUE(token_address, group_id, message_id)
);

CREATE TABLE IF NOT EXISTS outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    token_address TEXT NOT NULL,
    signal_id TEXT REFERENCES signals(id),
    retire_reason TEXT,
    peak_multiple REAL DEFAULT 0,
    class TEXT,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS exit_alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    token_address TEXT NOT NULL,
    signal_price REAL,
    observed_price REAL,
    drop_pct REAL,
    elapsed_seconds REAL,
    alerted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signal_token ON signals(token_address);
CREATE INDEX IF NOT EXISTS idx_signal_pending ON signals(delivery_pending);
CREATE INDEX IF NOT EXISTS idx_activity_token ON kol_activity(token_address);
CREATE INDEX IF NOT EXISTS idx_activity_wallet ON kol_activity(wallet);
CREATE INDEX IF NOT EXISTS idx_call_token ON telegram_calls(token_address);
CREATE INDEX IF NOT EXISTS idx_outcome_token ON outcomes(token_address);
`

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---- Curated Wallets ----

func (s *Store) UpsertCuratedWallet(w models.WalletInfo) error {
	_, err := s.db.Exec(`
		INSERT INTO curated_wallets (address, display_name, tier, win_rate, is_early_whale, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(address) DO UPDATE SET
			display_name = excluded.display_name,
			tier = excluded.tier,
			win_rate = excluded.win_rate,
			is_early_whale = excluded.is_early_whale,
			updated_at = CURRENT_TIMESTAMP`,
		w.Address, w.DisplayName, string(w.Tier), w.WinRate, w.IsEarlyWhale)
	return err
}

func (s *Store) LoadCuratedWallets() ([]models.WalletInfo, error) {
	rows, err := s.db.Query(`
		SELECT address, COALESCE(display_name,''), tier, win_rate, is_early_whale
		FROM curated_wallets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []models.WalletInfo
	for rows.Next() {
		var w models.WalletInfo
		var tier string
		if err := rows.Scan(&w.Address, &w.DisplayName, &tier, &w.WinRate, &w.IsEarlyWhale); err != nil {
			continue
		}
		w.Tier = models.WalletTier(tier)
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// ---- Signals ----

func (s *Store) SaveSignal(sig models.Signal) error {
	breakdown, _ := json.Marshal(sig.Breakdown)
	kols, _ := json.Marshal(sig.KOLWallets)
	narratives, _ := json.Marshal(sig.Narratives)

	_, err := s.db.Exec(`
		INSERT INTO signals (id, token_address, symbol, name, score, breakdown, posted_at,
			message_id, entry_price, entry_liquidity, market_cap, buy_percentage,
			buys_24h, sells_24h, volume_24h, bonding_progress, kol_wallets, narratives, delivery_pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		sig.ID, sig.Token, sig.Symbol, sig.Name, sig.Score, string(breakdown), sig.PostedAt,
		sig.MessageID, sig.EntryPrice, sig.EntryLiquidity, sig.MarketCap, sig.BuyPercentage,
		sig.Buys24h, sig.Sells24h, sig.Volume24h, sig.BondingProgress,
		string(kols), string(narratives), sig.DeliveryPending)
	return err
}

func (s *Store) MarkDelivered(id string, messageID int64) error {
	_, err := s.db.Exec(`
		UPDATE signals SET delivery_pending = FALSE, message_id = ? WHERE id = ?`,
		messageID, id)
	return err
}

func (s *Store) PendingSignals() ([]models.Signal, error) {
	return s.querySignals(`WHERE delivery_pending = TRUE ORDER BY posted_at`)
}

// RecentSignals returns the newest signals for the dashboard.
func (s *Store) RecentSignals(limit int) ([]models.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.querySignals(fmt.Sprintf(`ORDER BY posted_at DESC LIMIT %d`, limit))
}

// HasSignal reports whether a token was ever signaled. Used to keep restarts
// from re-calling the same token.
func (s *Store) HasSignal(token string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM signals WHERE token_address = ?`, token).Scan(&n)
	return n > 0, err
}

func (s *Store) querySignals(clause string) ([]models.Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, token_address, COALESCE(symbol,''), COALESCE(name,''), score, breakdown,
			posted_at, message_id, entry_price, entry_liquidity, market_cap, buy_percentage,
			buys_24h, sells_24h, volume_24h, bonding_progress, kol_wallets, narratives, delivery_pending
		FROM signals ` + clause)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigs []models.Signal
	for rows.Next() {
		var sig models.Signal
		var breakdown, kols, narratives string
		if err := rows.Scan(&sig.ID, &sig.Token, &sig.Symbol, &sig.Name, &sig.Score, &breakdown,
			&sig.PostedAt, &sig.MessageID, &sig.EntryPrice, &sig.EntryLiquidity, &sig.MarketCap,
			&sig.BuyPercentage, &sig.Buys24h, &sig.Sells24h, &sig.Volume24h, &sig.BondingProgress,
			&kols, &narratives, &sig.DeliveryPending); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(breakdown), &sig.Breakdown)
		_ = json.Unmarshal([]byte(kols), &sig.KOLWallets)
		_ = json.Unmarshal([]byte(narratives), &sig.Narratives)
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// ---- KOL Activity ----

func (s *Store) RecordKOLBuy(ev models.KOLBuyEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO kol_activity (wallet, token_address, sol_amount, tx_signature, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tx_signature) DO NOTHING`,
		ev.Wallet, ev.Token, ev.SolAmount, ev.TxSignature, ev.Timestamp)
	return err
}

// ---- Telegram Calls ----

func (s *Store) RecordTelegramCall(ev models.TelegramCallEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO telegram_calls (token_address, group_id, group_name, message_id, called_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token_address, group_id, message_id) DO NOTHING`,
		ev.Token, ev.GroupID, ev.GroupName, ev.MessageID, ev.Timestamp)
	return err
}

// LoadRecentCalls rehydrates the in-memory call index after a restart.
func (s *Store) LoadRecentCalls(since time.Time) ([]models.TelegramCallEvent, error) {
	rows, err := s.db.Query(`
		SELECT token_address, group_id, COALESCE(group_name,''), message_id, called_at
		FROM telegram_calls WHERE called_at > ?`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []models.TelegramCallEvent
	for rows.Next() {
		var ev models.TelegramCallEvent
		if err := rows.Scan(&ev.Token, &ev.GroupID, &ev.GroupName, &ev.MessageID, &ev.Timestamp); err != nil {
			continue
		}
		calls = append(calls, ev)
	}
	return calls, rows.Err()
}

// ---- Outcomes ----

func (s *Store) RecordRetirement(token string, reason models.RetireReason) error {
	_, err := s.db.Exec(`
		INSERT INTO outcomes (token_address, retire_reason) VALUES (?, ?)`,
		token, string(reason))
	return err
}

func (s *Store) RecordOutcome(token, signalID string, peakMultiple float64, class models.OutcomeClass) error {
	_, err := s.db.Exec(`
		INSERT INTO outcomes (token_address, signal_id, peak_multiple, class)
		VALUES (?, ?, ?, ?)`,
		token, signalID, peakMultiple, string(class))
	return err
}

// ---- Exit Alerts ----

func (s *Store) RecordExitAlert(a models.ExitAlert) error {
	_, err := s.db.Exec(`
		INSERT INTO exit_alerts (token_address, signal_price, observed_price, drop_pct, elapsed_seconds, alerted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Token, a.SignalPrice, a.ObservedPrice, a.DropPct, a.Elapsed.Seconds(), a.AlertedAt)
	return err
}
