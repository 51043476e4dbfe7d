package ingress

import (
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/models"
)

// Ingress validates inbound events before anything downstream sees them.
// Webhook providers redeliver on timeout, so KOL buys are deduplicated by
// transaction signature here, once, instead of in every consumer.
type Ingress struct {
	mu     sync.Mutex
	seenTx map[string]bool

	onBuy  func(models.KOLBuyEvent)
	onCall func(models.TelegramCallEvent)
}

func New() *Ingress {
	return &Ingress{seenTx: make(map[string]bool)}
}

func (in *Ingress) SetBuyCallback(fn func(models.KOLBuyEvent)) { in.onBuy = fn }

func (in *Ingress) SetCallCallback(fn func(models.TelegramCallEvent)) { in.onCall = fn }

// HandleKOLBuy validates and dispatches a curated-wallet buy. A duplicate
// delivery returns nil without dispatching.
func (in *Ingress) HandleKOLBuy(ev models.KOLBuyEvent) error {
	if _, err := solana.PublicKeyFromBase58(ev.Wallet); err != nil {
		return fmt.Errorf("invalid wallet address %q: %w", ev.Wallet, err)
	}
	if _, err := solana.PublicKeyFromBase58(ev.Token); err != nil {
		return fmt.Errorf("invalid token address %q: %w", ev.Token, err)
	}
	if ev.SolAmount < 0 {
		return fmt.Errorf("negative sol amount %f", ev.SolAmount)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if ev.TxSignature != "" {
		in.mu.Lock()
		dup := in.seenTx[ev.TxSignature]
		if !dup {
			in.seenTx[ev.TxSignature] = true
		}
		in.mu.Unlock()
		if dup {
			log.Debug().Str("tx", ev.TxSignature).Msg("duplicate buy delivery dropped")
			return nil
		}
	}

	if in.onBuy != nil {
		in.onBuy(ev)
	}
	return nil
}

// HandleTelegramCall validates and dispatches a third-party group call.
// Message-level dedupe belongs to the call index, which already keys on
// (token, group, message).
func (in *Ingress) HandleTelegramCall(ev models.TelegramCallEvent) error {
	if _, err := solana.PublicKeyFromBase58(ev.Token); err != nil {
		return fmt.Errorf("invalid token address %q: %w", ev.Token, err)
	}
	if ev.GroupID == 0 || ev.MessageID == 0 {
		return fmt.Errorf("call event missing group or message id")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if in.onCall != nil {
		in.onCall(ev)
	}
	return nil
}

// SeenTxCount is exposed for the dashboard's health view.
func (in *Ingress) SeenTxCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.seenTx)
}
