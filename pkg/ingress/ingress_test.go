package ingress

import (
	"testing"
	"time"

	"github.com/sentinel-engine/pkg/models"
)

const (
	wallet = "GDfnEsia2WLAW5t8yx2X5j2mkfA74i5kwGdDuZHt7XmG"
	token  = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
)

func TestHandleKOLBuy(t *testing.T) {
	in := New()
	var got []models.KOLBuyEvent
	in.SetBuyCallback(func(ev models.KOLBuyEvent) { got = append(got, ev) })

	ev := models.KOLBuyEvent{Wallet: wallet, Token: token, SolAmount: 2.5, TxSignature: "txA"}
	if err := in.HandleKOLBuy(ev); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("missing timestamp should be defaulted")
	}
}

func TestDuplicateTxDropped(t *testing.T) {
	in := New()
	dispatched := 0
	in.SetBuyCallback(func(models.KOLBuyEvent) { dispatched++ })

	ev := models.KOLBuyEvent{Wallet: wallet, Token: token, TxSignature: "txA"}
	for i := 0; i < 3; i++ {
		if err := in.HandleKOLBuy(ev); err != nil {
			t.Fatal(err)
		}
	}
	if dispatched != 1 {
		t.Errorf("dispatched %d times, want 1", dispatched)
	}
	if in.SeenTxCount() != 1 {
		t.Errorf("seen tx = %d, want 1", in.SeenTxCount())
	}
}

func TestInvalidAddressesRejected(t *testing.T) {
	in := New()
	in.SetBuyCallback(func(models.KOLBuyEvent) { t.Error("invalid event must not dispatch") })

	cases := []models.KOLBuyEvent{
		{Wallet: "not-base58!", Token: token},
		{Wallet: wallet, Token: "short"},
		{Wallet: wallet, Token: token, SolAmount: -1},
	}
	for _, ev := range cases {
		if err := in.HandleKOLBuy(ev); err == nil {
			t.Errorf("expected rejection for %+v", ev)
		}
	}
}

func TestHandleTelegramCall(t *testing.T) {
	in := New()
	var got []models.TelegramCallEvent
	in.SetCallCallback(func(ev models.TelegramCallEvent) { got = append(got, ev) })

	ok := models.TelegramCallEvent{Token: token, GroupID: 9, MessageID: 4, Timestamp: time.Now()}
	if err := in.HandleTelegramCall(ok); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(got))
	}

	bad := []models.TelegramCallEvent{
		{Token: "nope", GroupID: 9, MessageID: 4},
		{Token: token, GroupID: 0, MessageID: 4},
		{Token: token, GroupID: 9, MessageID: 0},
	}
	for _, ev := range bad {
		if err := in.HandleTelegramCall(ev); err == nil {
			t.Errorf("expected rejection for %+v", ev)
		}
	}
	if len(got) != 1 {
		t.Error("rejected events must not dispatch")
	}
}
