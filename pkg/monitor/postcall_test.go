package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/models"
)

type fakePrices struct {
	mu     sync.Mutex
	price  float64
	err    error
	probes int
}

func (f *fakePrices) GetPrice(ctx context.Context, address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.price, f.err
}

func (f *fakePrices) set(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

func monitorConfig() *config.Config {
	return &config.Config{
		ExitAlertThresholdPct: -15,
		MonitoringDuration:    200 * time.Millisecond,
		MonitorCheckInterval:  5 * time.Millisecond,
	}
}

func watchSignal() models.Signal {
	return models.Signal{Token: "tok", Symbol: "WAGMI", EntryPrice: 0.0001}
}

func collectAlerts(m *Monitor) (*sync.Mutex, *[]models.ExitAlert) {
	var mu sync.Mutex
	var alerts []models.ExitAlert
	m.SetAlertCallback(func(a models.ExitAlert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})
	return &mu, &alerts
}

func waitForAlerts(t *testing.T, mu *sync.Mutex, alerts *[]models.ExitAlert, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := len(*alerts)
		mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d alert(s)", n)
}

func TestAlertOnDrawdown(t *testing.T) {
	prices := &fakePrices{price: 0.00008} // -20%
	m := New(monitorConfig(), prices)
	mu, alerts := collectAlerts(m)

	if !m.Watch(context.Background(), watchSignal()) {
		t.Fatal("watch should start")
	}
	waitForAlerts(t, mu, alerts, 1)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(*alerts) != 1 {
		t.Fatalf("got %d alerts, want exactly 1", len(*alerts))
	}
	a := (*alerts)[0]
	if a.DropPct > -15 || a.Token != "tok" {
		t.Errorf("bad alert: %+v", a)
	}
}

func TestNoAlertAboveThreshold(t *testing.T) {
	prices := &fakePrices{price: 0.000095} // -5%
	m := New(monitorConfig(), prices)
	mu, alerts := collectAlerts(m)

	m.Watch(context.Background(), watchSignal())
	time.Sleep(250 * time.Millisecond) // let the window lapse
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(*alerts) != 0 {
		t.Errorf("got %d alerts, want none for a -5%% move", len(*alerts))
	}
	if m.Watching("tok") {
		t.Error("watch should have ended with the window")
	}
}

func TestAlertFiresOnce(t *testing.T) {
	prices := &fakePrices{price: 0.00005} // -50%, every probe would alert
	m := New(monitorConfig(), prices)
	mu, alerts := collectAlerts(m)

	m.Watch(context.Background(), watchSignal())
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(*alerts) != 1 {
		t.Errorf("got %d alerts, want 1 (watch must end after alerting)", len(*alerts))
	}
}

func TestProbeFailureIsSkipped(t *testing.T) {
	prices := &fakePrices{err: errors.New("helius: 503")}
	m := New(monitorConfig(), prices)
	mu, alerts := collectAlerts(m)

	m.Watch(context.Background(), watchSignal())
	time.Sleep(30 * time.Millisecond)

	prices.mu.Lock()
	prices.err = nil
	prices.price = 0.00007 // -30% once probes recover
	prices.mu.Unlock()

	waitForAlerts(t, mu, alerts, 1)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(*alerts) != 1 {
		t.Errorf("got %d alerts, want 1 after probes recover", len(*alerts))
	}
}

func TestDuplicateWatchIsNoop(t *testing.T) {
	prices := &fakePrices{price: 0.0001}
	m := New(monitorConfig(), prices)
	defer m.Stop()

	if !m.Watch(context.Background(), watchSignal()) {
		t.Fatal("first watch should start")
	}
	if m.Watch(context.Background(), watchSignal()) {
		t.Error("second watch on the same token must be refused")
	}
}

func TestWatchRequiresEntryPrice(t *testing.T) {
	m := New(monitorConfig(), &fakePrices{})
	if m.Watch(context.Background(), models.Signal{Token: "tok"}) {
		t.Error("zero entry price cannot be monitored")
	}
}

func TestCancelEndsWatchWithoutAlert(t *testing.T) {
	prices := &fakePrices{price: 0.00005} // -50%, would alert on any tick
	cfg := monitorConfig()
	cfg.MonitoringDuration = time.Hour
	cfg.MonitorCheckInterval = 50 * time.Millisecond
	m := New(cfg, prices)
	mu, alerts := collectAlerts(m)

	m.Watch(context.Background(), watchSignal())
	m.Cancel("tok")

	deadline := time.Now().Add(2 * time.Second)
	for m.Watching("tok") && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if m.Watching("tok") {
		t.Fatal("canceled watch still registered")
	}
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(*alerts) != 0 {
		t.Errorf("got %d alerts after cancel, want none", len(*alerts))
	}
}

type gatedPrices struct {
	entered chan struct{}
	release chan struct{}
	price   float64
}

func (g *gatedPrices) GetPrice(ctx context.Context, address string) (float64, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.price, nil
}

func TestCancelDuringInFlightCheck(t *testing.T) {
	// The price check is held mid-flight while the watch is canceled; the
	// stale result must not turn into an alert.
	prices := &gatedPrices{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		price:   0.00005, // -50%
	}
	m := New(monitorConfig(), prices)
	mu, alerts := collectAlerts(m)

	m.Watch(context.Background(), watchSignal())
	select {
	case <-prices.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("price check never started")
	}
	m.Cancel("tok")
	close(prices.release)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(*alerts) != 0 {
		t.Errorf("got %d alerts, want none after a mid-flight cancel", len(*alerts))
	}
}

func TestStopCancelsWatches(t *testing.T) {
	prices := &fakePrices{price: 0.0001} // flat, would run the full window
	cfg := monitorConfig()
	cfg.MonitoringDuration = time.Hour
	m := New(cfg, prices)

	m.Watch(context.Background(), watchSignal())
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the watch")
	}
}
