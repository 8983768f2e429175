package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/config"
	"biotune/backend/services/bridge-service/internal/device"
	"biotune/backend/services/bridge-service/internal/sink"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Serial.Disabled = true
	cfg.Session.StartSettle = 0
	cfg.Ingest.PollInterval = time.Millisecond
	cfg.Sink.Firestore.ProjectID = "test"
	return cfg
}

func TestAppWiresSessionToSink(t *testing.T) {
	link := device.NewMockLink()
	store := sink.NewMockSink()
	a, err := NewWithOptions(context.Background(), testConfig(), zap.NewNop(), Options{
		Registerer: prometheus.NewRegistry(),
		Link:       link,
		Sink:       store,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if _, err := a.Controller().Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	link.Feed("0,65.2", "1,71.9")

	deadline := time.Now().Add(2 * time.Second)
	for len(store.Uploads()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := a.Controller().Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got := store.Uploads()
	if len(got) != 2 || got[0].Value != 65 || got[1].Value != 71 {
		t.Fatalf("uploads = %+v", got)
	}
	cmds := link.Commands()
	if len(cmds) != 2 || cmds[0] != device.CommandStart || cmds[1] != device.CommandStop {
		t.Fatalf("commands = %v", cmds)
	}
}

func TestAppFallsBackToAbsentLink(t *testing.T) {
	// The configured firestore sink is built for real; the emulator host
	// keeps the client off Google credentials.
	t.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:1")

	a, err := NewWithOptions(context.Background(), testConfig(), zap.NewNop(), Options{
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.link.Present() {
		t.Fatal("disabled serial produced a present link")
	}
	if a.sinkCloser == nil {
		t.Fatal("firestore sink was not registered for Close")
	}
	st, err := a.Controller().Start(context.Background())
	if err != nil || !st.Active() || st.DevicePresent {
		t.Fatalf("start without device: %+v %v", st, err)
	}
}

func TestRunStopsActiveSessionOnShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.Port = "127.0.0.1:0"
	link := device.NewMockLink()
	a, err := NewWithOptions(context.Background(), cfg, zap.NewNop(), Options{
		Registerer: prometheus.NewRegistry(),
		Link:       link,
		Sink:       sink.NewMockSink(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if _, err := a.Controller().Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
	if a.Controller().Status().Active() {
		t.Fatal("session still active after shutdown")
	}
}
