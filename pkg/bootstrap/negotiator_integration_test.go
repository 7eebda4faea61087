package bootstrap

import (
	"context"
	"testing"
	"time"

	busserver "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
)

func startTestServer(t *testing.T, port int) (*nats.Conn, func()) {
	t.Helper()

	opts := &busserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := busserver.NewServer(opts)
	if err != nil {
		t.Fatalf("bootstrap:negotiator_integration_test - failed to create server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("bootstrap:negotiator_integration_test - server failed to start")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("bootstrap:negotiator_integration_test - failed to connect: %v", err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func TestNegotiateAgainstResponder(t *testing.T) {
	nc, cleanup := startTestServer(t, 14240)
	defer cleanup()

	cfg := &Config{
		DefaultDomain: 1,
		TTLSec:        3600,
		Sites: map[string]SiteEntry{
			"sf": {Domain: 12, ManifestURIs: []string{"https://example.com/sf.json"}},
		},
	}
	responder := NewResponder(nc, cfg, "bootstrap-server")
	if err := responder.Start(); err != nil {
		t.Fatalf("responder start failed: %v", err)
	}
	defer responder.Stop()
	nc.Flush()

	n := NewNegotiator(nc, "client-1", NegotiatorOpts{
		ClientKind:   "ar_client",
		LocationHint: "sf",
	})
	if n.State() != StateIdle {
		t.Errorf("initial state = %s, want %s", n.State(), StateIdle)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := n.Negotiate(ctx)
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	if resp.Domain != 12 {
		t.Errorf("Domain = %d, want 12", resp.Domain)
	}
	if len(resp.ManifestURIs) != 1 || resp.ManifestURIs[0] != "https://example.com/sf.json" {
		t.Errorf("ManifestURIs = %v", resp.ManifestURIs)
	}
	if n.State() != StateDomainAssigned {
		t.Errorf("state = %s, want %s", n.State(), StateDomainAssigned)
	}
}

func TestNegotiateTimeout(t *testing.T) {
	nc, cleanup := startTestServer(t, 14241)
	defer cleanup()

	// No responder is running.
	n := NewNegotiator(nc, "client-1", NegotiatorOpts{
		RepublishInterval: 100 * time.Millisecond,
		Deadline:          500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := n.Negotiate(ctx)
	if err != ErrBootstrapTimeout {
		t.Fatalf("Negotiate = %v, want ErrBootstrapTimeout", err)
	}
	if n.State() != StateFailed {
		t.Errorf("state = %s, want %s", n.State(), StateFailed)
	}
}

func TestNegotiateRepublishesUntilResponderAppears(t *testing.T) {
	nc, cleanup := startTestServer(t, 14242)
	defer cleanup()

	cfg := DefaultConfig()
	responder := NewResponder(nc, cfg, "bootstrap-server")

	// Start the responder only after the client's first publish is gone.
	go func() {
		time.Sleep(300 * time.Millisecond)
		if err := responder.Start(); err != nil {
			t.Errorf("responder start failed: %v", err)
		}
	}()
	defer responder.Stop()

	n := NewNegotiator(nc, "client-2", NegotiatorOpts{
		RepublishInterval: 100 * time.Millisecond,
		Deadline:          5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := n.Negotiate(ctx)
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	if resp.Domain != cfg.DefaultDomain {
		t.Errorf("Domain = %d, want %d", resp.Domain, cfg.DefaultDomain)
	}
}
