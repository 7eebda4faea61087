// Package main is the entrypoint for the spatial discovery daemon (binary
// name "spatiald").
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/openarcloud/spatial-discovery/internal/bridge"
	"github.com/openarcloud/spatial-discovery/internal/config"
	"github.com/openarcloud/spatial-discovery/internal/server"
	"github.com/openarcloud/spatial-discovery/pkg/bootstrap"
	"github.com/openarcloud/spatial-discovery/pkg/busutil"
)

const usage = `Usage: spatiald [command]
       spatiald serve               Start the discovery node (bus, registry, VPS, catalog, bootstrap).
       spatiald bridge              Start the HTTP bridge (localize, catalog, well-known endpoints).
       spatiald negotiate [hint]    Ask the bootstrap responder for a domain assignment and print it.

Commands:
  serve            (default) Start the discovery node.
  bridge           Start the HTTP-to-bus bridge only.
  negotiate [hint] Run the domain bootstrap handshake with an optional location hint.

Environment: BUS_URL (default nats://127.0.0.1:4222), SPATIALDDS_DOMAIN, SPATIALDDS_SERVICE_ID,
SPATIALDDS_BOOTSTRAP_FILE, SPATIALDDS_SEED_FILE, HTTP_PORT, BRIDGE_PORT. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "bridge":
		if err := bridge.Run(); err != nil {
			log.Fatalf("spatiald bridge: %v", err)
		}
		return
	case "negotiate":
		hint := ""
		if len(args) > 1 {
			hint = args[1]
		}
		if err := runNegotiate(hint); err != nil {
			log.Fatalf("spatiald negotiate: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("spatiald: %v", err)
	}
}

func runNegotiate(locationHint string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	nc, err := busutil.Connect(cfg.BusURL, cfg.BusName+"-negotiate")
	if err != nil {
		return err
	}
	defer nc.Close()

	clientID := "negotiate-" + uuid.NewString()[:8]
	negotiator := bootstrap.NewNegotiator(nc, clientID, bootstrap.NegotiatorOpts{
		ClientKind:   "cli",
		LocationHint: locationHint,
		Deadline:     cfg.RequestTimeout,
	})

	resp, err := negotiator.Negotiate(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Assigned domain %d (ttl %ds).\n", resp.Domain, resp.TTLSec)
	for _, uri := range resp.ManifestURIs {
		fmt.Printf("Manifest: %s\n", uri)
	}
	return nil
}
