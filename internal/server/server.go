// Package server orchestrates the provider stack: bus client, registry,
// VPS + catalog + bootstrap responders, anchor delta ingest, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	busserver "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/internal/config"
	"github.com/openarcloud/spatial-discovery/pkg/bootstrap"
	"github.com/openarcloud/spatial-discovery/pkg/busutil"
	"github.com/openarcloud/spatial-discovery/pkg/catalog"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/events"
	"github.com/openarcloud/spatial-discovery/pkg/registry"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
	"github.com/openarcloud/spatial-discovery/pkg/vps"
)

const logPrefix = "server:server"

// Server is the provider stack orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *nats.Conn
	reg        *registry.Registry
	subjects   busutil.Subjects
	filter     *busutil.EchoFilter
	httpServer *http.Server
}

// SetupLogging installs the process-wide slog handler at the configured
// level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting spatial-discovery provider on domain %d", logPrefix, cfg.Domain))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{
		cfg:      cfg,
		subjects: busutil.NewSubjects(cfg.Domain),
		filter:   busutil.NewEchoFilter(cfg.BusName),
	}

	// Step 1: optional embedded bus
	var embedded *busserver.Server
	busURL := cfg.BusURL
	if cfg.EmbeddedBus {
		embedded, err = busserver.NewServer(&busserver.Options{
			Host:   cfg.EmbeddedBusHost,
			Port:   cfg.EmbeddedBusPort,
			NoLog:  true,
			NoSigs: true,
		})
		if err != nil {
			return fmt.Errorf("%s - failed to create embedded bus: %w", logPrefix, err)
		}
		go embedded.Start()
		if !embedded.ReadyForConnections(10 * time.Second) {
			return fmt.Errorf("%s - embedded bus failed to start", logPrefix)
		}
		busURL = embedded.ClientURL()
		slog.Info(fmt.Sprintf("%s - Embedded bus listening at %s", logPrefix, busURL))
	}

	// Step 2: connect to the bus
	nc, err := busutil.Connect(busURL, cfg.BusName)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return err
	}
	s.nc = nc

	// Step 3: registry with bus-backed change events
	reg := registry.NewRegistry(registry.NewRegistryParams{
		Publisher: events.NewBusPublisher(nc, cfg.Domain),
		Config:    registry.DefaultConfig(),
	})
	s.reg = reg

	// Step 4: ingest announces and anchor deltas into the registry
	annSub, err := nc.Subscribe(s.subjects.DiscoveryAnnounce(), s.handleAnnounce)
	if err != nil {
		s.shutdown(embedded)
		return fmt.Errorf("%s - failed to subscribe announces: %w", logPrefix, err)
	}
	defer annSub.Unsubscribe()

	deltaSub, err := nc.Subscribe(s.subjects.AnchorDeltaWildcard(), s.handleAnchorDelta)
	if err != nil {
		s.shutdown(embedded)
		return fmt.Errorf("%s - failed to subscribe anchor deltas: %w", logPrefix, err)
	}
	defer deltaSub.Unsubscribe()

	// Step 5: bootstrap responder on the well-known domain
	bootstrapCfg, err := bootstrap.LoadConfig(cfg.BootstrapFile)
	if err != nil {
		s.shutdown(embedded)
		return fmt.Errorf("%s - failed to load bootstrap config: %w", logPrefix, err)
	}
	bootstrapResponder := bootstrap.NewResponder(nc, bootstrapCfg, cfg.BusName)
	if err := bootstrapResponder.Start(); err != nil {
		s.shutdown(embedded)
		return err
	}
	defer bootstrapResponder.Stop()

	// Step 6: catalog responder
	seeds, err := catalog.LoadSeeds(cfg.SeedFile)
	if err != nil {
		s.shutdown(embedded)
		return fmt.Errorf("%s - failed to load catalog seeds: %w", logPrefix, err)
	}
	catalogResponder := catalog.NewResponder(nc, cfg.Domain, cfg.BusName, seeds)
	if err := catalogResponder.Start(); err != nil {
		s.shutdown(embedded)
		return err
	}
	defer catalogResponder.Stop()

	// Step 7: VPS provider
	selfURI, err := spatial.FormatURI(cfg.Authority, cfg.Zone, "service", cfg.ServiceID)
	if err != nil {
		s.shutdown(embedded)
		return fmt.Errorf("%s - invalid service identity: %w", logPrefix, err)
	}
	provider := vps.NewProvider(nc, cfg.Domain, vps.Opts{
		ServiceID:        cfg.ServiceID,
		SelfURI:          selfURI,
		Name:             cfg.VPSName,
		Version:          cfg.VPSVersion,
		Coverage:         spatial.EarthFixedBBox(cfg.CoverageWest, cfg.CoverageSouth, cfg.CoverageEast, cfg.CoverageNorth),
		Endpoint:         busURL,
		Tags:             []string{"vps"},
		AnnounceInterval: cfg.AnnounceInterval,
		TTLSec:           cfg.AnnounceTTLSec,
	})
	if err := provider.Start(); err != nil {
		s.shutdown(embedded)
		return err
	}
	defer provider.Stop()

	// Step 8: HTTP health server
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ok := nc.Status() == nats.CONNECTED
		if ok && cfg.HealthCheckTimeout > 0 {
			// A round trip proves the bus is answering, not just connected.
			if err := nc.FlushTimeout(cfg.HealthCheckTimeout); err != nil {
				slog.Warn(fmt.Sprintf("%s - health flush failed: %v", logPrefix, err))
				ok = false
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":         ok,
			"dds_domain": cfg.Domain,
			"entries":    reg.Len(),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Provider stack is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	s.httpServer.Shutdown(ctx)
	s.shutdown(embedded)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) shutdown(embedded *busserver.Server) {
	if s.reg != nil {
		s.reg.Close()
	}
	if s.nc != nil {
		s.nc.Drain()
	}
	if embedded != nil {
		embedded.Shutdown()
		embedded.WaitForShutdown()
	}
}

// handleAnnounce ingests announces from the discovery subject.
func (s *Server) handleAnnounce(msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed envelope: %v", logPrefix, err))
		return
	}
	if !env.Kind.Known() || env.Kind != envelope.KindAnnounce || s.filter.ShouldDrop(env) {
		return
	}
	body, err := env.Body()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed announce: %v", logPrefix, err))
		return
	}
	ann := body.(*envelope.Announce)
	if _, err := s.reg.Ingest(context.Background(), ann); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to ingest announce %s: %v", logPrefix, ann.SelfURI, err))
	}
}

// handleAnchorDelta folds anchor updates into the registry as anchor
// announces keyed by zone and anchor id.
func (s *Server) handleAnchorDelta(msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed envelope: %v", logPrefix, err))
		return
	}
	if env.Kind != envelope.KindAnchorDelta || s.filter.ShouldDrop(env) {
		return
	}
	body, err := env.Body()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed anchor delta: %v", logPrefix, err))
		return
	}
	delta := body.(*envelope.AnchorDelta)

	ann := AnchorAnnounce(s.cfg.Authority, delta)
	if _, err := s.reg.Ingest(context.Background(), ann); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to ingest anchor %s: %v", logPrefix, delta.AnchorID, err))
		return
	}
	slog.Debug(fmt.Sprintf("%s - ingested anchor delta %s in %s", logPrefix, delta.AnchorID, delta.SetID))
}

// AnchorAnnounce converts an anchor delta into the registry's announce
// shape: a point extent at the anchor's pose under the zone named by the
// delta's set id.
func AnchorAnnounce(authority string, delta *envelope.AnchorDelta) *envelope.Announce {
	uri := &spatial.URI{Authority: authority, Zone: delta.SetID, RType: "anchor", RID: delta.AnchorID}
	return &envelope.Announce{
		SelfURI: uri.String(),
		RType:   envelope.RTypeAnchor,
		Name:    delta.AnchorID,
		Bounds: spatial.EarthFixedBBox(
			delta.GeoPose.LonDeg, delta.GeoPose.LatDeg,
			delta.GeoPose.LonDeg, delta.GeoPose.LatDeg,
		),
		Tags:   []string{"anchor", delta.SetID},
		TTLSec: 3600,
		Stamp:  delta.Stamp,
	}
}

// homePageTemplate is the HTML for the provider status page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Spatial Discovery</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Spatial Discovery</h1>
  <p class="meta">Domain <span class="stat">{{.Domain}}</span>, {{len .Entries}} live entries.</p>

  <section>
    <h2>Registry</h2>
    {{if not .Entries}}
    <p>No announces registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Self URI</th><th>Type</th><th>Name</th><th>Version</th><th>Expires</th></tr>
      </thead>
      <tbody>
        {{range .Entries}}
        <tr>
          <td>{{.Announce.SelfURI}}</td>
          <td>{{.Announce.RType}}</td>
          <td>{{.Announce.Name}}</td>
          <td>{{.Announce.Version}}</td>
          <td>{{.ExpiresAt.Format "15:04:05"}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the status page template.
type homeData struct {
	Domain  int
	Entries []registry.Entry
}

// handleHome returns an HTTP handler for the provider status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := homeData{Domain: s.cfg.Domain, Entries: s.reg.Entries()}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
