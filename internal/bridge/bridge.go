// Package bridge exposes the bus protocol to plain HTTP clients: localize
// and catalog queries bridged over the correlator, and the well-known
// discovery endpoints backed by a local registry.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/internal/config"
	"github.com/openarcloud/spatial-discovery/pkg/busutil"
	"github.com/openarcloud/spatial-discovery/pkg/correlator"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/registry"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

const logPrefix = "bridge:bridge"

// Bridge is the HTTP facade process state.
type Bridge struct {
	cfg      *config.Config
	nc       *nats.Conn
	subjects busutil.Subjects
	corr     *correlator.Correlator
	reg      *registry.Registry
	clientID string
	frame    spatial.FrameRef

	mu       sync.Mutex
	announce *envelope.Announce

	subs []*nats.Subscription
}

// New creates a bridge bound to an existing bus connection.
func New(cfg *config.Config, nc *nats.Conn) *Bridge {
	clientID := "bridge-" + uuid.NewString()[:8]
	return &Bridge{
		cfg:      cfg,
		nc:       nc,
		subjects: busutil.NewSubjects(cfg.Domain),
		corr:     correlator.New(),
		reg: registry.NewRegistry(registry.NewRegistryParams{
			Config: registry.DefaultConfig(),
		}),
		clientID: clientID,
		frame:    spatial.NewFrameRef(clientID),
	}
}

// Start subscribes the bridge's bus feeds: announces for the local registry
// and the reply subjects feeding the correlator.
func (b *Bridge) Start() error {
	annSub, err := b.nc.Subscribe(b.subjects.DiscoveryAnnounce(), b.handleAnnounce)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe announces: %w", logPrefix, err)
	}
	b.subs = append(b.subs, annSub)

	locSub, err := b.nc.Subscribe(b.subjects.LocalizeResponse(), b.handleReply)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe localize responses: %w", logPrefix, err)
	}
	b.subs = append(b.subs, locSub)

	catSub, err := b.nc.Subscribe(b.subjects.ContentReplies(b.clientID), b.handleReply)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe catalog replies: %w", logPrefix, err)
	}
	b.subs = append(b.subs, catSub)

	slog.Info(fmt.Sprintf("%s - %s bridging domain %d", logPrefix, b.clientID, b.cfg.Domain))
	return nil
}

// Stop unsubscribes and closes the local registry.
func (b *Bridge) Stop() {
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.subs = nil
	b.reg.Close()
}

func (b *Bridge) handleAnnounce(msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil || env.Kind != envelope.KindAnnounce {
		return
	}
	body, err := env.Body()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed announce: %v", logPrefix, err))
		return
	}
	ann := body.(*envelope.Announce)
	if _, err := b.reg.Ingest(context.Background(), ann); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to ingest announce %s: %v", logPrefix, ann.SelfURI, err))
		return
	}
	if ann.RType == envelope.RTypeService {
		b.mu.Lock()
		b.announce = ann
		b.mu.Unlock()
	}
}

func (b *Bridge) handleReply(msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil {
		return
	}
	b.corr.OnEnvelope(env)
}

// Run starts the bridge process, blocks until shutdown signal, then cleans
// up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	var logLevel slog.Level
	switch cfg.LogLevel {
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

	if err := cfg.ValidateForBridge(); err != nil {
		return err
	}

	nc, err := busutil.Connect(cfg.BusURL, cfg.BusName+"-bridge")
	if err != nil {
		return err
	}

	b := New(cfg, nc)
	if err := b.Start(); err != nil {
		nc.Close()
		return err
	}

	httpAddr := fmt.Sprintf(":%d", cfg.BridgePort)
	httpServer := &http.Server{Addr: httpAddr, Handler: b.Handler()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP bridge listening on %s", logPrefix, httpAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
	b.Stop()
	nc.Drain()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
