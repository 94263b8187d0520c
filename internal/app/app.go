// Package app is the composition root for the registry process: it wires
// the Persistent Store, In-Memory Index, Event Log, Health Monitor, Query
// Engine, Registry API, and mounted MCP tool subtree into one HTTP server,
// and drives its graceful shutdown the way the teacher's internal/app
// wires its aggregator server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/health"
	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/mcpapi"
	"github.com/meshctl/meshcore/internal/query"
	"github.com/meshctl/meshcore/internal/registry"
	"github.com/meshctl/meshcore/internal/registryapi"
	"github.com/meshctl/meshcore/internal/store"
	"github.com/meshctl/meshcore/pkg/logging"

	"github.com/mark3labs/mcp-go/server"
)

const component = "App"

// Config carries everything the registry process needs to start: where to
// persist state, where to listen, and how aggressively to tick the health
// monitor. It mirrors internal/config.RegistryConfig but stays decoupled
// from the CLI's config file format so this package has no import back on
// cmd/ or internal/config.
type Config struct {
	Host           string
	Port           int
	DatabasePath   string
	RedisAddr      string
	CacheTTL       time.Duration
	HealthTick     time.Duration
	ShutdownWindow time.Duration
}

// shutdownWindow is the hard deadline §5 gives graceful shutdown before the
// process forces an exit.
const shutdownWindow = 30 * time.Second

// RegistryApp owns every long-lived component of the registry process.
type RegistryApp struct {
	cfg   Config
	store *store.Store
	reg   *registry.Registry
	mon   *health.Monitor
	http  *http.Server
}

// New opens the store, rebuilds the index, and wires every component
// described in §2 (C1-C6) into a ready-to-Run application. Callers own the
// returned app's lifetime and must call Close once Run returns.
func New(cfg Config) (*RegistryApp, error) {
	if cfg.HealthTick <= 0 {
		cfg.HealthTick = health.DefaultTick
	}
	if cfg.ShutdownWindow <= 0 {
		cfg.ShutdownWindow = shutdownWindow
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.DatabasePath, err)
	}

	idx := index.New()
	log := eventlog.NewLog()
	versioner := eventlog.NewVersioner()
	cache := buildCache(cfg.RedisAddr, cfg.CacheTTL)

	reg := registry.New(st, idx, log, versioner, cache)
	if err := reg.LoadFromStore(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	mon := health.New(st, idx, log, versioner, cache, cfg.HealthTick)
	engine := query.NewEngine(idx)

	apiServer := registryapi.New(reg, cache)
	mcpServer := mcpapi.New(reg, engine)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())
	mux.Handle("/mcp/", http.StripPrefix("/mcp", server.NewStreamableHTTPServer(mcpServer.MCPServer())))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &RegistryApp{
		cfg:   cfg,
		store: st,
		reg:   reg,
		mon:   mon,
		http:  &http.Server{Addr: addr, Handler: mux},
	}, nil
}

// Addr returns the address the HTTP server listens on once Run has started.
func (a *RegistryApp) Addr() string { return a.http.Addr }

// Run starts the health monitor and the HTTP server, and blocks until ctx
// is cancelled or a termination signal arrives, at which point it runs the
// graceful shutdown sequence from §5: stop accepting new work, stop the
// monitor, close the listener, all bounded by a hard deadline.
func (a *RegistryApp) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.mon.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logging.Info(component, "registry listening on %s", a.http.Addr)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info(component, "shutdown signal received, draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownWindow)
		defer cancel()
		return a.http.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if closeErr := a.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close releases the store's connection pool. Safe to call after Run
// returns; a no-op if the store was never opened.
func (a *RegistryApp) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func buildCache(redisAddr string, ttl time.Duration) *query.ResponseCache {
	if redisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return query.NewResponseCache(client, ttl)
}
