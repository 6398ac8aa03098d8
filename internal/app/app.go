// Package app wires the engine, the HTTP query API and the gRPC health
// service into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	httpapi "github.com/Sergimayol/sqlite-virtual-url/internal/api/http"
	"github.com/Sergimayol/sqlite-virtual-url/internal/config"
	"github.com/Sergimayol/sqlite-virtual-url/internal/engine"
	"github.com/Sergimayol/sqlite-virtual-url/internal/server"
)

// serviceName is reported by the health endpoints.
const serviceName = "urlvtab"

// App owns the engine and the network servers.
type App struct {
	cfg *config.Config

	engine   *engine.Engine
	shutdown *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New creates an App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Start opens the engine and starts serving.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())

	eng, err := engine.New(ctx, a.cfg)
	if err != nil {
		a.setStopped()
		return fmt.Errorf("failed to open engine: %w", err)
	}
	a.engine = eng
	a.shutdown.RegisterCloser("engine", eng)

	if err := a.startHTTP(); err != nil {
		a.shutdown.Shutdown(ctx, "startup failed")
		a.setStopped()
		return err
	}

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.shutdown.Shutdown(ctx, "startup failed")
			a.setStopped()
			return err
		}
	}

	log.Printf("app: started (storage=%s, data_dir=%s)", a.cfg.Storage.Mode, a.cfg.DataDir)
	return nil
}

// Handler returns the HTTP routes served by the app.
func (a *App) Handler() http.Handler {
	api := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.DefaultMiddleware(),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/query", api(httpapi.NewQueryHandler(a.engine)))
	mux.Handle("/v1/stats", api(httpapi.NewStatsHandler(a.engine.Stats(), a.engine.PayloadCache())))
	mux.HandleFunc("/health", a.healthHandler)
	return mux
}

func (a *App) startHTTP() error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpListener = ln

	a.httpServer = &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser("http", server.HTTPServerCloser(a.httpServer, 10*time.Second))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("app: HTTP server listening on %s", ln.Addr())
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("app: HTTP server error: %v", err)
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	ln, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.grpcListener = ln

	a.grpcServer = grpc.NewServer()
	a.health = health.NewServer()
	a.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	a.health.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.health)

	a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
		a.health.Shutdown()
		a.grpcServer.GracefulStop()
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("app: gRPC health server listening on %s", ln.Addr())
		if err := a.grpcServer.Serve(ln); err != nil {
			log.Printf("app: gRPC server error: %v", err)
		}
	}()
	return nil
}

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is off.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Stop drains requests, stops the servers and closes the engine.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Printf("app: shutdown timeout, some goroutines may not have finished")
	}

	log.Printf("app: stopped")
	return err
}

// WaitForShutdown blocks until a signal arrives or ctx is done, then stops.
func (a *App) WaitForShutdown(ctx context.Context) error {
	a.mu.Lock()
	sm := a.shutdown
	a.mu.Unlock()
	if sm == nil {
		return fmt.Errorf("app is not running")
	}
	if err := sm.ListenForSignals(ctx); err != nil {
		log.Printf("app: shutdown: %v", err)
	}
	return a.Stop(context.Background())
}

func (a *App) setStopped() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := a.engine.DB().PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"unhealthy","service":"%s"}`, serviceName)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"%s","storage":"%s"}`, serviceName, a.cfg.Storage.Mode)
}
