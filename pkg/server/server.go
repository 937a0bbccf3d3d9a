// Package server composes the session store, gateway, relay, and HTTP API
// into one process and drives its lifecycle.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantumflow/aichat/pkg/gateway"
	"github.com/quantumflow/aichat/pkg/httpapi"
	"github.com/quantumflow/aichat/pkg/relay"
	"github.com/quantumflow/aichat/pkg/store"
)

// Options configure a server instance.
type Options struct {
	Addr string
	// IdleWindow is forwarded to the relay's disconnect-time sweep.
	IdleWindow time.Duration
	// EvictInterval enables the periodic background sweep when positive.
	EvictInterval time.Duration
}

// Server owns the composed HTTP server and its collaborators.
type Server struct {
	store         *store.Store
	relay         *relay.Relay
	httpSrv       *http.Server
	evictInterval time.Duration
	started       time.Time
}

// New wires the store, relay, and handlers onto a mux and builds the HTTP
// server.
func New(ctx context.Context, gw gateway.Client, opts Options) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	st := store.New()
	rl := relay.New(ctx, st, gw, relay.Options{IdleWindow: opts.IdleWindow})
	started := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rl.Handler())
	mux.HandleFunc("/api/ai/chat", httpapi.NewChatHandler(gw))
	mux.HandleFunc("/api/ai/image", httpapi.NewImageHandler(gw))
	mux.HandleFunc("/api/health", httpapi.NewHealthHandler(st, rl, started))
	mux.HandleFunc("/api/database/stats", httpapi.NewStoreStatsHandler(st))
	mux.HandleFunc("/api/system/metrics", httpapi.NewMetricsHandler(st, rl, started))

	return &Server{
		store: st,
		relay: rl,
		httpSrv: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		evictInterval: opts.EvictInterval,
		started:       started,
	}, nil
}

// Store exposes the session store, mainly for tests.
func (s *Server) Store() *store.Store { return s.store }

// Relay exposes the websocket relay.
func (s *Server) Relay() *relay.Relay { return s.relay }

// Handler returns the composed mux, for mounting under httptest.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled or an interrupt arrives, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	if s.evictInterval > 0 {
		eg.Go(func() error {
			s.runEvictionLoop(srvCtx)
			return nil
		})
	}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting aichat server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}

// runEvictionLoop periodically sweeps idle conversations so a long-lived
// connection cannot pin unbounded history in memory.
func (s *Server) runEvictionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.store.SweepIdle(s.relay.IdleWindow()); removed > 0 {
				log.Info().Int("removed", removed).Msg("evicted idle conversations")
			}
		}
	}
}
