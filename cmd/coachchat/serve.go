package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/coachchat/pkg/config"
	"github.com/go-go-golems/coachchat/pkg/sem"
	"github.com/go-go-golems/coachchat/pkg/session"
	"github.com/go-go-golems/coachchat/pkg/transport"
	"github.com/go-go-golems/coachchat/pkg/ws"
)

type serveOptions struct {
	addr        string
	replayLimit int
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a chat session fed by the configured transport and serve it over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if opts.addr != "" {
				cfg.Server.Addr = opts.addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address, overrides server.addr")
	cmd.Flags().IntVar(&opts.replayLimit, "replay-limit", 1000, "Frames kept for clients that connect late")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, opts *serveOptions) error {
	stores, err := session.OpenStores(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	ps, err := transport.New(ctx, cfg.Transport)
	if err != nil {
		return err
	}
	defer func() { _ = ps.Close() }()

	id := uuid.NewString()
	pool := ws.NewPool(id)
	defer pool.CloseAll()
	broadcaster := ws.NewBroadcaster(pool, sem.NewFrameBuffer(opts.replayLimit))

	s, err := session.New(cfg, stores,
		session.WithID(id),
		session.WithTransport(ps, cfg.Transport.InboundTopic, cfg.Transport.OutboundTopic),
		session.WithSink(broadcaster),
		session.WithResetHook(broadcaster.Reset),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.NewHandler(s.ID, broadcaster, s, websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}))
	mux.HandleFunc("/healthz", newHealthHandler(s.ID, pool))
	mux.HandleFunc("/messages", newIngestHandler(ps, cfg.Transport.InboundTopic))
	mux.HandleFunc("/reset", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.Reset(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := s.Initialize(req.Context(), true); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(ctx) })
	g.Go(func() error {
		// stored messages are the hydrated history
		return s.Initialize(ctx, true)
	})
	g.Go(func() error {
		log.Info().Str("component", "serve").Str("addr", srv.Addr).Str("session_id", s.ID).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newIngestHandler publishes a posted server message on the inbound topic,
// the way the backend would.
func newIngestHandler(ps *transport.PubSub, topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if err := transport.PublishRaw(ps.Publisher, topic, body); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// newHealthHandler reports liveness and the number of attached chat clients.
func newHealthHandler(sessionID string, pool *ws.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"session_id":  sessionID,
			"connections": pool.Count(),
		})
	}
}
