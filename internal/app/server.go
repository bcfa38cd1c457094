package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	intrnl "relaychat/internal"
	"relaychat/internal/storage"
)

// ServerHandle represents a running relay server instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	store  *storage.Store
	log    *slog.Logger
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer connects the message store, wires the dispatcher and handlers,
// and starts serving in the background. Call Stop/Wait to manage its
// lifecycle. Connecting to Redis retries until it succeeds or ctx is
// cancelled.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	log := NewLogger(cfg.LogLevel)
	cfg.WSPath = NormalizeWSPath(cfg.WSPath)

	client, err := storage.Open(ctx, storage.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := storage.New(client, log, cfg.HistoryTTL)

	metrics := intrnl.NewMetrics()
	dispatcher := intrnl.NewDispatcher(store, metrics, log, intrnl.DispatcherConfig{
		Quiescence:   cfg.TypingQuiescence,
		StoreTimeout: cfg.StoreTimeout,
	})
	server := intrnl.NewServer(dispatcher, metrics, log, intrnl.ServerOptions{
		ClientOrigin:    cfg.ClientOrigin,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitWindow: cfg.RateLimitWindow,
	})

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.WSPath, server.ServeWS)
	mux.HandleFunc("/healthz", server.HandleHealth)
	mux.HandleFunc("/exists", server.HandleRoomExists)
	mux.Handle("/metrics", server.MetricsHandler())

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		store:  store,
		log:    log,
		done:   make(chan struct{}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("server shutdown error", "err", err)
		}
	}()

	go handle.serve(listener)
	log.Info("relay listening", "addr", handle.addr, "ws_path", cfg.WSPath)

	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if closeErr := h.store.Close(); closeErr != nil {
		h.log.Warn("store close error", "err", closeErr)
	}
	h.err = err
}
