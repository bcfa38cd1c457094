package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaychat/internal/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadServerConfig()
	if err != nil {
		return err
	}

	// Flags override their environment counterparts.
	addr := flag.String("addr", cfg.Addr, "listen address (host:port)")
	origin := flag.String("origin", cfg.ClientOrigin, "allowed browser origin (empty or * allows any)")
	flag.Parse()
	cfg.Addr = *addr
	cfg.ClientOrigin = *origin

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Stop(shutdownCtx); err != nil {
		return err
	}
	return handle.Wait()
}
