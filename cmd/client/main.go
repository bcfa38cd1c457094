package main

import (
	"flag"
	"fmt"
	"os"

	"relaychat/internal/app"
)

func main() {
	defaultServer := envOrDefault("RELAY_SERVER", "ws://localhost:3001/ws")
	defaultUser := envOrDefault("RELAY_USER", "")

	serverURL := flag.String("server", defaultServer, "WebSocket URL (e.g., ws://localhost:3001/ws)")
	userName := flag.String("user", defaultUser, "display name to join with")
	flag.Parse()

	args := flag.Args()
	var room string
	if len(args) >= 1 {
		room = args[0]
	}

	cfg := app.ClientConfig{
		ServerURL: *serverURL,
		Room:      room,
		UserName:  *userName,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
