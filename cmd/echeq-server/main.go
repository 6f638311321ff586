package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	pw "github.com/playwright-community/playwright-go"

	"echeq/events"
	"echeq/server"
	"echeq/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️ No .env file loaded: %v", err)
	}

	// One-time driver setup; browsers come with the persistent profiles.
	log.Println("🔧 Installing Playwright driver (one-time setup)...")
	if err := pw.Install(&pw.RunOptions{SkipInstallBrowsers: true}); err != nil {
		log.Printf("⚠️ Playwright driver installation warning: %v (continuing anyway)", err)
	} else {
		log.Println("✅ Playwright driver ready")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.NewFromAddr(ctx, redisAddr)
	cancel()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer st.Close()
	log.Printf("✅ Connected to Redis at %s", redisAddr)

	var bus *events.Bus
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		bus, err = events.NewBus(events.Config{URL: natsURL, Subject: os.Getenv("NATS_SUBJECT")})
		if err != nil {
			log.Printf("⚠️ NATS unavailable, run events disabled: %v", err)
			bus = nil
		} else {
			defer bus.Close()
			log.Printf("✅ Publishing run events to NATS at %s", natsURL)
		}
	}

	svc := server.NewService(st, bus)
	svc.Start()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8086"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	log.Printf("🚀 Payment automation service starting on %s", port)
	if err := http.ListenAndServe(port, svc.Router()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
