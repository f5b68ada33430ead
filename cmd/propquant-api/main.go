package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joelkehle/propquant/internal/assumptions"
	"github.com/joelkehle/propquant/internal/audit"
	"github.com/joelkehle/propquant/internal/extraction"
	"github.com/joelkehle/propquant/internal/httpapi"
	"github.com/joelkehle/propquant/internal/render"
	"github.com/joelkehle/propquant/internal/store"
	"github.com/joelkehle/propquant/internal/telemetry"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	addrFlag := flag.String("addr", "", "listen address (overrides PORT env var)")
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides PROPQUANT_DB_PATH env var)")
	profilesFlag := flag.String("profiles", "", "YAML assumption profiles merged over the builtins (overrides PROPQUANT_PROFILES)")
	chromeFlag := flag.String("chrome", "", "Chromium binary used for PDF reports (default: autodetect)")
	flag.Parse()

	addr := *addrFlag
	if addr == "" {
		addr = ":8080"
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
	}
	dbPath := firstNonEmpty(*dbFlag, os.Getenv("PROPQUANT_DB_PATH"), "./data/propquant.db")
	profilesPath := firstNonEmpty(*profilesFlag, os.Getenv("PROPQUANT_PROFILES"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, "propquant-api")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	profiles := assumptions.Builtin()
	if profilesPath != "" {
		profiles, err = assumptions.Load(profilesPath)
		if err != nil {
			log.Fatalf("failed to load profiles (%s): %v", profilesPath, err)
		}
		log.Printf("loaded assumption profiles from %s", profilesPath)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create data dir (%s): %v", dir, err)
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to initialize sqlite store (%s): %v", dbPath, err)
	}
	defer st.Close()
	log.Printf("using sqlite store at %s", dbPath)

	cfg := httpapi.Config{
		Store:    st,
		Profiles: profiles,
		PDF:      render.NewPDFRenderer(*chromeFlag),
	}
	if strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")) != "" {
		caller, err := extraction.NewAnthropicCallerFromEnv()
		if err != nil {
			log.Fatal(err)
		}
		cfg.Auditor = audit.NewPipeline(extraction.NewListingFetcher(), extraction.NewExtractor(caller))
	} else {
		log.Printf("ANTHROPIC_API_KEY not set; /v1/audits disabled")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("propquant-api listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
