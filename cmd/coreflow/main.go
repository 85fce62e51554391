package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/orbo-vision/coreflow/internal/alerter"
	"github.com/orbo-vision/coreflow/internal/auth"
	"github.com/orbo-vision/coreflow/internal/capture"
	"github.com/orbo-vision/coreflow/internal/cascade"
	"github.com/orbo-vision/coreflow/internal/config"
	"github.com/orbo-vision/coreflow/internal/frame"
	"github.com/orbo-vision/coreflow/internal/inference"
	"github.com/orbo-vision/coreflow/internal/middleware"
	"github.com/orbo-vision/coreflow/internal/store"
	"github.com/orbo-vision/coreflow/internal/supervisor"
	"github.com/orbo-vision/coreflow/internal/telegram"
	"github.com/orbo-vision/coreflow/internal/ws"
)

func main() {
	var (
		httpPortF = flag.String("http-port", "8080", "HTTP port for the telemetry WebSocket and admin API")
		dbgF      = flag.Bool("debug", false, "Log verbose stage timings")
	)
	flag.Parse()
	_ = *dbgF

	logger := log.New(os.Stderr, "[coreflow] ", log.Ltime)

	spoolDir := os.Getenv("SPOOL_DIR")
	if spoolDir == "" {
		spoolDir = "/dev/shm/coreflow"
	}
	sourceURI := os.Getenv("SOURCE_URI")
	if sourceURI == "" {
		logger.Fatalf("SOURCE_URI must be set (rtsp://, http(s)://, file://, device://, screen://)")
	}

	cfg := loadConfig(spoolDir)
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	var detector cascade.ObjectDetector
	var presence cascade.PresenceGuard
	var vision cascade.VisionSummarizer
	if endpoint := os.Getenv("INFERENCE_ENDPOINT"); endpoint != "" {
		client, err := inference.Dial(endpoint)
		if err != nil {
			logger.Fatalf("failed to dial inference service at %s: %v", endpoint, err)
		}
		defer client.Close()
		detector, presence, vision = client, client, client
		logger.Printf("inference service connected at %s", endpoint)
	} else {
		logger.Printf("no INFERENCE_ENDPOINT set, running motion-only detection")
	}

	var sinks []alerter.AlertSink
	if webhookURL := os.Getenv("WEBHOOK_URL"); webhookURL != "" {
		sinks = append(sinks, alerter.NewWebhookSink(webhookURL, os.Getenv("WEBHOOK_SECRET")))
		logger.Printf("webhook alert sink configured: %s", webhookURL)
	}
	if botToken := os.Getenv("TELEGRAM_BOT_TOKEN"); botToken != "" {
		chatID := os.Getenv("TELEGRAM_CHAT_ID")
		bot := telegram.New(telegram.Config{
			BotToken:        botToken,
			ChatID:          chatID,
			Enabled:         true,
			CooldownSeconds: envIntOr("TELEGRAM_COOLDOWN_S", 30),
		})
		sinks = append(sinks, alerter.NewTelegramSink(bot))
		logger.Printf("telegram alert sink configured: chat %s", chatID)
	}

	var observer supervisor.Observer
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(spoolDir, "coreflow.db")
	}
	auditStore, err := store.Open(dbPath)
	if err != nil {
		logger.Printf("audit store disabled: %v", err)
	} else {
		if err := auditStore.Migrate(); err != nil {
			logger.Fatalf("audit store migration failed: %v", err)
		}
		defer auditStore.Close()
		observer = auditStore
		logger.Printf("audit store initialized at %s", dbPath)
	}

	sup := supervisor.New(supervisor.Config{
		Snapshot: cfg,
		Logger:   logger,
		Detector: detector,
		Presence: presence,
		Vision:   vision,
		Sinks:    sinks,
		Observer: observer,
		Triggers: loadTriggers(),
		SpoolDir: spoolDir,
	})

	authenticator := auth.NewAuthenticator()
	if authenticator.IsEnabled() {
		logger.Printf("authentication enabled (user: %s)", os.Getenv("AUTH_USERNAME"))
	} else {
		logger.Printf("authentication disabled (set AUTH_ENABLED=true to enable)")
	}

	hub := ws.NewHub(logger)
	wsHandler := ws.NewHandler(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/login", loginHandler(authenticator))
	mux.Handle("/ws/telemetry", middleware.AuthMiddleware(authenticator)(wsHandler))

	server := &http.Server{Addr: ":" + *httpPortF, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())

	hints := capture.Hints{Scale: fmt.Sprintf("%d:%d", cfg.DownscaleW, cfg.DownscaleH)}
	if err := sup.Start(ctx, sourceURI, cfg.CaptureFPS, hints); err != nil {
		logger.Fatalf("failed to start capture: %v", err)
	}

	events, unsubscribe := sup.Telemetry().Subscribe(0)
	pumpStop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Pump(events, pumpStop)
	}()

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	logger.Printf("coreflow listening on :%s, analyzing %s", *httpPortF, sourceURI)
	logger.Printf("exiting (%v)", <-errc)

	cancel()
	sup.Stop()
	close(pumpStop)
	unsubscribe()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Println("exited")
}

func loginHandler(authenticator *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, `{"error": "method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
			return
		}

		token, expiresAt, err := authenticator.Authenticate(req.Username, req.Password)
		if err != nil {
			http.Error(w, `{"error": "invalid credentials"}`, http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"token": token, "expires_at": expiresAt})
	}
}

// loadConfig merges environment overrides onto config.Defaults(), matching
// orbo's main.go's flag/env-driven wiring generalized to this module's
// option set (spec.md §6).
func loadConfig(spoolDir string) *config.Snapshot {
	overrides := &config.Config{SpoolPath: &spoolDir}

	if fps := envInt("CAPTURE_FPS"); fps != nil {
		overrides.CaptureFPS = fps
	}
	if mode := os.Getenv("ALERTER_MODE"); mode != "" {
		m := config.AlerterMode(mode)
		overrides.Mode = &m
	}
	if digest := envInt("DIGEST_INTERVAL_S"); digest != nil {
		overrides.DigestIntervalSec = digest
	}
	if cooldown := envInt("COOLDOWN_S"); cooldown != nil {
		overrides.CooldownSec = cooldown
	}
	if os.Getenv("USE_PRESENCE_GUARD") == "true" {
		t := true
		overrides.UsePresenceGuard = &t
	}
	if os.Getenv("USE_VISION_SUMMARY") == "true" {
		t := true
		overrides.UseVisionSummary = &t
	}

	return overrides.Merge(config.Defaults())
}

func envInt(key string) *int {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return nil
	}
	return &n
}

func envIntOr(key string, fallback int) int {
	if n := envInt(key); n != nil {
		return *n
	}
	return fallback
}

// loadTriggers returns the Trigger set describer.Describe matches against.
// A future iteration may load these from a config file; for now a minimal
// built-in set covers the common security triggers spec.md §3 describes.
func loadTriggers() []frame.Trigger {
	return []frame.Trigger{
		{Label: "person_detected", Pattern: "person", Action: frame.ActionNotify, CooldownSecs: 60},
	}
}
