package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voice-scribe/backend/internal/api"
	"github.com/voice-scribe/backend/internal/auth"
	"github.com/voice-scribe/backend/internal/config"
	"github.com/voice-scribe/backend/internal/correction"
	"github.com/voice-scribe/backend/internal/db"
	"github.com/voice-scribe/backend/internal/engine"
	"github.com/voice-scribe/backend/internal/gpu"
	"github.com/voice-scribe/backend/internal/job"
	"github.com/voice-scribe/backend/internal/memwatch"
	"github.com/voice-scribe/backend/internal/resource"
	"github.com/voice-scribe/backend/internal/transcribe"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure data directory exists
	os.MkdirAll(cfg.DataPath, 0755)

	// Initialize database
	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Ensure admin user exists
	if err := database.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	log.Printf("Admin user ensured: %s", cfg.AdminUsername)

	// Detect acceleration hardware
	accel := gpu.Detect()
	log.Printf("GPU detection: mode=%s device=%s vram=%d", accel.Mode, accel.Device, accel.VRAMTotal)

	// Memory monitor and resource sentinel
	monitor := memwatch.New(memwatch.Thresholds{
		Warning:  cfg.Memory.WarningThreshold,
		Critical: cfg.Memory.CriticalThreshold,
	})
	inferTimeout := time.Duration(cfg.Engine.InferTimeoutSec) * time.Second
	sentinel := resource.NewSentinel(monitor, accel, map[resource.Kind]resource.Loader{
		resource.KindSpeechEngine: &engine.ServerLoader{
			Name:         "speech-engine",
			Command:      cfg.Engine.SpeechServerCmd,
			BaseURL:      cfg.Engine.SpeechServerURL,
			InferTimeout: inferTimeout,
		},
		resource.KindCorrectionModel: &engine.ServerLoader{
			Name:         "correction-model",
			BaseURL:      cfg.Engine.CorrectionURL,
			InferTimeout: inferTimeout,
		},
	}, resource.SentinelOptions{})

	// Job queue with progress broker
	broker := job.NewBroker()
	queue := job.NewJobQueue(database.DB(), broker)

	// Job handlers
	correctionSvc := correction.NewService(*cfg, database, sentinel, queue)
	transcribe.NewService(*cfg, database, sentinel, queue)

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Create router
	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Database: database,
		JWT:      jwtService,
		Queue:    queue,
		Broker:   broker,
		Sentinel: sentinel,
		Recovery: correctionSvc.Recovery(),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown: stop accepting work, then unload whatever the
	// sentinel still holds so no engine process outlives us.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	queue.Stop()
	sentinel.CleanupAll()
}
