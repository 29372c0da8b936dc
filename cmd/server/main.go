package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-hubmon/internal/api"
	"github.com/technosupport/ts-hubmon/internal/broadcast"
	"github.com/technosupport/ts-hubmon/internal/catalog"
	"github.com/technosupport/ts-hubmon/internal/config"
	"github.com/technosupport/ts-hubmon/internal/data"
	"github.com/technosupport/ts-hubmon/internal/diag"
	"github.com/technosupport/ts-hubmon/internal/hub"
	"github.com/technosupport/ts-hubmon/internal/notify"
	"github.com/technosupport/ts-hubmon/internal/retention"
	"github.com/technosupport/ts-hubmon/internal/router"
	"github.com/technosupport/ts-hubmon/internal/status"
	"github.com/technosupport/ts-hubmon/internal/stream"
)

const serviceName = "ts-hubmon"

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/default.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// Root context cancelled on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// DB
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}
	defer db.Close()

	// Shared Redis client
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer rdb.Close()

	// Repositories
	events := &data.EventModel{DB: db}
	devices := &data.DeviceModel{DB: db}
	diags := &data.DiagnosticModel{DB: db}

	// App key: static from env, or file-backed with hot reload.
	var keySource *config.KeySource
	if cfg.Bridge.AppKeyFile != "" {
		keySource, err = config.KeyFromFile(cfg.Bridge.AppKeyFile)
		if err != nil {
			log.Fatalf("App key error: %v", err)
		}
		keySource.Watch(ctx)
	} else {
		if cfg.Bridge.AppKey == "" {
			log.Fatalf("App key error: set HUB_APP_KEY or HUB_APP_KEY_FILE")
		}
		keySource = config.StaticKey(cfg.Bridge.AppKey)
	}

	loc, err := time.LoadLocation(cfg.Diagnostics.Timezone)
	if err != nil {
		log.Fatalf("Timezone error: %v", err)
	}

	// Pipeline components
	engine := diag.NewEngine(diags, devices, loc, cfg.Diagnostics.BatteryThreshold)
	reporter := diag.NewReporter(diags, devices, loc)
	queue := broadcast.NewQueue(cfg.Queue.Capacity)
	rtr := router.New(events, engine, queue)

	// Stream status sinks: Redis always, NATS when configured.
	statusStore := status.NewStore(rdb)
	sinks := []stream.StatusSink{statusStore}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(serviceName),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			log.Printf("Warning: NATS Connect Failed: %v. Status publishing disabled.", err)
		} else {
			defer nc.Close()
			sinks = append(sinks, notify.NewNATSPublisher(nc, cfg.NATS.Subject, 3))
			log.Printf("Connected to NATS at %s", cfg.NATS.URL)
		}
	}

	hubClient := hub.NewClient(cfg.Bridge.IP, keySource, cfg.Bridge.VerifyTLS)

	// Background services
	refresher := catalog.NewRefresher(hubClient, devices, time.Hour)
	refresher.Start()

	cleaner := retention.NewCleaner(events, cfg.Retention.EventDays)
	cleaner.Start()

	streamClient := stream.NewClient(stream.Config{
		BridgeIP:     cfg.Bridge.IP,
		Key:          keySource,
		VerifyTLS:    cfg.Bridge.VerifyTLS,
		IdleTimeout:  cfg.IdleTimeout(),
		BackoffBase:  cfg.BackoffBase(),
		BackoffMax:   cfg.BackoffMax(),
		HealthyReset: cfg.HealthyReset(),
	}, rtr.HandleFrame, sinks...)

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		_ = streamClient.Run(ctx)
	}()

	// HTTP API
	handler := &api.Handler{
		Events:    events,
		Devices:   devices,
		Diags:     diags,
		Reporter:  reporter,
		Refresher: refresher,
		Hub:       hubClient,
		Status:    statusStore,
		Queue:     queue,
		DB:        db,
	}

	server := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: handler.Routes(),
	}
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown requested")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	refresher.Stop()
	cleaner.Stop()
	<-streamDone

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Graceful shutdown error: %v", err)
	}
	log.Printf("Server stopped gracefully")
}
