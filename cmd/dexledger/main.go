package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"DexLedger/internal/asset"
	"DexLedger/internal/client"
	"DexLedger/internal/eventlog"
	"DexLedger/internal/exchange"
	"DexLedger/internal/ingestion"
	"DexLedger/internal/observability"
	"DexLedger/internal/persistence"
	"DexLedger/internal/query"
	"DexLedger/internal/server"
	"DexLedger/internal/views"
)

// Config is loaded from environment variables. Postgres and NATS are
// optional: leaving the DSN or URL empty runs the ledger with in-memory
// views only.
type Config struct {
	HTTPAddr string

	PostgresURL   string
	MigrationsDir string

	NATSURL      string
	NATSConsumer string

	FeeAccount string
	FeePercent int

	PersistBatchSize    int
	PersistFlushTimeout time.Duration

	TokenAddress  string
	TokenSymbol   string
	TokenDecimals int
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:            envOrDefault("DEX_HTTP_ADDR", ":8080"),
		PostgresURL:         os.Getenv("DEX_POSTGRES_DSN"),
		MigrationsDir:       envOrDefault("DEX_MIGRATIONS_DIR", "migrations"),
		NATSURL:             os.Getenv("DEX_NATS_URL"),
		NATSConsumer:        os.Getenv("DEX_NATS_CONSUMER"),
		FeeAccount:          envOrDefault("DEX_FEE_ACCOUNT", "0x000000000000000000000000000000000000fee5"),
		FeePercent:          envIntOrDefault("DEX_FEE_PERCENT", 10),
		PersistBatchSize:    envIntOrDefault("DEX_PERSIST_BATCH_SIZE", 50),
		PersistFlushTimeout: 10 * time.Millisecond,
		TokenAddress:        os.Getenv("DEX_TOKEN_ADDRESS"),
		TokenSymbol:         envOrDefault("DEX_TOKEN_SYMBOL", "DEX"),
		TokenDecimals:       envIntOrDefault("DEX_TOKEN_DECIMALS", 18),
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	if err := godotenv.Load(); err == nil {
		log.Println("INFO: loaded .env")
	}

	cfg := DefaultConfig()
	log.Println("INFO: DexLedger starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Core: event log, engine, gateway ---
	evlog := eventlog.New()
	engine := exchange.NewEngine(evlog, exchange.NopCustody{}, cfg.FeeAccount, uint64(cfg.FeePercent), metrics)
	gateway := client.NewGateway(engine)

	registry := asset.NewRegistry()
	if cfg.TokenAddress != "" {
		registry.Register(asset.ID(cfg.TokenAddress), cfg.TokenSymbol, uint8(cfg.TokenDecimals))
		log.Printf("INFO: registered token %s (%s)", cfg.TokenSymbol, cfg.TokenAddress)
	}

	// --- Derived views ---
	projector := views.NewProjector(metrics)
	go projector.Run(ctx, evlog)

	errChan := make(chan error, 8)

	// --- Postgres (optional): migrations, archive worker, query service ---
	var querySvc *query.Service
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Fatalf("FATAL: postgres open: %v", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("FATAL: postgres ping: %v", err)
		}
		log.Println("INFO: Postgres connected")

		if err := persistence.NewMigrator(db, cfg.MigrationsDir).Up(ctx); err != nil {
			log.Fatalf("FATAL: run migrations: %v", err)
		}
		log.Println("INFO: migrations applied")

		worker := persistence.NewWorker(db, evlog, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
		go func() {
			errChan <- worker.Run(ctx)
		}()

		querySvc = query.NewService(db)
	} else {
		log.Println("INFO: DEX_POSTGRES_DSN not set, running without archive")
	}

	// --- NATS (optional): outbound event publishing ---
	if cfg.NATSURL != "" {
		nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("FATAL: nats connect: %v", err)
		}
		defer nc.Close()
		log.Println("INFO: NATS connected")

		if err := ingestion.EnsureEventStream(ctx, js); err != nil {
			log.Fatalf("FATAL: ensure event stream: %v", err)
		}

		publisher := ingestion.NewOutboundPublisher(js, evlog, metrics)
		go publisher.Run(ctx, 1)

		// Read-replica mode: fold the published stream into the local views.
		// The projector dedups by key, so this is safe even next to a live
		// engine on the same log.
		if cfg.NATSConsumer != "" {
			subscriber := ingestion.NewNATSSubscriber(js, projector)
			if err := subscriber.Subscribe(ctx, cfg.NATSConsumer); err != nil {
				log.Fatalf("FATAL: nats subscribe: %v", err)
			}
			defer subscriber.Stop()
		}
	} else {
		log.Println("INFO: DEX_NATS_URL not set, running without outbound publishing")
	}

	// --- HTTP/WebSocket surface ---
	hub := server.NewHub(metrics)
	go hub.Run(ctx)
	go hub.RunEventStream(ctx, evlog)

	srv := server.NewServer(engine, gateway, projector, registry, querySvc, hub, healthChecker, metrics)
	go func() {
		errChan <- srv.Start(ctx, cfg.HTTPAddr)
	}()

	healthChecker.SetReady(true)
	log.Printf("INFO: DexLedger ready (http=%s, fee_percent=%d, fee_account=%s)",
		cfg.HTTPAddr, cfg.FeePercent, cfg.FeeAccount)

	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	cancel()

	// Give the archive worker time to flush its final batch.
	time.Sleep(500 * time.Millisecond)
	log.Println("INFO: DexLedger shutdown complete")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}
