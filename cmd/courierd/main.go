package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	httpapi "github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/http"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/config"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/dispatch"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/earnings"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/feed"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/logging"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/mission"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/presence"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/route"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// presence: redis in production, in-memory for local runs
	var presenceStore presence.Store
	if cfg.RedisAddr != "" {
		rs := presence.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.PresenceGeoKey)
		defer rs.Close()
		presenceStore = rs
	} else {
		log.Warn("REDIS_ADDR not set, using in-memory presence store")
		presenceStore = presence.NewMemoryStore()
	}

	// missions and earnings share one postgres pool when configured
	var (
		missions storage.MissionStore
		ledger   earnings.Ledger
		stats    earnings.StatsStore
	)
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if cfg.RunMigrations {
			if err := runMigrations(pg); err != nil {
				log.Error("migration failed", "error", err)
				os.Exit(1)
			}
			log.Info("migrations applied")
		}
		pgl := earnings.NewPostgresLedger(pg.DB())
		missions, ledger, stats = pg, pgl, pgl
	} else {
		log.Warn("PG_DSN not set, using in-memory stores")
		missions = storage.NewMemoryStore()
		ledger = earnings.NewMemoryLedger()
		stats = earnings.NewMemoryStats()
	}

	// mission change feed: local bus, with kafka as the wire transport
	// between nodes when brokers are configured
	var (
		sink        feed.EventSink
		locationPub presence.Publisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		emitter := feed.NewEmitter(cfg.KafkaBrokers, cfg.MissionTopic)
		defer emitter.Close()
		sink = emitter

		pub := presence.NewKafkaPublisher(cfg.KafkaBrokers, cfg.LocationTopic)
		defer pub.Close()
		locationPub = pub
	}
	bus := feed.NewBus(sink)

	if len(cfg.KafkaBrokers) > 0 {
		src := feed.NewKafkaSource(cfg.KafkaBrokers, cfg.MissionTopic,
			cfg.FeedConsumerGroup, logging.ForComponent(log, "feed"))
		defer src.Close()
		go func() {
			if err := src.Run(ctx, bus.Publish); err != nil {
				log.Error("mission feed stopped", "error", err)
			}
		}()
	}

	var payer earnings.Payer
	if cfg.StripeKey != "" {
		payer = earnings.NewStripePayer(cfg.StripeKey)
	}

	api := httpapi.NewServer(httpapi.Deps{
		Missions:    missions,
		Presence:    presenceStore,
		Bus:         bus,
		Acceptance:  mission.NewAcceptance(missions, bus, stats, logging.ForComponent(log, "acceptance")),
		Engine:      route.NewEngine(route.NewOSRMClient(cfg.OSRMEndpoint), cfg.RouteTTL, logging.ForComponent(log, "route")),
		Ledger:      ledger,
		Stats:       stats,
		Payer:       payer,
		LocationPub: locationPub,
		Registry:    dispatch.NewRegistry(logging.ForComponent(log, "dispatch")),
		Freshness:   cfg.FreshnessWindow,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("courierd listening", "addr", cfg.HTTPAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		log.Error("server stopped", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
}

func runMigrations(pg *storage.PostgresStore) error {
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		return err
	}
	_, err = pg.DB().Exec(string(b))
	return err
}
