package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"travel-matching-engine/audit"
	"travel-matching-engine/config"
	"travel-matching-engine/events"
	epubsub "travel-matching-engine/events/pubsub"
	"travel-matching-engine/health"
	"travel-matching-engine/matching"
	"travel-matching-engine/metrics"
	"travel-matching-engine/pool"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var version = "source"

func setLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func applyLogLevel(level string) {
	if os.Getenv("DEBUG") != "" {
		return
	}
	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
}

func main() {
	setLogger()
	log.Info().Msgf("Starting travel-matching-engine version: %s", version)
	// Load config
	cfg := config.Load()
	applyLogLevel(cfg.LogLevel)
	log.Info().Interface("config", cfg.Redacted()).Msg("config loaded")

	// Preflight required configuration
	if cfg.GoogleProjectID == "" {
		log.Fatal().Msg("missing Google project id; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or MATCHER_PUBSUB_PROJECT_ID")
	}
	if cfg.Subscription == "" {
		log.Fatal().Msg("missing Pub/Sub subscription; set REQUEST_EVENTS_SUBSCRIPTION or MATCHER_PUBSUB_SUBSCRIPTION")
	}
	if cfg.PubsubTopic == "" {
		log.Fatal().Msg("missing Pub/Sub topic; set MATCH_EVENTS_TOPIC or MATCHER_PUBSUB_TOPIC")
	}
	if cfg.MySQLDSN == "" {
		log.Fatal().Msg("missing MySQL DSN; set MATCHER_MYSQL_DSN")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid matching configuration")
	}

	// Context and shutdown handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics and health HTTP server
	mux := http.NewServeMux()
	metrics.Register(mux)
	health.Register(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Durable sinks: the audit trail and the agent directory share one MySQL
	// connection.
	db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("mysql connection failed")
	}
	auditor, err := audit.NewMySQLLogger(db)
	if err != nil {
		log.Fatal().Err(err).Msg("audit log migration failed")
	}
	directory, err := pool.NewDirectory(db)
	if err != nil {
		log.Fatal().Err(err).Msg("agent directory migration failed")
	}

	mcfg := cfg.MatchingConfig()
	var store matching.StateStore = matching.NewMemoryStore()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		rdb := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		store = matching.NewRedisStore(rdb, mcfg.StateRetention)
		log.Info().Msg("using redis state store")
	} else {
		log.Info().Msg("using in-memory state store")
	}

	scorer, err := matching.NewScorer(cfg.ScoringWeights(), cfg.StarRatingThreshold, cfg.StarBookingMinimum)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid scoring configuration")
	}
	selector := matching.NewSelector(scorer, mcfg)

	if cfg.CredentialsFile != "" {
		log.Info().Str("credsFile", cfg.CredentialsFile).Msg("using explicit Google credentials file")
	} else {
		log.Info().Msg("using default Google credentials (in-cluster or ambient)")
	}
	publisher := events.NewRetryingPublisher(epubsub.NewPublisher(cfg.GoogleProjectID, cfg.PubsubTopic, cfg.CredentialsFile), nil)
	engine, err := matching.NewEngine(mcfg, selector, store, directory, publisher, auditor)
	if err != nil {
		log.Fatal().Err(err).Msg("engine construction failed")
	}
	handler := matching.NewEventHandler(engine)
	subscriber := epubsub.NewSubscriber(cfg.GoogleProjectID, cfg.Subscription, cfg.CredentialsFile)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("starting metrics/health server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("subscription", cfg.Subscription).Msg("starting subscriber loop")
		health.SetReady(true)
		if err := subscriber.Start(gctx, handler); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Dur("interval", mcfg.CleanupInterval).Msg("starting state cleanup loop")
		if err := engine.RunCleanup(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("service exited with fatal error")
	}
	log.Info().Msg("shutdown complete")
}
