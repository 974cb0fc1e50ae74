package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vn.io.arda/storefront-notifier/internal/application"
	"vn.io.arda/storefront-notifier/internal/backend"
	"vn.io.arda/storefront-notifier/internal/config"
	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/infrastructure/memory"
	"vn.io.arda/storefront-notifier/internal/infrastructure/postgres"
	"vn.io.arda/storefront-notifier/internal/infrastructure/redis"
	kafkaconsumer "vn.io.arda/storefront-notifier/internal/kafka"
	"vn.io.arda/storefront-notifier/internal/notifystore"
	"vn.io.arda/storefront-notifier/internal/push"
	"vn.io.arda/storefront-notifier/internal/stream"
	"vn.io.arda/storefront-notifier/internal/tokenstore"
	transporthttp "vn.io.arda/storefront-notifier/internal/transport/http"
)

func main() {
	// ── Logging ──────────────────────────────────────────────────────────────
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// ── Config ───────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.Server.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("env", cfg.Server.Env).
		Str("port", cfg.Server.Port).
		Str("backend", cfg.Backend.BaseURL).
		Str("store", cfg.Store.Driver).
		Msg("starting storefront-notifier")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Local state ──────────────────────────────────────────────────────────
	var (
		kv   domain.KV
		repo *postgres.Repository
	)
	switch cfg.Store.Driver {
	case "redis":
		client, err := redis.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		kv = redis.New(client, cfg.Redis.Prefix)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		repo = postgres.New(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare postgres schema")
		}
		kv = repo
		log.Info().Msg("postgres connected")

	default:
		kv = memory.New()
	}

	// ── Session ──────────────────────────────────────────────────────────────
	tokens := tokenstore.New(kv, "")
	if cfg.Session.AuthToken != "" {
		if err := tokens.SaveAuthToken(ctx, cfg.Session.AuthToken); err != nil {
			log.Fatal().Err(err).Msg("failed to store auth token")
		}
	}
	userID := cfg.Session.UserID
	if userID == "" {
		if token, err := tokens.AuthToken(ctx); err == nil {
			userID = tokenstore.Subject(token)
		}
	}
	tokens = tokens.WithUser(userID)
	log.Info().Str("user", tokens.UserID()).Msg("session resolved")

	store := notifystore.New(kv, tokens.UserID(), notifystore.Options{
		MaxRecords: cfg.Store.MaxRecords,
		MaxAge:     time.Duration(cfg.TTL.RetentionDays) * 24 * time.Hour,
	})
	if err := store.Load(ctx); err != nil {
		log.Error().Err(err).Msg("failed to restore notification log, starting empty")
	}

	sessionToken := func(ctx context.Context) string {
		t, _ := tokens.AuthToken(ctx)
		return t
	}

	// ── Backend & Push ───────────────────────────────────────────────────────
	api := backend.New(cfg.Backend.BaseURL, sessionToken).
		WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout})

	var messaging push.Messaging = push.Unsupported{}
	if cfg.Push.Provider == "static" {
		messaging = push.NewStatic(domain.Permission(cfg.Push.Permission), cfg.Push.Token)
	}
	registrar := push.NewRegistrar(messaging, api, tokens, store, cfg.Push.Platform)

	// ── Agent & SSE Hub ──────────────────────────────────────────────────────
	hub := transporthttp.NewHub()
	agent := application.NewAgent(application.Deps{
		Store:   store,
		Tokens:  tokens,
		KV:      kv,
		Backend: api,
		Push:    registrar,
		Hub:     hub,
	}, application.Options{
		Stream: stream.Config{
			BaseURL:        cfg.Backend.BaseURL,
			InitialBackoff: cfg.Stream.InitialBackoff,
			MaxBackoff:     cfg.Stream.MaxBackoff,
			MaxRetries:     cfg.Stream.MaxRetries,
		},
		PollInterval:     cfg.Polling.Interval,
		DegradedInterval: cfg.Polling.DegradedInterval,
	})
	if err := agent.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start notification agent")
	}

	if cfg.Push.AutoInit {
		if res, err := agent.InitPush(ctx); err != nil {
			log.Warn().Err(err).Msg("push init failed")
		} else {
			log.Info().Str("result", string(res)).Msg("push initialized")
		}
	}

	// ── HTTP Server ───────────────────────────────────────────────────────────
	handler := transporthttp.NewHandler(agent, hub)
	router := transporthttp.NewRouter(handler, tokens.UserID(), sessionToken, cfg.Server.AllowOrigins)

	// ── Kafka Consumer ────────────────────────────────────────────────────────
	if cfg.Kafka.Enabled {
		consumer, err := kafkaconsumer.New(
			cfg.Kafka.Brokers,
			cfg.Kafka.ConsumerGroupID,
			cfg.Kafka.Topics,
			tokens.UserID(),
			agent,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka consumer")
		}

		// Start Kafka consumer in background
		go consumer.Start(ctx)
		log.Info().Strs("topics", cfg.Kafka.Topics).Msg("kafka consumer started")
	}

	// ── TTL Purge Job (every 24h) ─────────────────────────────────────────────
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				agent.PurgeTTL(ctx, time.Duration(cfg.TTL.RetentionDays)*24*time.Hour)
				if repo != nil {
					keep := append(tokenstore.RetainedKeyPrefixes(), notifystore.LastSeenKeyPrefix)
					n, err := repo.PurgeOlderThan(ctx, cfg.TTL.RetentionDays, keep...)
					if err != nil {
						log.Error().Err(err).Msg("client state purge failed")
					} else {
						log.Info().Int64("deleted", n).Msg("client state purge completed")
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// ── Start HTTP Server ─────────────────────────────────────────────────────
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := router.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	// ── Graceful Shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	agent.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("storefront-notifier stopped")
}
