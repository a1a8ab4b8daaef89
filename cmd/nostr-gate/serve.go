package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/layer-3/nostr-gate/adapters/events"
	"github.com/layer-3/nostr-gate/adapters/git"
	"github.com/layer-3/nostr-gate/adapters/relay"
	"github.com/layer-3/nostr-gate/adapters/signature"
	"github.com/layer-3/nostr-gate/adapters/store"
	"github.com/layer-3/nostr-gate/adapters/tokenizer"
	"github.com/layer-3/nostr-gate/config"
	"github.com/layer-3/nostr-gate/ports"
	"github.com/layer-3/nostr-gate/service"
	httptransport "github.com/layer-3/nostr-gate/transport/http"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	v := config.New()
	var (
		configFile string
		dev        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(dev)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if configFile != "" {
				v.SetConfigFile(configFile)
			}
			found, err := config.ReadFile(v)
			if err != nil {
				return err
			}
			if !found {
				logger.Warn("no config file found, using defaults and env vars")
			}

			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger, dev)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a config file (default: nostr-gate.yaml in . or configs/)")
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode: human readable logs and gin debug output")
	_ = v.BindPFlag("http.port", cmd.Flags().Lookup("port"))

	return cmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, dev bool) error {
	if !dev {
		gin.SetMode(gin.ReleaseMode)
	}

	var redisClient *redis.Client
	if cfg.Store.Backend == config.StoreRedis || cfg.Events.Backend == config.EventsRedis {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("connected to redis")
	}

	// ── Challenge store ──────────────────────────────────────────────────────
	storeCfg := store.Config{
		ChallengeTTL: cfg.Auth.ChallengeTTL,
		VerifiedTTL:  cfg.Auth.VerifiedTTL,
		Capacity:     cfg.Store.Capacity,
	}
	var challenges ports.ChallengeStore
	switch cfg.Store.Backend {
	case config.StoreRedis:
		challenges = store.NewRedisStore(redisClient, storeCfg)
	default:
		mem := store.NewMemoryStore(storeCfg)
		go mem.Run(ctx, cfg.Store.SweepInterval)
		httptransport.RegisterStoreSize(mem.Len)
		challenges = mem
	}
	logger.Info("challenge store ready", zap.String("backend", cfg.Store.Backend))

	// ── Events ───────────────────────────────────────────────────────────────
	eventPub, closeEvents, err := newEventPublisher(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	// ── Auth ─────────────────────────────────────────────────────────────────
	schemes, err := signature.NewRegistryFromNames(cfg.Auth.Schemes)
	if err != nil {
		return err
	}
	tok, err := tokenizer.NewJWTTokenizer([]byte(cfg.Auth.Secret), cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	verifier := service.NewEventVerifier(challenges, schemes, service.VerifierConfig{
		Kinds:        cfg.Auth.Kinds,
		MaxClockSkew: cfg.Auth.MaxClockSkew,
	})

	var profiles ports.ProfileFetcher
	if len(cfg.Relay.URLs) > 0 {
		profiles = relay.NewClient(cfg.Relay.URLs, logger.Named("relay"))
	}

	authService := service.NewAuthService(challenges, verifier, profiles, tok, eventPub, logger.Named("auth"),
		service.WithSessionTTL(cfg.Auth.SessionTTL),
		service.WithProfileTimeout(cfg.Relay.Timeout),
		service.WithObserver(httptransport.Metrics{}),
	)

	repo := git.NewCLIRepository(cfg.Git.Dir, cfg.Git.Binary, logger.Named("git"))

	// ── HTTP ─────────────────────────────────────────────────────────────────
	router := httptransport.SetupRouter(ctx, authService, repo, logger, httptransport.RouterConfig{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("nostr-gate listening",
			zap.Int("port", cfg.HTTP.Port),
			zap.Strings("schemes", schemes.Names()),
			zap.Int("relays", len(cfg.Relay.URLs)),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down nostr-gate...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("nostr-gate stopped")
	return nil
}

func newEventPublisher(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (ports.EventPublisher, func(), error) {
	wmLogger := events.NewZapLogger(logger.Named("events"))

	switch cfg.Events.Backend {
	case config.EventsRedis:
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			wmLogger,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis publisher: %w", err)
		}
		return events.NewWatermillPublisher(publisher, cfg.Events.Topic), func() { _ = publisher.Close() }, nil

	case config.EventsGoChannel:
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		messages, err := pubSub.Subscribe(ctx, cfg.Events.Topic)
		if err != nil {
			return nil, nil, fmt.Errorf("subscribe to %s: %w", cfg.Events.Topic, err)
		}
		go events.LogVerified(messages, logger.Named("audit"))
		return events.NewWatermillPublisher(pubSub, cfg.Events.Topic), func() { _ = pubSub.Close() }, nil

	default:
		return events.NopPublisher{}, func() {}, nil
	}
}
