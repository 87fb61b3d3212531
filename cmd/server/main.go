package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/clicktrail/config"
	"github.com/sifan077/clicktrail/internal/app/command"
	apprepository "github.com/sifan077/clicktrail/internal/app/repository"
	appserver "github.com/sifan077/clicktrail/internal/app/server"
	"github.com/sifan077/clicktrail/internal/app/service"
	inthttp "github.com/sifan077/clicktrail/internal/http/handler"
	"github.com/sifan077/clicktrail/internal/http/middleware"
	"github.com/sifan077/clicktrail/internal/infra/logger"
	infraNATS "github.com/sifan077/clicktrail/internal/infra/nats"
	infraPostgres "github.com/sifan077/clicktrail/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/clicktrail/internal/infra/prometheus"
	infraRedis "github.com/sifan077/clicktrail/internal/infra/redis"
	infraSQLite "github.com/sifan077/clicktrail/internal/infra/sqlite"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	shutdownTimeout        = 10 * time.Second
	staleExportAge         = time.Hour
	bloomHeadroom          = 100_000
	bloomFalsePositiveRate = 0.001
	hitQueueSize           = 4096
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.MustInit(logger.FromEnv())
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("base_url", cfg.App.BaseURL),
		zap.Int("anti_burst_seconds", cfg.App.AntiBurstSeconds),
		zap.Int("items_per_post", cfg.App.ItemsPerPost),
		zap.Int("max_export_mb", cfg.App.MaxExportMB),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
	)

	var checks []inthttp.HealthCheck

	db, pool, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	if pool != nil {
		defer pool.Close()
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()
	checks = append(checks, inthttp.HealthCheck{Name: "database", Ping: sqlDB.PingContext})

	if err := infraPostgres.AutoMigrate(ctx, db, infraPostgres.Models()...); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}
	log.Info("Storage ready", zap.String("driver", cfg.Storage.Driver))

	postRepo := apprepository.NewPostRepository(db)
	hitRepo := apprepository.NewHitRepository(db)
	ratingRepo := apprepository.NewRatingRepository(db)
	var redirectRepo apprepository.RedirectRepository = apprepository.NewRedirectRepository(db)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		redirectRepo = apprepository.NewCachedRedirectRepository(redirectRepo, redisClient, infraRedis.CacheTTL(cfg.Redis), log.Named("redirect_cache"))
		checks = append(checks, inthttp.HealthCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
		log.Info("Connected to Redis successfully")
	}

	var filter *service.TokenFilter
	if cfg.App.BloomFilter {
		tokens, err := redirectRepo.ListTokens(ctx)
		if err != nil {
			log.Fatal("Failed to load issued tokens", zap.Error(err))
		}
		filter = service.NewTokenFilter(uint(len(tokens))+bloomHeadroom, bloomFalsePositiveRate)
		filter.Load(tokens)
		log.Info("Token filter loaded", zap.Int("tokens", len(tokens)))
	}

	var (
		notifier service.HitNotifier
		reporter command.Reporter
	)
	if cfg.NATS.Enabled {
		natsConn, js, err := infraNATS.Connect(cfg.NATS)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()

		if err := infraNATS.EnsureHitStream(js); err != nil {
			log.Fatal("Failed to prepare hit stream", zap.Error(err))
		}
		objects, err := infraNATS.EnsureObjectStore(js, cfg.NATS.ExportBucket)
		if err != nil {
			log.Fatal("Failed to prepare export bucket", zap.Error(err))
		}

		hitQueue := service.NewHitQueue(service.NewHitPublisher(js), hitQueueSize, log.Named("hit_queue"))
		hitQueue.Start()
		defer hitQueue.Stop()
		notifier = hitQueue
		reporter = infraNATS.NewReporter(natsConn, objects, infraNATS.ReporterConfig{
			SummarySubject:  cfg.NATS.SummarySubject,
			DocumentSubject: cfg.NATS.DocumentSubject,
			Bucket:          cfg.NATS.ExportBucket,
		}, log.Named("reporter"))
		checks = append(checks, inthttp.HealthCheck{Name: "nats", Ping: func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})
		log.Info("Connected to NATS successfully")
	}

	issuer := service.NewTokenIssuer(redirectRepo, service.TokenIssuerOptions{
		BaseURL:      cfg.App.BaseURL,
		ItemsPerPost: cfg.App.ItemsPerPost,
		Filter:       filter,
		Logger:       log.Named("issuer"),
	})
	resolver := service.NewResolver(redirectRepo, hitRepo, service.ResolverOptions{
		AntiBurst: time.Duration(cfg.App.AntiBurstSeconds) * time.Second,
		Filter:    filter,
		Notifier:  notifier,
		Logger:    log.Named("resolver"),
	})
	dispatcher := command.NewDispatcher(command.Services{
		Publish: service.NewPublishService(postRepo, issuer, apprepository.NewTransactor(db), cfg.App.ItemsPerPost, log.Named("publish"), nil),
		Stats:   service.NewStatsService(postRepo, hitRepo, ratingRepo, cfg.App.ItemsPerPost, nil),
		Links:   service.NewLinkService(redirectRepo, hitRepo, issuer),
		Exporter: service.NewExporter(hitRepo, service.ExportOptions{
			Dir:      cfg.App.ExportDir,
			MaxBytes: cfg.App.MaxExportBytes(),
			Logger:   log.Named("export"),
		}),
		Ratings: service.NewRatingService(postRepo, ratingRepo, cfg.App.ItemsPerPost, nil),
	}, command.Options{
		ReportChatID: cfg.App.ReportChatID,
		Reporter:     reporter,
		Logger:       log.Named("command"),
	})

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Resolver:    resolver,
		Dispatcher:  dispatcher,
		Redis:       redisClient,
		RateLimit:   rateLimitConfig(cfg.RateLimit),
		Checks:      checks,
		ProxyHeader: cfg.App.ProxyHeader,
	})
	promServer := infraPrometheus.NewServer(cfg.Prometheus)

	sweeper := service.NewExportSweeper(log.Named("export_sweeper"), cfg.App.ExportDir, staleExportAge)
	sweeper.Start()
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting HTTP server", zap.String("addr", cfg.App.ListenAddr))
		return server.Listen(cfg.App.ListenAddr)
	})
	g.Go(func() error {
		log.Info("Starting Prometheus metrics server", zap.String("addr", promServer.Addr))
		if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shut down HTTP server", zap.Error(err))
		}
		return promServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server exited", zap.Error(err))
	}
	log.Info("Shutdown complete")
}

func openStorage(ctx context.Context, cfg *config.Config) (*gorm.DB, *pgxpool.Pool, error) {
	if cfg.Storage.Driver == config.StorageDriverSQLite {
		db, err := infraSQLite.Open(cfg.Storage.SQLitePath)
		return db, nil, err
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	db, err := infraPostgres.NewGorm(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return db, pool, nil
}

func rateLimitConfig(cfg config.RateLimitConfig) middleware.RateLimitConfig {
	out := middleware.DefaultRateLimitConfig()
	if cfg.MaxRequests > 0 {
		out.MaxRequests = cfg.MaxRequests
	}
	if d, err := time.ParseDuration(cfg.Window); err == nil && d > 0 {
		out.Window = d
	}
	return out
}
