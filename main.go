package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sjsage522/hotissueworker/config"
	"sjsage522/hotissueworker/internal/crawler"
	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/internal/normalizer"
	"sjsage522/hotissueworker/internal/reconciler"
	"sjsage522/hotissueworker/logger"
	"sjsage522/hotissueworker/services/cache"
	"sjsage522/hotissueworker/services/publisher"
	"sjsage522/hotissueworker/services/storage"
	"sjsage522/hotissueworker/services/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single batch and exit")
	ingest := flag.String("ingest", "", "reconcile a CSV file written by an earlier run and exit")
	domainFlag := flag.String("domain", string(model.DomainHot), "destination of -ingest: hot or politics")
	sitesFlag := flag.String("sites", "", "comma separated site names to crawl (default: all)")
	flag.Parse()

	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	loc, _ := cfg.Location()

	log.Info().
		Str("environment", cfg.Environment).
		Str("db_driver", cfg.DBDriver).
		Str("schedule", cfg.CrawlSchedule).
		Msg("Starting application")

	// Set up context with cancellation on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	var names []string
	if *sitesFlag != "" {
		names = strings.Split(*sitesFlag, ",")
	}
	crawlers, err := crawler.CreateCrawlers(names, services.Guard, loc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create crawlers")
	}
	log.Info().Int("crawler_count", len(crawlers)).Msg("Created crawlers")

	rec := reconciler.New(services.Store, normalizer.New(loc), loc)
	w := worker.NewWorker(crawlers, rec, services.Publisher, worker.OptionsFromConfig(cfg, loc))

	switch {
	case *ingest != "":
		domain, err := model.ParseDomain(*domainFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -domain")
		}
		if _, err := w.IngestFile(ctx, *ingest, domain); err != nil {
			services.Cleanup()
			log.Fatal().Err(err).Str("path", *ingest).Msg("Ingest failed")
		}

	case *once:
		report, _ := w.RunBatch(ctx)
		if report.Failed() > 0 {
			services.Cleanup()
			log.Error().Int("failed", report.Failed()).Msg("Batch finished with failed runs")
			os.Exit(1)
		}

	default:
		log.Info().Msg("Starting hot issue worker")
		if err := w.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Store     *storage.Store
	Guard     *cache.RateLimitGuard
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
		s.Publisher = nil
	}
	if s.Store != nil {
		s.Store.Close()
		s.Store = nil
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	store, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	services.Store = store
	logger.Info("Connected to %s database %s", cfg.DBDriver, cfg.DBName)

	// Rate limit blocks live in memcache when configured so they survive restarts
	var cacheService cache.CacheService = cache.NewMemoryCache()
	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			logger.Warn("Memcache at %s unavailable, using in-process blocks: %v", cfg.MemcacheAddr, err)
		} else {
			cacheService = mc
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}
	services.Guard = cache.NewRateLimitGuard(cacheService, cfg.RateLimitBlock)

	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisPublisher.Ping(pingCtx); err != nil {
			services.Cleanup()
			redisPublisher.Close()
			return nil, err
		}
		services.Publisher = redisPublisher
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	} else {
		logger.Info("REDIS_ADDR not set, ingest events disabled")
	}

	return services, nil
}
