package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/snapevent/config"
	"example.com/snapevent/internal/cache"
	"example.com/snapevent/internal/database"
	"example.com/snapevent/internal/events"
	"example.com/snapevent/internal/media"
	"example.com/snapevent/internal/messaging"
	"example.com/snapevent/internal/metrics"
	"example.com/snapevent/internal/moderation"
	"example.com/snapevent/internal/presence"
	"example.com/snapevent/internal/preview"
	"example.com/snapevent/internal/repositories"
	"example.com/snapevent/internal/search"
	"example.com/snapevent/internal/storage"
	"example.com/snapevent/internal/tracing"
)

// app bundles the wired services shared by the api and worker commands
type app struct {
	cfg        config.Config
	db         *gorm.DB
	events     *events.Service
	media      *media.Service
	moderation *moderation.Service
	users      *repositories.UserRepository
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
	tracker    presence.Tracker
	eventRepo  *repositories.EventRepository
	redis      *cache.RedisCache
	publisher  messaging.Publisher
}

// buildApp wires the full dependency graph from configuration
func buildApp(cfg config.Config) (*app, error) {
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache, _ = cache.NewRedisCache(config.RedisConfig{Enabled: false})
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	var indexer *search.ElasticClient
	if cfg.Elastic.Enabled {
		indexer, err = search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without indexing")
			indexer = nil
		}
	}

	files, err := storage.NewDiskStore(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}

	eventRepo := repositories.NewEventRepository(db)
	mediaRepo := repositories.NewMediaRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	userRepo := repositories.NewUserRepository(db)
	cleanupRepo := repositories.NewCleanupRepository(db)

	janitor := storage.NewJanitor(files, cleanupRepo)
	tracker := buildTracker(cfg, redisCache)
	metricsCollector := metrics.NewMetrics()

	var publisher messaging.Publisher
	if cfg.Azure.QueueConnStr != "" {
		publisher, err = messaging.NewPublisher(cfg.Azure)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, previews will be generated inline")
			publisher = nil
		}
	}

	var auditIndexer events.AuditIndexer
	var deletionIndexer moderation.DeletionIndexer
	if indexer != nil {
		auditIndexer = indexer
		deletionIndexer = indexer
	}

	var galleryCache media.Cache
	var moderationCache moderation.GalleryCache
	if redisCache.Enabled() {
		galleryCache = redisCache
		moderationCache = redisCache
	}

	eventsSvc := events.NewService(
		eventRepo, auditRepo, tracker, janitor, auditIndexer,
		tracer, cfg.Events.AutoEndDuration, cfg.PublicBaseURL,
	)
	mediaSvc := media.NewService(
		eventRepo, mediaRepo, files, publisher,
		preview.NewGenerator(files), galleryCache, tracer, metricsCollector,
	)
	moderationSvc := moderation.NewService(
		mediaRepo, eventRepo, files, deletionIndexer, moderationCache, tracer, metricsCollector,
	)

	return &app{
		cfg:        cfg,
		db:         db,
		events:     eventsSvc,
		media:      mediaSvc,
		moderation: moderationSvc,
		users:      userRepo,
		metrics:    metricsCollector,
		tracer:     tracer,
		tracker:    tracker,
		eventRepo:  eventRepo,
		redis:      redisCache,
		publisher:  publisher,
	}, nil
}

// buildTracker selects the presence backend. Redis keeps counts consistent
// across replicas; the in-memory tracker only sees its own process.
func buildTracker(cfg config.Config, redisCache *cache.RedisCache) presence.Tracker {
	if cfg.Presence.Store == "redis" && redisCache.Enabled() {
		return presence.NewRedisTracker(redisCache.Client(), cfg.Events.PresenceTTL)
	}
	if cfg.Presence.Store == "redis" {
		log.Warn().Msg("Redis presence store requested but Redis is unavailable, falling back to memory")
	}
	return presence.NewMemoryTracker(cfg.Events.PresenceTTL)
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Service Bus publisher")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}
}
