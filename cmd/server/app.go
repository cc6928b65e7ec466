package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/auth"
	"github.com/fridgechef/api/internal/cache"
	"github.com/fridgechef/api/internal/client"
	"github.com/fridgechef/api/internal/config"
	"github.com/fridgechef/api/internal/handler"
	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/logger"
	"github.com/fridgechef/api/internal/matching"
	"github.com/fridgechef/api/internal/metrics"
	"github.com/fridgechef/api/internal/middleware"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/queue"
	"github.com/fridgechef/api/internal/selection"
	"github.com/fridgechef/api/internal/service"
	"github.com/fridgechef/api/internal/store"
	ws "github.com/fridgechef/api/internal/websocket"
	"github.com/fridgechef/api/internal/worker"
	"github.com/fridgechef/api/pkg/response"
)

// maxBodySize fits a full cookbook upload.
const maxBodySize = (service.MaxCookbookPages*10 + 10) * 1024 * 1024

// app holds the dependencies shared by the serve and worker commands.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *store.DB
	rdb      *redis.Client
	redisOpt asynq.RedisClientOpt
	queue    *queue.Client
	cache    *cache.Cache
	jobs     *lifecycle.Manager
	matcher  *matching.Matcher
	gate     *selection.Gate
	storage  client.StorageClient
	vision   client.Vision
	search   client.ProductSearcher
	services map[string]bool
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Server.LogLevel, cfg.Server.Env)
	zap.ReplaceGlobals(log)

	db, err := store.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis not available", zap.Error(err))
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		rdb:      rdb,
		redisOpt: redisOpt,
		queue:    queue.NewClient(redisOpt, cfg.Queue),
		cache:    cache.New(rdb, cfg.Recommendations.CacheTTL, log.Named("cache")),
		jobs: lifecycle.NewManager(db.Repos().Jobs,
			lifecycle.WithLease(cfg.Jobs.Lease),
			lifecycle.WithObserver(metrics.JobObserver{}),
		),
		matcher:  matching.NewMatcher(cfg.Matching.IngredientThreshold, matching.WithBestMatch(cfg.Matching.BestMatch)),
		gate:     selection.NewGate(cfg.Matching.ConfidenceThreshold, cfg.Matching.SuggestionCount),
		services: map[string]bool{},
	}
	if err := a.initClients(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// initClients connects the external services, substituting in-process mocks
// for the ones that are not configured.
func (a *app) initClients(ctx context.Context) error {
	s3, err := client.NewS3Client(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	if s3 != nil {
		a.storage = s3
	} else {
		a.log.Info("object storage not configured, using in-memory storage")
		a.storage = client.NewMemoryStorage("http://localhost:" + a.cfg.Server.Port + "/files")
	}
	a.services["storage"] = s3 != nil

	if v := client.NewVisionClient(a.cfg.Vision); v != nil {
		a.vision = v
		a.services["vision"] = true
	} else {
		a.log.Info("vision model not configured, using mock extraction")
		a.vision = client.MockVision{}
		a.services["vision"] = false
	}

	if k := client.NewKeepaClient(a.cfg.ProductSearch); k != nil {
		a.search = k
		a.services["productSearch"] = true
	} else {
		a.log.Info("product search not configured, using mock search")
		a.search = client.MockProductSearch{}
		a.services["productSearch"] = false
	}
	return nil
}

func (a *app) close() {
	if err := a.queue.Close(); err != nil {
		a.log.Warn("failed to close queue client", zap.Error(err))
	}
	if err := a.rdb.Close(); err != nil {
		a.log.Warn("failed to close redis", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

// startWorker runs the queue server and the lease reaper until the
// returned func is called.
func (a *app) startWorker(ctx context.Context) (func(), error) {
	events := ws.NewRedisPublisher(a.rdb, a.log)
	runner := worker.NewRunner(a.jobs, events, a.log.Named("worker"))

	scans := worker.NewScanWorker(a.db, a.jobs, runner, a.storage, a.vision, a.cache, events, a.log)
	matches := worker.NewMatchWorker(a.db, a.jobs, runner, a.matcher, events, a.log)
	lookups := worker.NewLookupWorker(a.db, a.jobs, runner, a.search, a.gate, events, a.log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(model.TaskTypeCookbookScan, scans.ProcessCookbookTask)
	mux.HandleFunc(model.TaskTypeFridgeScan, scans.ProcessFridgeTask)
	mux.HandleFunc(model.TaskTypeMatch, matches.ProcessTask)
	mux.HandleFunc(model.TaskTypeLookup, lookups.ProcessTask)

	srv := queue.NewServer(a.redisOpt, a.cfg.Queue, a.cfg.Server.LogLevel, a.log.Named("asynq"))
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker server: %w", err)
	}

	reapCtx, cancel := context.WithCancel(ctx)
	go worker.NewReaper(a.jobs, a.cfg.Jobs.ReapInterval, a.log).Run(reapCtx)

	return func() {
		cancel()
		srv.Shutdown()
	}, nil
}

// listen serves HTTP until ctx is done.
func (a *app) listen(ctx context.Context) error {
	hub := ws.NewHub(a.log)
	go hub.Run(ctx)
	go func() {
		if err := ws.NewRelay(a.rdb, hub, a.log).Run(ctx); err != nil {
			a.log.Error("event relay stopped", zap.Error(err))
		}
	}()

	authMiddleware, closeAuth := a.authMiddleware(ctx)
	defer closeAuth()

	srv := a.routes(hub, authMiddleware)

	go func() {
		<-ctx.Done()
		a.log.Info("shutting down server")
		if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
			a.log.Error("server shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + a.cfg.Server.Port
	a.log.Info("server starting", zap.String("addr", addr))
	return srv.Listen(addr)
}

func (a *app) authMiddleware(ctx context.Context) (*middleware.AuthMiddleware, func()) {
	var verifier auth.TokenVerifier
	closeFn := func() {}
	if a.cfg.Zitadel.Issuer != "" {
		jv, err := auth.NewJWKSVerifier(ctx, a.cfg.Zitadel)
		if err != nil {
			a.log.Warn("JWKS verifier not initialized", zap.Error(err))
		} else {
			verifier = jv
			closeFn = func() { _ = jv.Close() }
		}
	}
	a.services["auth"] = verifier != nil || a.cfg.JWT.Secret != ""
	return middleware.NewAuthMiddleware(verifier, a.cfg.JWT.Secret), closeFn
}

func (a *app) routes(hub *ws.Hub, authMiddleware *middleware.AuthMiddleware) *fiber.App {
	cfg := a.cfg
	validate := validator.New()
	log := a.log.Named("http")

	scanService := service.NewScanService(a.db, a.jobs, a.queue, a.storage, a.cache, cfg.Jobs.MaxRetries, a.log)
	matchService := service.NewMatchService(a.db, a.jobs, a.queue, cfg.Jobs.MaxRetries, a.log)
	lookupService := service.NewLookupService(a.db, a.jobs, a.queue, cfg.Jobs.MaxRetries, a.log)
	cookbookService := service.NewCookbookService(a.db, a.log)
	discoveryService := service.NewDiscoveryService(a.db, a.storage, a.cache, cfg.ProductSearch.AssociatesTag, a.log)
	inventoryService := service.NewInventoryService(a.db, a.cache, a.log)
	recommendationService := service.NewRecommendationService(a.db, a.matcher, a.storage, a.cache,
		cfg.Recommendations, cfg.ProductSearch.AssociatesTag, a.log)

	scanHandler := handler.NewScanHandler(scanService, validate, log)
	matchHandler := handler.NewMatchHandler(matchService, validate, log)
	cookbookHandler := handler.NewCookbookHandler(cookbookService, lookupService, validate, log)
	inventoryHandler := handler.NewInventoryHandler(inventoryService, validate, log)
	recommendationHandler := handler.NewRecommendationHandler(recommendationService, validate, log)
	discoveryHandler := handler.NewDiscoveryHandler(discoveryService, validate, log)
	healthHandler := handler.NewHealthHandler(map[string]handler.Check{
		"database": a.db.Ping,
		"redis":    func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() },
	}, a.services)

	var apiAuth fiber.Handler
	if cfg.Gateway.Enabled {
		a.log.Info("gateway mode enabled, trusting X-User-* headers")
		apiAuth = middleware.GatewayAuthMiddleware()
	} else {
		apiAuth = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(a.rdb, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    maxBodySize,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{Format: logFormat}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(metrics.HTTPMiddleware())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", healthHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ForwardAuth verification endpoint, called by the gateway
	app.Get("/auth/verify", authMiddleware.Authenticate(), handler.NewAuthHandler().Verify)

	api := app.Group("/api", apiAuth)

	scan := api.Group("/scan", rateLimiter.ScanLimit(cfg.RateLimit.ScanPerHour))
	scan.Post("/cookbook", scanHandler.Cookbook)
	scan.Post("/fridge", scanHandler.Fridge)

	scanJobs := api.Group("/scan-jobs")
	scanJobs.Get("/", scanHandler.List)
	scanJobs.Get("/:id", scanHandler.Get)
	scanJobs.Get("/:id/items", scanHandler.Items)
	scanJobs.Post("/:id/retry", scanHandler.Retry)
	scanJobs.Delete("/:id", scanHandler.Delete)

	matches := api.Group("/matches")
	matches.Post("/", rateLimiter.MatchLimit(cfg.RateLimit.MatchPerHour), matchHandler.Create)
	matches.Get("/", matchHandler.List)
	matches.Get("/:id", matchHandler.Get)
	matches.Get("/:id/results", matchHandler.Results)
	matches.Post("/:id/retry", matchHandler.Retry)
	matches.Delete("/:id", matchHandler.Delete)

	cookbooks := api.Group("/cookbooks")
	cookbooks.Get("/", cookbookHandler.List)
	cookbooks.Get("/popular", discoveryHandler.PopularCookbooks)
	cookbooks.Get("/:id", cookbookHandler.Get)
	cookbooks.Put("/:id", cookbookHandler.Update)
	cookbooks.Delete("/:id", cookbookHandler.Delete)
	cookbooks.Get("/:id/recipes", cookbookHandler.Recipes)
	cookbooks.Post("/:id/product-lookup", rateLimiter.LookupLimit(cfg.RateLimit.LookupPerHour), cookbookHandler.StartLookup)
	cookbooks.Get("/:id/product-lookup", cookbookHandler.Lookup)
	cookbooks.Post("/:id/product-lookup/select", cookbookHandler.SelectProduct)
	cookbooks.Post("/:id/product-lookup/skip", cookbookHandler.SkipLookup)
	cookbooks.Post("/:id/product-lookup/retry", rateLimiter.LookupLimit(cfg.RateLimit.LookupPerHour), cookbookHandler.RetryLookup)

	inventory := api.Group("/inventory")
	inventory.Get("/", inventoryHandler.List)
	inventory.Post("/", inventoryHandler.Add)
	inventory.Put("/:id", inventoryHandler.Update)
	inventory.Delete("/:id", inventoryHandler.Delete)
	inventory.Delete("/", inventoryHandler.Clear)

	api.Get("/recommendations", recommendationHandler.Recommend)
	api.Get("/recipes/hot", discoveryHandler.HotRecipes)
	api.Get("/recipes/cuisines", discoveryHandler.Cuisines)
	api.Get("/recipes/:id", cookbookHandler.Recipe)
	api.Get("/recipes/:id/match", recommendationHandler.RecipeMatch)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	return response.Error(c, code, response.CodeServiceError, message, nil)
}
