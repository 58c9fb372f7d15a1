package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"railsim/internal/cache"
	"railsim/internal/config"
	"railsim/internal/handler"
	"railsim/internal/hub"
	"railsim/internal/ingestor"
	"railsim/internal/middleware"
	"railsim/internal/movement"
	"railsim/internal/network"
	"railsim/internal/risk"
	"railsim/internal/sim"
	"railsim/internal/store"
	"railsim/internal/timetable"
	"railsim/pkg/overpass"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting railsim server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"redis_enabled", cfg.RedisEnabled,
		"speed_enrich_enabled", cfg.SpeedEnrichEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisCache *cache.RedisCache
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without shared cache", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	dataset, err := ingestor.NewFeedIngestor(cfg, logger).Load(ctx)
	if err != nil {
		logger.Error("failed to load network dataset", "error", err)
		os.Exit(1)
	}

	buildOpts := network.BuildOptions{DoubleTrackLead: network.DefaultDoubleTrackLead}
	graph := network.Build(dataset.Stations, dataset.Corridors, buildOpts)

	if cfg.SpeedEnrichEnabled {
		var speedCache ingestor.SpeedCache
		if redisCache != nil {
			speedCache = cache.NewSpeedLimits(redisCache, 0)
		}
		speeds := ingestor.NewSpeedIngestor(overpass.New(cfg.OverpassURL), speedCache, cfg.OverpassMaxFetch, cfg.OverpassDelay, logger)
		if overrides := speeds.Enrich(ctx, graph.Segments()); len(overrides) > 0 {
			buildOpts.SpeedOverrides = overrides
			graph = network.Build(dataset.Stations, dataset.Corridors, buildOpts)
		}
	}

	resolver := network.NewResolver(graph)
	logger.Info("network built",
		"stations", graph.StationCount(),
		"edges", len(graph.Edges()),
		"corridors", len(dataset.Corridors),
	)

	now := time.Now().In(timetable.IST)
	fleet := sim.NewFleetBuilder(timetable.NewGenerator(resolver, logger), sim.FleetOptions{
		Size:  cfg.FleetSize,
		Seed:  cfg.RandomSeed,
		Days:  cfg.SimDays,
		Epoch: timetable.Midnight(now),
	}, logger)

	var trains []*movement.Train
	if len(dataset.Schedules) > 0 {
		trains = fleet.FromSchedules(dataset.Schedules, dataset.Meta)
	} else {
		trains = fleet.Generate(dataset.Corridors)
	}

	clock, err := sim.NewClock(now, cfg.TickSimDuration, cfg.SpeedMultiplier)
	if err != nil {
		logger.Error("invalid clock settings", "error", err)
		os.Exit(1)
	}
	state := sim.NewState(resolver, dataset.Corridors, clock, trains)

	riskCfg := risk.DefaultConfig()
	riskCfg.Horizon = cfg.RiskHorizon
	riskCfg.Step = cfg.RiskStep
	riskCfg.TopN = cfg.RiskTopN
	riskCfg.DistanceKm = cfg.RiskDistanceKm
	riskCfg.MinScore = cfg.RiskMinScore

	engine := sim.NewEngine(state, riskCfg, uint64(cfg.RandomSeed), sim.EngineOptions{
		StopDelay:     cfg.StopDelay,
		TileZoomLevel: cfg.TileZoomLevel,
	}, logger)

	trainStore := store.New()
	wsHub := hub.NewHub(logger)
	driver := sim.NewDriver(engine, trainStore, wsHub, cfg.TickInterval, logger)
	if redisCache != nil {
		driver.SetPublisher(cache.NewTickPublisher(redisCache, cfg.CacheTTL, logger))
	}

	networkHandler, err := handler.NewNetworkHandler(resolver, dataset.Corridors, logger)
	if err != nil {
		logger.Error("failed to prepare network handler", "error", err)
		os.Exit(1)
	}

	api := handler.Handlers{
		HTTP:    handler.NewHTTPHandler(trainStore, engine),
		Network: networkHandler,
		Health:  handler.NewHealthHandler(driver, trainStore),
		Stats:   handler.NewStatsHandler(trainStore, engine, resolver, wsHub),
	}
	wsHandler := handler.NewWSHandler(wsHub, trainStore, engine, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	limiter.OnBlocked(handler.ServerStats.IncRateLimitBlocked)

	var apiChain http.Handler = api.Routes()
	apiChain = handler.GzipMiddleware(apiChain)
	apiChain = handler.LoggingMiddleware(logger)(apiChain)
	apiChain = handler.CORSMiddleware(apiChain)
	apiChain = limiter.Middleware(apiChain)

	root := http.NewServeMux()
	root.HandleFunc("/v1/ws", wsHandler.ServeWS)
	root.Handle("/", apiChain)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)

	go limiter.Run(ctx)

	go driver.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
