package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/openrasters/coverageview/internal/catalog"
	"github.com/openrasters/coverageview/internal/catalog/redisstore"
	"github.com/openrasters/coverageview/internal/core/config"
	"github.com/openrasters/coverageview/internal/invalidation/kafka"
	"github.com/openrasters/coverageview/internal/logger"
	"github.com/openrasters/coverageview/internal/metrics"
	"github.com/openrasters/coverageview/internal/observability"
	"github.com/openrasters/coverageview/internal/server"
	"github.com/openrasters/coverageview/internal/source"
)

var (
	version   = "dev"
	revision  = ""
	buildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Component: "viewserver",
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := metrics.Init(metrics.Config{
		Build: metrics.BuildInfo{Version: version, Revision: revision, BuildDate: buildDate},
	})
	observability.Init(prov.Registerer(), cfg.Metrics.Enabled)

	// Sources come from the seed file; without one the service serves an
	// empty registry and every read fails on the first open.
	reg := source.NewRegistry()
	var seeds []seedView
	if cfg.SeedFile != "" {
		var err error
		reg, seeds, err = loadSeed(cfg.SeedFile)
		if err != nil {
			log.Error("load seed", "file", cfg.SeedFile, "err", err)
			return 1
		}
		log.Info("seed loaded", "file", cfg.SeedFile,
			"datasets", len(reg.Names()), "views", len(seeds))
	}

	var store catalog.Catalog
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithDialTimeout(cfg.CatalogOpTimeout*4),
			redisstore.WithReadTimeout(cfg.CatalogOpTimeout))
		if err != nil {
			log.Error("redis catalog", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() {
			if err := rs.Close(); err != nil {
				log.Error("redis close", "err", err)
			}
		}()
		for _, sv := range seeds {
			def := sv.Definition
			if err := rs.PutView(ctx, &def); err != nil {
				log.Error("seed view", "view", def.Name, "err", err)
				return 1
			}
			if len(sv.Dimensions) > 0 {
				if err := rs.PutDimensions(ctx, def.Name, sv.Dimensions); err != nil {
					log.Error("seed dimensions", "view", def.Name, "err", err)
					return 1
				}
			}
		}
		store = rs
		log.Info("catalog backend", "kind", "redis", "addr", cfg.RedisAddr)
	} else {
		mem := catalog.NewMemory()
		for _, sv := range seeds {
			def := sv.Definition
			if err := mem.PutView(&def); err != nil {
				log.Error("seed view", "view", def.Name, "err", err)
				return 1
			}
			if len(sv.Dimensions) > 0 {
				mem.PutDimensions(def.Name, sv.Dimensions)
			}
		}
		store = mem
		log.Info("catalog backend", "kind", "memory")
	}

	cached, err := catalog.NewCached(store, cfg.CatalogCacheSize)
	if err != nil {
		log.Error("catalog cache", "err", err)
		return 1
	}

	runner := kafka.New(kafka.Config{
		Enabled: cfg.Invalidation.Enabled,
		Brokers: cfg.Invalidation.BrokerList(),
		Topic:   cfg.Invalidation.Topic,
		GroupID: cfg.Invalidation.GroupID,
	}, cached, log)
	if err := runner.Start(ctx); err != nil {
		log.Error("invalidation runner", "err", err)
		return 1
	}
	defer runner.Stop()

	deps := server.Deps{
		Catalog: cached,
		Opener:  reg,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = prov.Handler()
	}

	if err := server.Run(ctx, cfg, log, deps); err != nil {
		log.Error("server", "err", err)
		return 1
	}
	log.Info("shutdown complete")
	return 0
}
