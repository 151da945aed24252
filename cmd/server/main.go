// Command server runs the protocol-engine HTTP transport: it loads
// configuration, builds the catalog store and decision pipeline, and serves
// the wire-shaped request/response pair described by spec §6 until an
// interrupt signal triggers a graceful shutdown, adapted from the teacher's
// cmd/server/main.go.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genomax/protocol-engine/internal/api"
	"github.com/genomax/protocol-engine/internal/catalogstore"
	"github.com/genomax/protocol-engine/internal/config"
	"github.com/genomax/protocol-engine/internal/database"
	"github.com/genomax/protocol-engine/internal/obslog"
	"github.com/genomax/protocol-engine/internal/pipeline"
	"github.com/genomax/protocol-engine/internal/repository"
	"github.com/genomax/protocol-engine/internal/routingcache"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := configManager.Validate(); err != nil {
		os.Stderr.WriteString("configuration validation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	cfg := configManager.GetConfig()

	log := obslog.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.WithField("addr", cfg.Server.Host).Info("starting protocol-engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalogSource := catalogstore.NewFileSource(cfg.Catalog.SourceURL)
	catalog, err := catalogstore.New(catalogSource, log, catalogstore.Config{
		BreakerMaxFails: cfg.Catalog.BreakerMaxFails,
		BreakerOpenFor:  cfg.Catalog.BreakerOpenFor,
		HotCacheSize:    cfg.Cache.LRUSize,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to build catalog store")
	}
	if err := catalog.EnsureLoaded(ctx); err != nil {
		// A broken catalog source is fatal to process boot, never served
		// from an empty or partial snapshot (spec §5/§7).
		log.WithError(err).Fatal("catalog snapshot failed to load at startup")
	}

	var pl *pipeline.Pipeline
	routeCache, err := routingcache.New(cfg.Cache)
	if err != nil {
		log.WithError(err).Warn("routing cache unavailable, routing will run uncached")
		pl, err = pipeline.New(log, catalog)
	} else {
		defer routeCache.Close()
		catalog.OnVersionChange(func(version string) {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := routeCache.InvalidateAll(flushCtx); err != nil {
				log.WithError(err).WithField("catalog_version", version).
					Warn("failed to flush routing cache after catalog reload")
			}
		})
		pl, err = pipeline.NewWithCache(log, catalog, routeCache)
	}
	if err != nil {
		// A gate referencing an unknown marker is a startup misconfiguration.
		log.WithError(err).Fatal("pipeline failed to initialize")
	}

	var auditRepo *repository.AuditRepository
	if cfg.Database.Host != "" {
		dbPool, err := database.Connect(ctx, cfg.Database, log)
		if err != nil {
			log.WithError(err).Warn("audit database unavailable, audit persistence disabled")
		} else if err := dbPool.ValidateSchema(ctx); err != nil {
			log.WithError(err).Warn("audit schema not ready, audit persistence disabled")
			dbPool.Close()
		} else {
			defer dbPool.Close()
			auditRepo = repository.NewAuditRepository(dbPool.Raw(), log)
		}
	}

	var server *api.Server
	if auditRepo != nil {
		server = api.NewServer(cfg, log, pl, catalog, auditRepo)
	} else {
		server = api.NewServer(cfg, log, pl, catalog, nil)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, draining in-flight requests")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
	log.Info("server stopped")
}
