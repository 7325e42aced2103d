package app

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/metagraph-backend/internal/clients/redis"
	"github.com/yungbote/metagraph-backend/internal/data/db"
	"github.com/yungbote/metagraph-backend/internal/graph"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
	"github.com/yungbote/metagraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/metagraph-backend/internal/registry"
	"github.com/yungbote/metagraph-backend/internal/store"
)

// App wires the metadata platform: entity registry, versioned aspect store,
// graph index hook, and the lineage query engine.
type App struct {
	Log      *logger.Logger
	Cfg      Config
	Registry *registry.Registry
	Store    *store.EntityAspectStore
	Engine   *graph.Engine
	EdgeDao  graph.EdgeDao

	pg          *db.PostgresService
	neo4jClient *neo4jdb.Client
	redisCache  *redis.LineageCache
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	reg, err := registry.LoadFile(cfg.RegistryPath, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load entity registry: %w", err)
	}

	app := &App{Log: log, Cfg: cfg, Registry: reg}

	var aspectDao store.AspectDao
	switch cfg.StoreBackend {
	case "memory":
		aspectDao = store.NewMemoryAspectDao()
	case "postgres":
		pg, err := db.NewPostgresService(log)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := pg.Migrate(); err != nil {
			log.Sync()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
		app.pg = pg
		aspectDao = store.NewGormAspectDao(pg.DB(), log)
	default:
		log.Sync()
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	var edgeDao graph.EdgeDao
	if neo4jClient != nil {
		app.neo4jClient = neo4jClient
		edgeDao = graph.NewNeo4jEdgeDao(neo4jClient, log)
		log.Info("Edge index backed by neo4j")
	} else {
		edgeDao = graph.NewMemoryEdgeDao()
		log.Info("Edge index backed by in-memory store")
	}
	app.EdgeDao = edgeDao

	var lineageCache graph.LineageCache
	redisCache, err := redis.NewLineageCache(log, cfg.LineageCacheTTL)
	if err != nil {
		log.Warn("Redis lineage cache unavailable, using local cache", "error", err)
	}
	if redisCache != nil {
		app.redisCache = redisCache
		lineageCache = redisCache
		log.Info("Lineage cache backed by redis")
	} else {
		lineageCache = graph.NewLocalLineageCache(cfg.LineageCacheTTL)
	}

	indexHook := graph.NewIndexHook(edgeDao, reg, log)
	emitter := store.NewMultiEmitter(log, store.NewLogEmitter(log), indexHook)

	aspectStore := store.NewEntityAspectStore(aspectDao, reg, emitter, log, store.Options{
		MaxTransactionRetries: cfg.MaxTransactionRetries,
		AlwaysEmitChangeLog:   cfg.AlwaysEmitChangeLog,
	})
	app.Store = aspectStore

	lineageRegistry := registry.NewLineageRegistry(reg)
	app.Engine = graph.NewEngine(edgeDao, lineageRegistry, lineageCache, log)

	return app, nil
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.Log.Warn("Redis close failed", "error", err)
		}
	}
	if a.neo4jClient != nil {
		if err := a.neo4jClient.Close(ctx); err != nil {
			a.Log.Warn("Neo4j close failed", "error", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("Postgres close failed", "error", err)
		}
	}
	a.Log.Sync()
}
