package app

import (
	"time"

	"github.com/yungbote/metagraph-backend/internal/platform/logger"
	"github.com/yungbote/metagraph-backend/internal/utils"
)

type Config struct {
	// StoreBackend selects the aspect DAO: "postgres" or "memory".
	StoreBackend string
	// RegistryPath locates the entity registry YAML.
	RegistryPath string
	// MaxTransactionRetries bounds the optimistic write loop.
	MaxTransactionRetries int
	// AlwaysEmitChangeLog emits change events even for no-op writes.
	AlwaysEmitChangeLog bool
	// LineageCacheTTL bounds how long a cached traversal stays valid.
	LineageCacheTTL time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	storeBackend := utils.GetEnv("STORE_BACKEND", "postgres", log)
	registryPath := utils.GetEnv("REGISTRY_PATH", "configs/entity-registry.yaml", log)
	maxRetries := utils.GetEnvAsInt("MAX_TRANSACTION_RETRIES", 3, log)
	alwaysEmit := utils.GetEnvAsBool("ALWAYS_EMIT_CHANGELOG", false, log)
	lineageCacheTTL := utils.GetEnvAsDuration("LINEAGE_CACHE_TTL", time.Minute, log)
	return Config{
		StoreBackend:          storeBackend,
		RegistryPath:          registryPath,
		MaxTransactionRetries: maxRetries,
		AlwaysEmitChangeLog:   alwaysEmit,
		LineageCacheTTL:       lineageCacheTTL,
	}
}
