package repositories

import (
	"cinesync/internal/core/ports"
	"cinesync/internal/infrastructure/repositories/memory"
	redisrepo "cinesync/internal/infrastructure/repositories/redis"
	"cinesync/pkg/config"

	"go.uber.org/zap"
)

// NewPartyRepository creates the party store: Redis when enabled and
// reachable, with a fallback to the in-memory store otherwise.
func NewPartyRepository(cfg *config.Config, logger *zap.SugaredLogger) ports.PartyRepository {
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory party store",
				"error", err,
			)
		} else {
			logger.Info("using Redis party store")
			return redisrepo.NewRedisPartyRepository(client)
		}
	}

	logger.Info("using memory party store")
	return memory.NewMemoryPartyRepository()
}
