package app

import (
	"fmt"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/clinic-booking/internal/config"
)

// QueueRedisOpt points the job queue at the configured redis, on its own database index.
func QueueRedisOpt(cfg config.RedisConfig) (asynq.RedisClientOpt, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("invalid redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       cfg.QueueDB,
		PoolSize: cfg.PoolSize,
	}, nil
}
