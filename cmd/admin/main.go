// Command admin tails the stats channel a running server publishes to
// and prints each snapshot. Handy for watching a fleet without hitting
// every node's /stats endpoint.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rajeshbanoth/randomchat/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := config.NewLogger(cfg)

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required to watch the stats channel")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis unreachable")
	}

	sub := rdb.Subscribe(ctx, cfg.StatsChannel)
	defer sub.Close()
	log.WithField("channel", cfg.StatsChannel).Info("watching stats")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			log.WithField("stats", msg.Payload).Info("snapshot")
		}
	}
}
