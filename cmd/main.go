package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rajeshbanoth/randomchat/internal/api/handler"
	"github.com/rajeshbanoth/randomchat/internal/chathub"
	"github.com/rajeshbanoth/randomchat/internal/config"
	"github.com/rajeshbanoth/randomchat/internal/match"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := config.NewLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var publisher *chathub.StatsPublisher
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, stats fanout disabled")
		} else {
			publisher = chathub.NewStatsPublisher(rdb, cfg.StatsChannel)
			log.WithField("channel", cfg.StatsChannel).Info("redis stats fanout enabled")
		}
	}

	engine := match.NewEngine(cfg.Scoring, log)
	hub := chathub.NewHub(engine, chathub.Options{
		InactiveThreshold: cfg.InactiveThreshold,
		CleanupInterval:   cfg.CleanupInterval,
		RematchInterval:   cfg.RematchInterval,
		MaxWaitTime:       cfg.MaxWaitTime,
		TypingTTL:         cfg.TypingTTL,
		CallRequestTTL:    cfg.CallRequestTTL,
		StatsInterval:     cfg.StatsInterval,
		AutoStartVideo:    cfg.AutoStartVideo,
	}, log, publisher)
	go hub.Run(ctx)

	if log.GetLevel().String() != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	h := handler.NewHandler(hub, cfg, log)
	h.Routes(router)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	hub.Stop()
	log.Info("server stopped")
}
