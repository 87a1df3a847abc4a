package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"inventario/internal/auth"
	"inventario/internal/cache"
	"inventario/internal/config"
	"inventario/internal/httpapi"
	"inventario/internal/logger"
	"inventario/internal/service"
	"inventario/internal/store"
	"inventario/internal/store/memory"
	pgstore "inventario/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger.Init("inventario", cfg.LogLevel, cfg.Development())

	if err := validateBootstrapConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid bootstrap configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory")
	}

	summaries := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop summary cache")
		} else {
			summaries = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: noop")
	}

	authSvc := auth.New(repo, time.Duration(cfg.SessionTTLHours)*time.Hour, auth.Defaults{
		AdminUser:      cfg.DefaultAdminUser,
		AdminPassword:  cfg.DefaultAdminPassword,
		SellerUser:     cfg.DefaultSellerUser,
		SellerPassword: cfg.DefaultSellerPassword,
	})
	if err := authSvc.EnsureDefaultUsers(ctx); err != nil {
		log.Fatal().Err(err).Msg("default user bootstrap failed")
	}

	svc := service.New(repo, summaries, time.Duration(cfg.SummaryCacheTTLSeconds)*time.Second)
	api := httpapi.New(svc, authSvc)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("inventory backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// validateBootstrapConfig blocks production startups that would fall back
// to the documented development credentials.
func validateBootstrapConfig(cfg config.Config) error {
	if cfg.Development() {
		return nil
	}
	if cfg.DefaultAdminPassword == "" || cfg.DefaultSellerPassword == "" {
		return fmt.Errorf("DEFAULT_ADMIN_PASSWORD and DEFAULT_SELLER_PASSWORD must be set in production")
	}
	if len(cfg.DefaultAdminPassword) < 8 || len(cfg.DefaultSellerPassword) < 8 {
		return fmt.Errorf("bootstrap passwords must be at least 8 characters")
	}
	return nil
}
