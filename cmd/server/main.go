package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"shiftrecon/backend/internal/cache"
	"shiftrecon/backend/internal/catalog"
	"shiftrecon/backend/internal/config"
	"shiftrecon/backend/internal/httpapi"
	"shiftrecon/backend/internal/logging"
	"shiftrecon/backend/internal/metrics"
	"shiftrecon/backend/internal/pos"
	"shiftrecon/backend/internal/service"
	"shiftrecon/backend/internal/store"
	"shiftrecon/backend/internal/store/memory"
	pgstore "shiftrecon/backend/internal/store/postgres"
	"shiftrecon/backend/internal/units"
)

// configureWireFormat makes money encode as JSON numbers, the way the POS reports it.
func configureWireFormat() {
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	configureWireFormat()
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, os.Stdout)
	log := logging.For("main")

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	if err := validateShiftConfig(cfg); err != nil {
		log.Fatalf("invalid shift configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(); err != nil {
			log.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Warn("repository: in-memory, data is lost on restart")
	}

	var (
		analysisCache cache.AnalysisCache = cache.NoopAnalysisCache{}
		locker        cache.Locker        = cache.NoopLocker{}
	)
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, using noop cache and lock")
			_ = redisCache.Close()
		} else {
			analysisCache = redisCache
			locker = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: noop")
	}

	table := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			log.Fatalf("catalog %s: %v", cfg.CatalogPath, err)
		}
		table = loaded
		log.WithField("path", cfg.CatalogPath).Info("catalog loaded")
	}

	m := metrics.New()

	var source pos.Source
	if cfg.POSToken != "" {
		client, err := pos.NewClient(pos.ClientConfig{
			BaseURL:         cfg.POSBaseURL,
			Token:           cfg.POSToken,
			Timeout:         cfg.POSTimeout(),
			RateLimitPerMin: cfg.POSRateLimitPerMin,
		}, m)
		if err != nil {
			log.Fatalf("pos client: %v", err)
		}
		source = client
		closers = append(closers, client.Close)
		log.WithField("base_url", cfg.POSBaseURL).Info("pos: live")
	} else {
		source = pos.NewStatic()
		log.Warn("pos: POS_TOKEN not set, serving empty shift data")
	}

	svc := service.New(repo, source, table, service.Options{
		StoreID:        cfg.StoreID,
		Location:       cfg.Location(),
		ShiftStartHour: cfg.ShiftStartHour,
		ShiftEndHour:   cfg.ShiftEndHour,
		POSTimeout:     cfg.POSTimeout(),
		CacheTTL:       cfg.AnalysisCacheTTL(),
		Cache:          analysisCache,
		Locker:         locker,
		Metrics:        m,
		Units:          units.NewNormalizer(m),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, m, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.POSTimeout() + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("shift reconciliation backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Error("close error")
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.POSToken != "" {
		if err := validatePOSBaseURL(cfg.POSBaseURL); err != nil {
			return fmt.Errorf("POS_BASE_URL: %w", err)
		}
	}
	if strings.TrimSpace(cfg.AllowedOrigin) == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name a single origin")
	}
	return nil
}

// validatePOSBaseURL keeps the bearer token off plain http except for local
// test servers.
func validatePOSBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return fmt.Errorf("plain http is only allowed for localhost")
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func validateShiftConfig(cfg config.Config) error {
	if cfg.ShiftStartHour == cfg.ShiftEndHour {
		return fmt.Errorf("SHIFT_START_HOUR and SHIFT_END_HOUR must differ")
	}
	if _, err := time.LoadLocation(cfg.ShiftTimezone); err != nil {
		return fmt.Errorf("SHIFT_TIMEZONE %q: %w", cfg.ShiftTimezone, err)
	}
	return nil
}
