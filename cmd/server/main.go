package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/festival-registration/internal/alert"
	"github.com/iliyamo/festival-registration/internal/cms"
	"github.com/iliyamo/festival-registration/internal/config"
	"github.com/iliyamo/festival-registration/internal/database"
	"github.com/iliyamo/festival-registration/internal/draft"
	"github.com/iliyamo/festival-registration/internal/handler"
	"github.com/iliyamo/festival-registration/internal/mailer"
	"github.com/iliyamo/festival-registration/internal/middleware"
	"github.com/iliyamo/festival-registration/internal/payment/provider"
	"github.com/iliyamo/festival-registration/internal/queue"
	"github.com/iliyamo/festival-registration/internal/repository"
	"github.com/iliyamo/festival-registration/internal/router"
	"github.com/iliyamo/festival-registration/internal/service"
)

func logLevel(s string) glog.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return glog.DEBUG
	case "warn":
		return glog.WARN
	case "error":
		return glog.ERROR
	case "off":
		return glog.OFF
	}
	return glog.INFO
}

// openDrafts prefers Redis, then a local bolt file, then memory.
func openDrafts(path string, rdb *redis.Client) (draft.Store, func()) {
	if rdb != nil {
		return draft.NewRedisStore(rdb, draft.DefaultTTL), func() {}
	}
	bs, err := draft.OpenBolt(path)
	if err != nil {
		log.Printf("draft: bolt unavailable (%v), using memory store", err)
		return draft.NewMemoryStore(), func() {}
	}
	return bs, func() { _ = bs.Close() }
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := repository.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("db schema: %v", err)
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Printf("redis: unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}
	drafts, closeDrafts := openDrafts(cfg.DraftDBPath, rdb)
	defer closeDrafts()

	proc, err := provider.New(cfg.Payment)
	if err != nil {
		log.Fatalf("payment: %v", err)
	}

	store := cms.New(cfg.CMS.BaseURL, cfg.CMS.APIToken, &http.Client{Timeout: time.Duration(cfg.CMS.Timeout) * time.Second})
	prices := cfg.Prices.PriceList()
	pub := queue.NewPublisher(cfg.AMQPURL)
	alerts := alert.New(cfg.Telegram)

	registrations := service.NewRegistrationService(store)
	payments := service.NewPaymentService(store, proc, prices, cfg.PublicBaseURL, pub)
	reconciler := service.NewReconciler(store, repository.NewPaymentEventRepo(db), pub, alerts)
	fulfiller := service.NewFulfiller(store, repository.NewFulfillmentRepo(db), mailer.New(cfg.SMTP), prices)
	exporter := service.NewExporter(store)

	consumer := queue.NewConsumer(cfg.AMQPURL, fulfiller)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("fulfillment-consumer: stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{cfg.PublicBaseURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	router.RegisterAll(e, router.Handlers{
		Waiver:       handler.NewWaiverHandler(),
		Registration: handler.NewRegistrationHandler(registrations),
		Draft:        handler.NewDraftHandler(drafts),
		Payment:      handler.NewPaymentHandler(payments),
		Webhook:      handler.NewWebhookHandler(proc, reconciler),
		Admin:        handler.NewAdminHandler(exporter, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.AccessTTLMin),
	}, router.Middleware{
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s, payments=%s)", addr, cfg.Env, proc.Name())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
