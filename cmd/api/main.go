package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailseller-api/internal/catalog"
	"mailseller-api/internal/config"
	"mailseller-api/internal/handler"
	"mailseller-api/internal/hotstore"
	"mailseller-api/internal/inventory"
	"mailseller-api/internal/logger"
	"mailseller-api/internal/middleware"
	"mailseller-api/internal/repository"
	"mailseller-api/internal/router"
	"mailseller-api/internal/scheduler"
	"mailseller-api/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.App.Environment, cfg.App.Debug)

	log.WithField("environment", cfg.App.Environment).Info("Starting MailSeller API...")

	// Catalog
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to load catalog")
	}
	log.WithField("path", cfg.Catalog.Path).Info("Catalog loaded")

	// Hot store
	var hot hotstore.Store
	switch cfg.HotStore.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.HotStore.RedisAddress(),
			Password: cfg.HotStore.RedisPassword,
			DB:       cfg.HotStore.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		cancel()
		hot = hotstore.NewRedis(client)
		log.Info("Redis hot store initialized")
	default:
		hot = hotstore.NewMemory()
		log.Info("In-memory hot store initialized")
	}
	defer hot.Close()

	// Durable store
	var store repository.Store
	switch cfg.Database.Type {
	case "mysql":
		store, err = repository.NewMySQLStore(cfg.Database.MySQLDSN(), log)
	default:
		store, err = repository.NewSQLiteStore(cfg.Database.Path, log)
	}
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize durable store")
	}
	defer store.Close()

	// Durable inventory pool (only when the catalog needs it)
	var pool inventory.PoolStore
	var poolRepo *repository.PostgresPool
	if cfg.PoolDB.Enabled {
		poolRepo, err = repository.NewPostgresPool(cfg.PoolDB.PostgresDSN(), log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize pool database")
		}
		defer poolRepo.Close()
		pool = poolRepo
	} else if cat.HasDurablePools() {
		log.Fatal("Catalog declares durable item types but POOL_DB_ENABLED is false")
	}

	// Services
	txlog := service.NewTransactionLog(store, cfg.Scheduler.TxFlushInterval, log)
	discounts := service.NewDiscountService(hot, store, store, cat, cfg.HotStore.DiscountTTL, log)
	tokens := service.NewTokenService(hot, log)
	credits := service.NewCreditService(hot, store, txlog, discounts, log)
	backends := inventory.NewSelector(hot, pool, log)
	engine := service.NewPurchaseEngine(cat, backends, discounts, txlog, cfg.Purchase.MaxQuantity, log)

	// Populate the hot store before accepting traffic
	reconciler := scheduler.NewReconciler(hot, store, log)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	if err := reconciler.LoadFromStore(loadCtx); err != nil {
		cancelLoad()
		log.WithError(err).Fatal("Failed to load hot store from durable store")
	}
	cancelLoad()

	// Background loop
	sched := scheduler.New(log)
	sched.Register("sync_credits", cfg.Scheduler.SyncInterval, reconciler.SyncCredits)
	sched.Register("sync_tokens", cfg.Scheduler.SyncInterval, reconciler.SyncTokens)
	sched.Register("cleanup_hot_store", cfg.Scheduler.CleanupInterval, reconciler.CleanupHotStore)
	sched.Register("cleanup_transactions", cfg.Scheduler.PruneInterval, reconciler.CleanupTransactions)
	sched.Register("reload_catalog", cfg.Catalog.ReloadInterval, func(context.Context) error {
		return cat.Reload(cfg.Catalog.Path)
	})
	sched.Start()

	// Handlers
	checks := map[string]handler.ReadyCheck{
		"hot_store": func() error {
			_, err := hot.GetBalance(context.Background(), 0)
			return err
		},
		"durable_store": func() error {
			_, err := store.GetBalance(context.Background(), 0)
			return err
		},
	}
	healthHandler := handler.New(cfg.App.Version, checks)
	purchaseHandler := handler.NewPurchaseHandler(engine, tokens)
	creditsHandler := handler.NewCreditsHandler(credits, discounts, tokens)
	poolsHandler := handler.NewPoolsHandler(engine)
	adminHandler := handler.NewAdminHandler(credits, engine, tokens)

	var paymentHandler *handler.PaymentHandler
	if cfg.Payment.APIKey != "" {
		paymentHandler = handler.NewPaymentHandler(credits, discounts, cfg.Payment.APIKey, log)
	} else {
		log.Warn("PAYMENT_API_KEY not set, payment webhook disabled")
	}

	r := router.New(router.Config{
		Handler:         healthHandler,
		PurchaseHandler: purchaseHandler,
		CreditsHandler:  creditsHandler,
		PoolsHandler:    poolsHandler,
		AdminHandler:    adminHandler,
		PaymentHandler:  paymentHandler,
		AuthMiddleware:  middleware.NewAuth(tokens),
		AdminMiddleware: middleware.NewAdminAuth(cfg.App.AdminToken),
		Recovery:        middleware.NewRecovery(log),
		Logging:         middleware.NewLogging(log),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("address", cfg.Server.Address()).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server error")
		}
	}()

	// Graceful shutdown: stop traffic, then the background loop, then
	// drain buffered transactions and push a final sync
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown error")
	}

	sched.Stop()

	if err := txlog.Stop(ctx); err != nil {
		log.WithError(err).Error("Transaction log drain error")
	}
	if err := reconciler.SyncCredits(ctx); err != nil {
		log.WithError(err).Error("Final balance sync error")
	}
	if err := reconciler.SyncTokens(ctx); err != nil {
		log.WithError(err).Error("Final token sync error")
	}

	log.Info("Server stopped")
}
