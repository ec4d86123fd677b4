// Package main запускает HTTP-сервер витрины SMM-услуг.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/smm-storefront/internal/catalog"
	"github.com/mmeshcher/smm-storefront/internal/config"
	"github.com/mmeshcher/smm-storefront/internal/handler"
	"github.com/mmeshcher/smm-storefront/internal/middleware"
	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/order"
	"github.com/mmeshcher/smm-storefront/internal/pricing"
	"github.com/mmeshcher/smm-storefront/internal/provider"
	"github.com/mmeshcher/smm-storefront/internal/repository"
	"github.com/mmeshcher/smm-storefront/internal/service"
	"github.com/mmeshcher/smm-storefront/internal/wallet"
)

type store interface {
	service.Repository
	order.Store
	wallet.Store
}

func openStore(ctx context.Context, dsn string) (store, error) {
	if dsn == "" {
		return repository.NewMemoryRepository(), nil
	}
	pg, err := repository.NewPostgresRepository(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(ctx, cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory store")
	}

	resolver := provider.NewPriorityResolver(repo, model.Provider{
		ID:      provider.ConfiguredProviderID,
		Name:    "configured",
		BaseURL: cfg.ProviderURL,
		Key:     cfg.ProviderKey,
		Status:  model.ProviderStatusActive,
	}, logger)
	providerClient := provider.NewClient(resolver, logger, provider.WithTimeout(cfg.ProviderTimeout))

	catalogService := catalog.New(providerClient, catalog.Config{
		Multiplier: decimal.NewFromFloat(cfg.CatalogMarkupMultiplier),
		NamePrefix: cfg.CatalogNamePrefix,
		TTL:        cfg.CatalogCacheTTL,
	}, logger)

	engine := pricing.NewEngine(pricing.Config{
		VIPDiscountPoints:      decimal.NewFromFloat(cfg.VIPDiscountPoints),
		ResellerDiscountPoints: decimal.NewFromFloat(cfg.ResellerDiscountPoints),
	})

	ledger := wallet.NewLedger(repo, wallet.Config{
		DepositBonusPercent: map[string]decimal.Decimal{
			wallet.MethodCrypto: decimal.NewFromFloat(cfg.CryptoBonusPercent),
		},
	}, logger)

	defaultMarkup := decimal.NewFromFloat(cfg.DefaultMarkupPercent)
	lifecycle := order.New(repo, catalogService, engine, ledger, providerClient, order.Config{
		DefaultMarkupPercent: defaultMarkup,
		SyncInterval:         cfg.SyncInterval,
		SyncBatchSize:        cfg.SyncBatchSize,
		SyncConcurrency:      cfg.SyncConcurrency,
	}, logger)

	svc := service.NewService(repo, catalogService, ledger, lifecycle, providerClient, defaultMarkup, logger)
	defer svc.Close()

	if cfg.IdentitySecret == "" {
		sugar.Warn("IDENTITY_SECRET is empty, no identity token will be accepted")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.IdentitySecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	lifecycle.StartSync(ctx)

	g.Go(func() error {
		sugar.Infow("starting storefront server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
