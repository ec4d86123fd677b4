package provider

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

// ConfiguredProviderID обозначает поставщика из конфигурации процесса.
const ConfiguredProviderID = "configured"

// Resolver выбирает поставщика для очередного вызова. Resolve отдаёт поставщика
// для новых заказов, ResolveByID находит того, кто принял уже размещённый заказ.
type Resolver interface {
	Resolve(ctx context.Context) (model.Provider, error)
	ResolveByID(ctx context.Context, id string) (model.Provider, error)
}

// StaticResolver всегда возвращает поставщика из конфигурации.
type StaticResolver struct {
	Provider model.Provider
}

// Resolve реализует Resolver.
func (s StaticResolver) Resolve(context.Context) (model.Provider, error) {
	if s.Provider.BaseURL == "" {
		return model.Provider{}, ErrNoProvider
	}
	return s.Provider, nil
}

// ResolveByID реализует Resolver. Пустой id относится к поставщику из конфигурации.
func (s StaticResolver) ResolveByID(ctx context.Context, id string) (model.Provider, error) {
	if id != "" && id != s.Provider.ID {
		return model.Provider{}, fmt.Errorf("%w: %s", model.ErrProviderNotFound, id)
	}
	return s.Resolve(ctx)
}

// ProviderLister отдаёт поставщиков, настроенных администратором.
type ProviderLister interface {
	ListProviders(ctx context.Context) ([]model.Provider, error)
}

// PriorityResolver выбирает активного поставщика с наименьшим значением приоритета.
// Если активных нет или хранилище недоступно, используется поставщик из конфигурации.
type PriorityResolver struct {
	store    ProviderLister
	fallback model.Provider
	logger   *zap.Logger
}

// NewPriorityResolver создаёт PriorityResolver.
func NewPriorityResolver(store ProviderLister, fallback model.Provider, logger *zap.Logger) *PriorityResolver {
	return &PriorityResolver{
		store:    store,
		fallback: fallback,
		logger:   logger,
	}
}

// Resolve реализует Resolver.
func (r *PriorityResolver) Resolve(ctx context.Context) (model.Provider, error) {
	providers, err := r.store.ListProviders(ctx)
	if err != nil {
		r.logger.Warn("list providers failed, using configured provider", zap.Error(err))
		return StaticResolver{Provider: r.fallback}.Resolve(ctx)
	}

	if p, ok := SelectPrimary(providers); ok {
		return p, nil
	}

	return StaticResolver{Provider: r.fallback}.Resolve(ctx)
}

// ResolveByID реализует Resolver. Отключённый поставщик тоже находится:
// статусы и докрутки его заказов по-прежнему запрашиваются у него.
func (r *PriorityResolver) ResolveByID(ctx context.Context, id string) (model.Provider, error) {
	if id == "" || id == r.fallback.ID {
		return StaticResolver{Provider: r.fallback}.Resolve(ctx)
	}

	providers, err := r.store.ListProviders(ctx)
	if err != nil {
		return model.Provider{}, fmt.Errorf("list providers: %w", err)
	}

	for _, p := range providers {
		if p.ID == id && p.BaseURL != "" {
			return p, nil
		}
	}

	return model.Provider{}, fmt.Errorf("%w: %s", model.ErrProviderNotFound, id)
}

// SelectPrimary возвращает активного поставщика с наивысшим приоритетом (меньшее число выше).
func SelectPrimary(providers []model.Provider) (model.Provider, bool) {
	active := make([]model.Provider, 0, len(providers))
	for _, p := range providers {
		if p.Status == model.ProviderStatusActive && p.BaseURL != "" {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return model.Provider{}, false
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active[0], true
}
