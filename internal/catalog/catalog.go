// Package catalog формирует продаваемый каталог из каталога поставщика.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/provider"
)

const (
	// DefaultDescription подставляется, если поставщик не прислал описание.
	DefaultDescription = "Fast start, no password required."
	// DefaultCategory подставляется, если поставщик не указал категорию.
	DefaultCategory = "Other"
)

// Source отдаёт сырой каталог поставщика; второе значение сообщает, что каталог имитирован.
type Source interface {
	ServicesOrMock(ctx context.Context) ([]provider.RawService, bool, error)
}

// Config содержит параметры преобразования каталога.
type Config struct {
	Multiplier decimal.Decimal
	NamePrefix string
	TTL        time.Duration
}

// Service отдаёт каталог с наценкой и кэширует его на TTL.
type Service struct {
	source Source
	cfg    Config
	logger *zap.Logger
	group  singleflight.Group
	now    func() time.Time

	mu       sync.RWMutex
	services []model.Service
	expires  time.Time
}

// New создаёт сервис каталога.
func New(source Source, cfg Config, logger *zap.Logger) *Service {
	if cfg.Multiplier.IsZero() {
		cfg.Multiplier = decimal.NewFromInt(1)
	}
	return &Service{
		source: source,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ListServices возвращает каталог с применённой наценкой.
func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	if services, ok := s.cached(); ok {
		return services, nil
	}

	v, err, _ := s.group.Do("catalog", func() (any, error) {
		if services, ok := s.cached(); ok {
			return services, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}

	return v.([]model.Service), nil
}

// Lookup возвращает услугу по идентификатору поставщика.
func (s *Service) Lookup(ctx context.Context, id int64) (model.Service, error) {
	services, err := s.ListServices(ctx)
	if err != nil {
		return model.Service{}, err
	}

	for _, svc := range services {
		if svc.ID == id {
			return svc, nil
		}
	}

	return model.Service{}, fmt.Errorf("%w: %d", model.ErrServiceNotFound, id)
}

// Invalidate сбрасывает кэш, следующий вызов запросит каталог заново.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.services = nil
	s.expires = time.Time{}
}

func (s *Service) cached() ([]model.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.services == nil || !s.now().Before(s.expires) {
		return nil, false
	}
	return s.services, true
}

func (s *Service) refresh(ctx context.Context) ([]model.Service, error) {
	raw, simulated, err := s.source.ServicesOrMock(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	services := make([]model.Service, 0, len(raw))
	for _, r := range raw {
		svc, ok := s.transform(r)
		if !ok {
			s.logger.Warn("skipping malformed catalog entry", zap.String("name", r.Name), zap.String("service", string(r.Service)))
			continue
		}
		services = append(services, svc)
	}

	sort.Slice(services, func(i, j int) bool {
		return services[i].ID < services[j].ID
	})

	if simulated || s.cfg.TTL <= 0 {
		return services, nil
	}

	s.mu.Lock()
	s.services = services
	s.expires = s.now().Add(s.cfg.TTL)
	s.mu.Unlock()

	return services, nil
}

func (s *Service) transform(r provider.RawService) (model.Service, bool) {
	id, ok := r.Service.Int64()
	if !ok {
		return model.Service{}, false
	}
	minQty, _ := r.Min.Int64()
	maxQty, _ := r.Max.Int64()
	if maxQty > 0 && minQty > maxQty {
		return model.Service{}, false
	}

	rate := r.Rate.Decimal()

	svc := model.Service{
		ID:           id,
		Name:         s.decorate(strings.TrimSpace(r.Name)),
		Category:     strings.TrimSpace(r.Category),
		Type:         r.Type,
		Description:  strings.TrimSpace(r.Description),
		ProviderRate: rate,
		SellRate:     rate.Mul(s.cfg.Multiplier),
		Min:          minQty,
		Max:          maxQty,
		Dripfeed:     bool(r.Dripfeed),
		Refill:       bool(r.Refill),
		Cancel:       bool(r.Cancel),
	}

	if svc.Category == "" {
		svc.Category = DefaultCategory
	}
	if svc.Description == "" {
		svc.Description = DefaultDescription
	}
	if svc.Type == "" {
		svc.Type = "Default"
	}

	return svc, true
}

func (s *Service) decorate(name string) string {
	if s.cfg.NamePrefix == "" || strings.HasPrefix(name, s.cfg.NamePrefix) {
		return name
	}
	return s.cfg.NamePrefix + name
}
