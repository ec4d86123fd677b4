package order

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/provider"
)

// SyncResult содержит итог сверки одного заказа.
type SyncResult struct {
	Order    *model.Order
	Provider *provider.OrderStatus
	Updated  bool
	Skipped  bool
}

// SyncReport содержит итог сверки активных заказов и незавершённых докруток.
type SyncReport struct {
	Checked   int `json:"checked"`
	Updated   int `json:"updated"`
	Simulated int `json:"simulated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Refills   int `json:"refills"`
}

// MapStatus переводит статус поставщика в статус заказа. Регистр и пробелы не важны.
func MapStatus(s string) (model.OrderStatus, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")

	switch key {
	case "pending":
		return model.OrderStatusPending, true
	case "processing":
		return model.OrderStatusProcessing, true
	case "in progress", "inprogress", "in_progress":
		return model.OrderStatusInProgress, true
	case "partial":
		return model.OrderStatusPartial, true
	case "completed":
		return model.OrderStatusCompleted, true
	case "canceled", "cancelled":
		return model.OrderStatusCancelled, true
	case "failed", "fail":
		return model.OrderStatusFailed, true
	}
	return "", false
}

// MapRefillStatus переводит статус докрутки у поставщика в RefillStatus.
func MapRefillStatus(s string) (model.RefillStatus, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")

	switch key {
	case "pending", "processing", "in progress", "inprogress", "in_progress":
		return model.RefillStatusProcessing, true
	case "completed":
		return model.RefillStatusCompleted, true
	case "rejected", "canceled", "cancelled", "failed", "error":
		return model.RefillStatusRejected, true
	}
	return "", false
}

// SyncStatus сверяет заказ с поставщиком. Завершённые заказы и заказы с ручным
// статусом не меняются. Имитированный ответ возвращается, но не сохраняется.
func (l *Lifecycle) SyncStatus(ctx context.Context, orderID string) (*SyncResult, error) {
	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status.IsTerminal() || o.Overridden || o.ProviderOrderID == "" {
		return &SyncResult{Order: o, Skipped: true}, nil
	}

	return l.applyProviderStatus(ctx, o, l.store.UpdateOrderProgress)
}

type progressWriter func(ctx context.Context, id string, p model.Progress) (bool, error)

func (l *Lifecycle) applyProviderStatus(ctx context.Context, o *model.Order, write progressWriter) (*SyncResult, error) {
	st, err := l.provider.StatusOrSimulated(ctx, o.ProviderID, o.ProviderOrderID)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Order: o, Provider: st}
	if st.Simulated {
		return res, nil
	}

	status, ok := MapStatus(st.Status)
	if !ok {
		l.logger.Warn("unknown provider status",
			zap.String("orderID", o.ID),
			zap.String("status", st.Status))
		return res, nil
	}

	updated, err := write(ctx, o.ID, model.Progress{
		Status:     status,
		StartCount: st.StartCount,
		Remains:    st.Remains,
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		res.Skipped = true
		return res, nil
	}

	fresh, err := l.store.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	res.Order = fresh
	res.Updated = true

	return res, nil
}

// SyncRefill сверяет незавершённую докрутку заказа с поставщиком. Возвращает
// true, если состояние докрутки изменилось.
func (l *Lifecycle) SyncRefill(ctx context.Context, orderID string) (*model.Order, bool, error) {
	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if !o.RefillStatus.InFlight() || o.ProviderRefillID == "" {
		return o, false, nil
	}

	st, err := l.provider.RefillStatus(ctx, o.ProviderID, o.ProviderRefillID)
	if err != nil {
		return nil, false, err
	}

	status, ok := MapRefillStatus(st.Status)
	if !ok {
		l.logger.Warn("unknown provider refill status",
			zap.String("orderID", o.ID),
			zap.String("status", st.Status))
		return o, false, nil
	}
	if status == o.RefillStatus {
		return o, false, nil
	}

	if err := l.store.SetRefillStatus(ctx, o.ID, status, ""); err != nil {
		return nil, false, err
	}

	l.logger.Info("refill status updated",
		zap.String("orderID", o.ID),
		zap.String("refillID", o.ProviderRefillID),
		zap.String("refillStatus", string(status)))

	fresh, err := l.store.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}

type pageLister func(ctx context.Context, afterID string, limit int) ([]model.Order, error)

// SyncAllActive проходит постранично по всем активным заказам, затем по всем
// незавершённым докруткам, с ограниченным параллелизмом внутри страницы.
// Ошибка отдельного заказа учитывается в отчёте и не прерывает остальные.
func (l *Lifecycle) SyncAllActive(ctx context.Context) (SyncReport, error) {
	var (
		mu     sync.Mutex
		report SyncReport
	)

	err := l.forEachPage(ctx, l.store.ListActiveOrders, func(ctx context.Context, o model.Order) {
		res, err := l.SyncStatus(ctx, o.ID)

		mu.Lock()
		defer mu.Unlock()

		report.Checked++
		switch {
		case err != nil:
			report.Failed++
			l.logger.Warn("order sync failed", zap.String("orderID", o.ID), zap.Error(err))
		case res.Provider != nil && res.Provider.Simulated:
			report.Simulated++
		case res.Updated:
			report.Updated++
		case res.Skipped:
			report.Skipped++
		}
	})
	if err != nil {
		return report, err
	}

	err = l.forEachPage(ctx, l.store.ListRefillsInFlight, func(ctx context.Context, o model.Order) {
		_, changed, err := l.SyncRefill(ctx, o.ID)

		mu.Lock()
		defer mu.Unlock()

		switch {
		case err != nil:
			report.Failed++
			l.logger.Warn("refill sync failed", zap.String("orderID", o.ID), zap.Error(err))
		case changed:
			report.Refills++
		}
	})
	if err != nil {
		return report, err
	}

	return report, ctx.Err()
}

// forEachPage читает заказы страницами по SyncBatchSize по ключу id и вызывает fn
// для каждого заказа, не более SyncConcurrency одновременно.
func (l *Lifecycle) forEachPage(ctx context.Context, list pageLister, fn func(ctx context.Context, o model.Order)) error {
	afterID := ""
	for {
		page, err := list(ctx, afterID, l.cfg.SyncBatchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.cfg.SyncConcurrency)
		for _, o := range page {
			g.Go(func() error {
				fn(gctx, o)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if len(page) < l.cfg.SyncBatchSize {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		afterID = page[len(page)-1].ID
	}
}

// StartSync запускает фоновую сверку активных заказов с интервалом SyncInterval.
func (l *Lifecycle) StartSync(ctx context.Context) {
	if l.cfg.SyncInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(l.cfg.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := l.SyncAllActive(ctx)
				if err != nil {
					if ctx.Err() == nil {
						l.logger.Error("sync active orders", zap.Error(err))
					}
					continue
				}
				if report.Checked > 0 || report.Refills > 0 {
					l.logger.Info("active orders synced",
						zap.Int("checked", report.Checked),
						zap.Int("updated", report.Updated),
						zap.Int("simulated", report.Simulated),
						zap.Int("failed", report.Failed),
						zap.Int("refills", report.Refills))
				}
			}
		}
	}()
}
