// Package provider реализует шлюз к API вышестоящего SMM-поставщика.
//
// Все сетевые обращения к поставщику выполняются только здесь. Каждый вызов:
// одна попытка с жёстким таймаутом (по умолчанию 5 секунд) без повторов.
// Строгие методы возвращают TransportError или RejectedError; варианты
// *OrSimulated подставляют имитированные значения при недоступности поставщика
// и должны выбираться вызывающей стороной явно.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

// DefaultTimeout задаёт таймаут одного обращения к поставщику.
const DefaultTimeout = 5 * time.Second

const maxResponseSize = 10 << 20

// Client выполняет запросы к API поставщика (form POST, ответ JSON).
type Client struct {
	resolver   Resolver
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	timeout    time.Duration
	logger     *zap.Logger
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout задаёт таймаут одного обращения.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker подменяет автомат размыкания цепи.
func WithBreaker(cb *gobreaker.CircuitBreaker[[]byte]) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// NewBreaker создаёт автомат, размыкающийся после серии сетевых сбоев подряд.
// Явные отказы поставщика сбоями не считаются, отмена запроса вызывающей
// стороной не учитывается вовсе.
func NewBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
}

// NewClient создаёт клиент поставщика. Поставщик для новых заказов определяется
// resolver на каждый вызов; запросы по размещённому заказу идут тому, кто его принял.
func NewClient(resolver Resolver, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		resolver:   resolver,
		httpClient: &http.Client{},
		breaker:    NewBreaker("provider"),
		timeout:    DefaultTimeout,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Balance запрашивает баланс аккаунта у поставщика.
func (c *Client) Balance(ctx context.Context) (*BalanceInfo, error) {
	var resp balanceResponse
	if err := c.call(ctx, "balance", url.Values{}, &resp); err != nil {
		return nil, err
	}

	return &BalanceInfo{
		Balance:  resp.Balance.Decimal(),
		Currency: resp.Currency,
	}, nil
}

// Services запрашивает каталог услуг поставщика.
func (c *Client) Services(ctx context.Context) ([]RawService, error) {
	var resp []RawService
	if err := c.call(ctx, "services", url.Values{}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AddOrder создаёт заказ у текущего основного поставщика. Сетевой сбой не
// подменяется имитацией: вызывающий код обязан считать заказ неразмещённым.
func (c *Client) AddOrder(ctx context.Context, req OrderRequest) (*PlacedOrder, error) {
	p, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, &TransportError{Action: "add", Err: err}
	}

	form := url.Values{}
	form.Set("service", strconv.FormatInt(req.ServiceID, 10))
	form.Set("link", req.Link)
	form.Set("quantity", strconv.FormatInt(req.Quantity, 10))
	if req.Runs > 0 {
		form.Set("runs", strconv.FormatInt(req.Runs, 10))
		form.Set("interval", strconv.FormatInt(req.Interval, 10))
	}

	var resp addResponse
	if err := c.callProvider(ctx, p, "add", form, &resp); err != nil {
		return nil, err
	}

	if resp.Order == "" {
		return nil, &TransportError{Action: "add", Err: errors.New("response without order id")}
	}

	return &PlacedOrder{
		ProviderID:      p.ID,
		ProviderOrderID: string(resp.Order),
		ProviderCharge:  resp.Charge.Decimal(),
	}, nil
}

// Status запрашивает состояние заказа у поставщика providerID.
func (c *Client) Status(ctx context.Context, providerID, providerOrderID string) (*OrderStatus, error) {
	form := url.Values{}
	form.Set("order", providerOrderID)

	var resp statusResponse
	if err := c.callByID(ctx, providerID, "status", form, &resp); err != nil {
		return nil, err
	}

	st := &OrderStatus{
		Status:   resp.Status,
		Charge:   resp.Charge.Decimal(),
		Currency: resp.Currency,
	}
	if v, ok := resp.StartCount.Int64(); ok {
		st.StartCount = &v
	}
	if v, ok := resp.Remains.Int64(); ok {
		st.Remains = &v
	}

	return st, nil
}

// Refill отправляет запрос на докрутку поставщику providerID. Имитированного успеха не бывает.
func (c *Client) Refill(ctx context.Context, providerID, providerOrderID string) (*RefillResult, error) {
	form := url.Values{}
	form.Set("order", providerOrderID)

	var resp refillResponse
	if err := c.callByID(ctx, providerID, "refill", form, &resp); err != nil {
		return nil, err
	}

	if resp.Refill == "" || resp.Refill == "0" {
		return nil, &RejectedError{Action: "refill", Message: "refill was not accepted"}
	}

	return &RefillResult{RefillID: string(resp.Refill)}, nil
}

// RefillStatus запрашивает состояние докрутки refillID у поставщика providerID.
func (c *Client) RefillStatus(ctx context.Context, providerID, refillID string) (*RefillState, error) {
	form := url.Values{}
	form.Set("refill", refillID)

	var resp refillStatusResponse
	if err := c.callByID(ctx, providerID, "refill_status", form, &resp); err != nil {
		return nil, err
	}

	if strings.TrimSpace(resp.Status) == "" {
		return nil, &TransportError{Action: "refill_status", Err: errors.New("response without status")}
	}

	return &RefillState{Status: resp.Status}, nil
}

func (c *Client) call(ctx context.Context, action string, form url.Values, out any) error {
	p, err := c.resolver.Resolve(ctx)
	if err != nil {
		return &TransportError{Action: action, Err: err}
	}
	return c.callProvider(ctx, p, action, form, out)
}

// callByID обращается к конкретному поставщику. Удалённый поставщик даёт
// model.ErrProviderNotFound, а не сетевой сбой.
func (c *Client) callByID(ctx context.Context, providerID, action string, form url.Values, out any) error {
	p, err := c.resolver.ResolveByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, model.ErrProviderNotFound) {
			return fmt.Errorf("provider %s: %w", action, err)
		}
		return &TransportError{Action: action, Err: err}
	}
	return c.callProvider(ctx, p, action, form, out)
}

func (c *Client) callProvider(ctx context.Context, p model.Provider, action string, form url.Values, out any) error {
	form.Set("key", p.Key)
	form.Set("action", action)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, p.BaseURL, form)
	})
	if err != nil {
		return &TransportError{Action: action, Err: err}
	}

	if msg := errorMessage(body); msg != "" {
		return &RejectedError{Action: action, Message: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Action: action, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

func (c *Client) post(ctx context.Context, baseURL string, form url.Values) ([]byte, error) {
	endpoint := baseURL
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return body, nil
}

func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}

	var e errorResponse
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return ""
	}
	return strings.TrimSpace(e.Error)
}
