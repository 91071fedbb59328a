// Package shopware предоставляет клиент REST API магазина: поиск заказов, покупателей и товаров,
// создание покупателей и заказов. Все вызовы выполняются с повторами и экспоненциальной задержкой.
package shopware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/ordersync/internal/config"
	"github.com/mmeshcher/ordersync/internal/metrics"
	"github.com/mmeshcher/ordersync/internal/model"
	"github.com/mmeshcher/ordersync/internal/normalize"
)

const (
	opFindOrder      = "find_order"
	opFindCustomer   = "find_customer"
	opCreateCustomer = "create_customer"
	opFindArticle    = "find_article"
	opCreateOrder    = "create_order"

	maxErrorBody = 512
)

// Client инкапсулирует HTTP-взаимодействие с REST API магазина.
type Client struct {
	http     *resty.Client
	limiter  *rate.Limiter
	retrier  *Retrier
	groupKey string
	shopID   int
	logger   *zap.Logger
	metrics  *metrics.Registry
}

// Option настраивает Client.
type Option func(*Client)

// WithSleep заменяет функцию ожидания между повторами.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.retrier.Sleep = fn
	}
}

// WithMetrics подключает учёт удалённых вызовов.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient создаёт клиент API магазина по параметрам конфигурации.
func NewClient(cfg *config.Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.Shopware.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.Shopware.RequestsPerSecond)
	}

	maxAttempts := cfg.Shopware.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Shopware.APIURL, "/")).
		SetBasicAuth(cfg.Shopware.Username, cfg.Shopware.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(logger.Named("resty").Sugar())
	if cfg.Shopware.Timeout > 0 {
		httpClient.SetTimeout(cfg.Shopware.Timeout)
	}

	c := &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		retrier: &Retrier{
			MaxAttempts: maxAttempts,
			BaseDelay:   cfg.Shopware.RetryBaseDelay,
			Logger:      logger,
		},
		groupKey: cfg.Mapping.CustomerGroup,
		shopID:   cfg.Mapping.ShopID,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FindOrderByExternalID ищет заказ по внешнему номеру, сохранённому в attribute1.
// Отсутствие заказа возвращается как (nil, nil).
func (c *Client) FindOrderByExternalID(ctx context.Context, externalID string) (*model.RemoteOrder, error) {
	id := normalize.StripControl(externalID)

	var out orderListResponse
	err := c.call(ctx, opFindOrder, "find order "+id, &out, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParams(map[string]string{
			"filter[0][property]": "attribute.attribute1",
			"filter[0][value]":    id,
			"limit":               "1",
		}).Get("/orders")
	})
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}

	for _, o := range out.Data {
		// Заказ без подтверждённого внешнего номера не считается найденным.
		if o.Attribute == nil || o.Attribute.Attribute1 != id {
			continue
		}
		return &model.RemoteOrder{ID: o.ID, Number: o.Number, ExternalID: id}, nil
	}

	return nil, nil
}

// FindOrCreateGuestCustomer возвращает идентификатор гостевого покупателя с указанным email,
// создавая его при отсутствии.
func (c *Client) FindOrCreateGuestCustomer(ctx context.Context, guest GuestCustomer) (int, error) {
	var found customerListResponse
	err := c.call(ctx, opFindCustomer, "find customer", &found, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParams(map[string]string{
			"filter[0][property]": "email",
			"filter[0][value]":    guest.Email,
			"filter[1][property]": "groupKey",
			"filter[1][value]":    c.groupKey,
		}).Get("/customers")
	})
	if err != nil {
		return 0, fmt.Errorf("find customer: %w", err)
	}

	for _, cust := range found.Data {
		if strings.EqualFold(cust.Email, guest.Email) && cust.GroupKey == c.groupKey {
			c.logger.Info("reusing guest customer", zap.Int("customer_id", cust.ID))
			return cust.ID, nil
		}
	}

	password, err := generatePassword()
	if err != nil {
		return 0, fmt.Errorf("generate password: %w", err)
	}

	street := strings.TrimSpace(guest.Street + " " + guest.HouseNumber)
	body := createCustomerRequest{
		Email:       guest.Email,
		FirstName:   guest.FirstName,
		LastName:    guest.LastName,
		Salutation:  "mr",
		Password:    password,
		GroupKey:    c.groupKey,
		ShopID:      c.shopID,
		AccountMode: 1,
		Active:      true,
		Billing: customerAddress{
			FirstName:  guest.FirstName,
			LastName:   guest.LastName,
			Salutation: "mr",
			Street:     street,
			Zipcode:    guest.Zipcode,
			City:       guest.City,
			Country:    guest.CountryID,
			Phone:      guest.Phone,
		},
	}

	var created createdResponse
	err = c.call(ctx, opCreateCustomer, "create customer", &created, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(body).Post("/customers")
	})
	if err != nil {
		return 0, fmt.Errorf("create customer: %w", err)
	}
	if created.Data.ID == 0 {
		return 0, fmt.Errorf("create customer: %w: missing id", ErrUnexpectedResponse)
	}

	c.logger.Info("guest customer created", zap.Int("customer_id", created.Data.ID))
	return created.Data.ID, nil
}

// FindArticleBySKU ищет товар по артикулу продавца. Ответ 404 возвращается как (nil, nil).
func (c *Client) FindArticleBySKU(ctx context.Context, sku string) (*model.Article, error) {
	var out articleResponse
	err := c.call(ctx, opFindArticle, "find article "+sku, &out, func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("sku", sku).
			SetQueryParam("useNumberAsId", "true").
			Get("/articles/{sku}")
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find article %s: %w", sku, err)
	}
	if out.Data == nil {
		return nil, nil
	}

	article := &model.Article{
		ID:     out.Data.ID,
		Number: out.Data.MainDetail.Number,
		Name:   out.Data.Name,
		TaxID:  out.Data.TaxID,
	}
	if out.Data.Tax != nil {
		if article.TaxID == 0 {
			article.TaxID = out.Data.Tax.ID
		}
		if taxRate, err := decimal.NewFromString(out.Data.Tax.Tax); err == nil {
			article.TaxRate = decimal.NewNullDecimal(taxRate)
		}
	}
	if article.Number == "" {
		article.Number = sku
	}

	return article, nil
}

// CreateOrder отправляет заказ и возвращает присвоенный идентификатор.
func (c *Client) CreateOrder(ctx context.Context, order CreateOrderRequest) (int, error) {
	var created createdResponse
	err := c.call(ctx, opCreateOrder, "create order "+order.Attribute.Attribute1, &created, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(order).Post("/orders")
	})
	if err != nil {
		return 0, fmt.Errorf("create order %s: %w", order.Attribute.Attribute1, err)
	}
	if created.Data.ID == 0 {
		return 0, fmt.Errorf("create order %s: %w: missing id", order.Attribute.Attribute1, ErrUnexpectedResponse)
	}

	return created.Data.ID, nil
}

func (c *Client) call(ctx context.Context, op, action string, out any, fn func(*resty.Request) (*resty.Response, error)) error {
	var (
		body     []byte
		attempts int
	)

	err := c.retrier.Do(ctx, action, func() error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := fn(c.http.R().SetContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TransportError{Err: err}
		}
		if resp.IsError() {
			return &APIError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), maxErrorBody)}
		}

		body = resp.Body()
		return nil
	})
	if err == nil && out != nil && len(body) > 0 {
		if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
			err = fmt.Errorf("%w: %w", ErrUnexpectedResponse, decodeErr)
		}
	}

	c.metrics.ObserveRemoteCall(op, callOutcome(err))
	c.metrics.ObserveRetries(op, attempts-1)
	return err
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRetriesExhausted):
		return "exhausted"
	default:
		return "error"
	}
}

func generatePassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// FormatTime форматирует отметку времени в формате API.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
