// Package mapper строит запрос на создание заказа из строк одной группы экспорта.
package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/ordersync/internal/config"
	"github.com/mmeshcher/ordersync/internal/model"
	"github.com/mmeshcher/ordersync/internal/normalize"
	"github.com/mmeshcher/ordersync/internal/shopware"
	"github.com/mmeshcher/ordersync/internal/validation"
)

var (
	// ErrEmptyGroup возвращается для группы без строк.
	ErrEmptyGroup = errors.New("order group has no rows")
	// ErrCustomerResolution возвращается, если не удалось найти или создать покупателя.
	ErrCustomerResolution = errors.New("customer resolution failed")
	// ErrNoLineItems возвращается, если ни одна позиция заказа не была сопоставлена с товаром.
	ErrNoLineItems = errors.New("no line items")
	// ErrInvalidOrder возвращается, если сформированный запрос не прошёл проверку.
	ErrInvalidOrder = errors.New("invalid order request")
)

// Синтетические артикулы скидочных позиций.
const (
	SellerDiscountSKU   = "SELLER_DISCOUNT"
	PlatformDiscountSKU = "PLATFORM_DISCOUNT"
	ShippingDiscountSKU = "SHIPPING_DISCOUNT"
)

// DefaultFields содержит значения по умолчанию для колонок экспорта.
var DefaultFields = normalize.Defaults{
	model.ColRecipient:                   "Unknown",
	model.ColStreetName:                  "Unknown",
	model.ColZipcode:                     "00000",
	model.ColCity:                        "Unknown",
	model.ColQuantity:                    "1",
	model.ColSKUSellerDiscount:           "0",
	model.ColSKUPlatformDiscount:         "0",
	model.ColShippingFeeAfterDiscount:    "0",
	model.ColShippingFeePlatformDiscount: "0",
}

// Gateway описывает обращения к удалённой системе, необходимые для сопоставления заказа.
type Gateway interface {
	FindOrCreateGuestCustomer(ctx context.Context, guest shopware.GuestCustomer) (int, error)
	FindArticleBySKU(ctx context.Context, sku string) (*model.Article, error)
}

// MappedOrder содержит результат сопоставления: нормализованный заказ, готовый запрос
// и найденные товары по артикулу.
type MappedOrder struct {
	Order    model.NormalizedOrder
	Request  shopware.CreateOrderRequest
	Articles map[string]*model.Article
}

// Mapper сопоставляет группы строк с заказами магазина.
type Mapper struct {
	gateway  Gateway
	cfg      config.Mapping
	defaults normalize.Defaults
	logger   *zap.Logger
	now      func() time.Time
}

// New создаёт Mapper.
func New(cfg *config.Config, gateway Gateway, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{
		gateway:  gateway,
		cfg:      cfg.Mapping,
		defaults: DefaultFields,
		logger:   logger,
		now:      time.Now,
	}
}

type taxRef struct {
	rate decimal.Decimal
	id   int
}

// Map сопоставляет группу строк одного заказа. Заказ либо собирается целиком, либо возвращается ошибка.
func (m *Mapper) Map(ctx context.Context, group model.OrderGroup) (*MappedOrder, error) {
	if len(group.Rows) == 0 {
		return nil, ErrEmptyGroup
	}
	// Покупатель создаётся в магазине до сборки запроса, поэтому ссылки проверяются заранее.
	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}

	logger := m.logger.With(zap.String("order", group.ExternalID))

	rows := make([]model.OrderRow, len(group.Rows))
	copy(rows, group.Rows)
	for i := range rows {
		normalize.ApplyDefaults(&rows[i], m.defaults, logger)
	}
	first := rows[0]

	order := model.NormalizedOrder{ExternalID: group.ExternalID}
	order.Customer = m.customer(first, group.ExternalID, logger)
	order.Address = m.address(first, logger)

	customerID, err := m.gateway.FindOrCreateGuestCustomer(ctx, shopware.GuestCustomer{
		Email:       order.Customer.Email,
		FirstName:   order.Customer.FirstName,
		LastName:    order.Customer.LastName,
		Phone:       order.Customer.Phone,
		Street:      order.Address.Street,
		HouseNumber: order.Address.HouseNumber,
		Zipcode:     order.Address.Zipcode,
		City:        order.Address.City,
		CountryID:   order.Address.CountryID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCustomerResolution, err)
	}
	order.Customer.ID = customerID

	articles := make(map[string]*model.Article)
	var (
		highest  *taxRef
		products int
	)

	for _, row := range rows {
		items, tax, ok := m.lineItems(ctx, row, articles, logger)
		if !ok {
			continue
		}
		products++
		order.Items = append(order.Items, items...)
		if highest == nil || tax.rate.GreaterThan(highest.rate) {
			t := tax
			highest = &t
		}
	}

	if products == 0 {
		return nil, ErrNoLineItems
	}

	shippingTax := taxRef{rate: decimal.NewFromFloat(m.cfg.ShippingTaxRate), id: m.cfg.DefaultTaxID}
	if highest != nil && highest.rate.IsPositive() {
		shippingTax = *highest
	}
	order.ShippingTaxRate = shippingTax.rate

	shippingAfter := m.money(first.ShippingFeeAfterDiscount, model.ColShippingFeeAfterDiscount, logger)
	shippingSubsidy := m.money(first.ShippingFeePlatformDiscount, model.ColShippingFeePlatformDiscount, logger)
	order.InvoiceShipping = shippingAfter.Add(shippingSubsidy)

	if shippingSubsidy.IsPositive() {
		order.Items = append(order.Items, model.LineItem{
			SKU:       ShippingDiscountSKU,
			Name:      "Shipping discount (platform)",
			Quantity:  1,
			UnitPrice: shippingSubsidy.Neg(),
			TaxRate:   shippingTax.rate,
			TaxID:     shippingTax.id,
			Discount:  true,
		})
	}

	m.totals(&order)

	if expected, err := normalize.ParseMoney(first.OrderAmount); err == nil && !expected.Equal(order.InvoiceAmount) {
		logger.Warn("computed invoice amount differs from export",
			zap.String("computed", order.InvoiceAmount.StringFixed(2)),
			zap.String("export", expected.StringFixed(2)),
		)
	}

	order.OrderTime = m.now()
	if t, ok := normalize.ParseTime(first.CreatedTime); ok {
		order.OrderTime = t
	}
	order.ClearedDate = order.OrderTime
	if t, ok := normalize.ParseTime(first.PaidTime); ok {
		order.ClearedDate = t
	}

	req := m.request(order)
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}

	return &MappedOrder{Order: order, Request: req, Articles: articles}, nil
}

func (m *Mapper) customer(first model.OrderRow, externalID string, logger *zap.Logger) model.Customer {
	firstName, lastName := normalize.SplitName(first.Recipient)

	email := strings.ToLower(strings.TrimSpace(first.Email))
	if !validation.IsEmail(email) {
		email = guestEmail(externalID, m.cfg.GuestEmailDomain)
		logger.Warn("buyer email missing or invalid, using generated address", zap.String("email", email))
	}

	return model.Customer{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Phone:     first.Phone,
	}
}

func (m *Mapper) address(first model.OrderRow, logger *zap.Logger) model.Address {
	street, number, ok := normalize.SplitStreet(first.StreetName, first.HouseNumber)
	if !ok {
		// Поле без цифр (название дома) остаётся в адресе.
		if extra := strings.TrimSpace(first.HouseNumber); extra != "" && !strings.Contains(street, extra) {
			street = strings.TrimSpace(street + " " + extra)
		}
		logger.Warn("house number not found",
			zap.String("street", first.StreetName),
			zap.String("house_number", first.HouseNumber),
			zap.String("kept_street", street),
		)
	}

	return model.Address{
		Street:      street,
		HouseNumber: number,
		Zipcode:     first.Zipcode,
		City:        first.City,
		CountryID:   m.cfg.CountryID,
	}
}

// lineItems возвращает позицию товара и её скидочные позиции. ok == false, если строку нужно пропустить.
func (m *Mapper) lineItems(ctx context.Context, row model.OrderRow, articles map[string]*model.Article, logger *zap.Logger) ([]model.LineItem, taxRef, bool) {
	logger = logger.With(zap.Int("line", row.Line), zap.String("sku", row.SellerSKU))

	if row.SellerSKU == "" {
		logger.Warn("skipping item without sku")
		return nil, taxRef{}, false
	}

	quantity, err := normalize.ParseQuantity(row.Quantity)
	if err != nil {
		logger.Warn("skipping item", zap.Error(err))
		return nil, taxRef{}, false
	}

	price, err := normalize.ParseMoney(row.UnitOriginalPrice)
	if err != nil {
		logger.Warn("skipping item", zap.Error(err))
		return nil, taxRef{}, false
	}

	article, ok := articles[row.SellerSKU]
	if !ok {
		article, err = m.gateway.FindArticleBySKU(ctx, row.SellerSKU)
		if err != nil {
			logger.Error("article lookup failed, skipping item", zap.Error(err))
			return nil, taxRef{}, false
		}
		if article == nil {
			logger.Warn("article not found, skipping item")
			return nil, taxRef{}, false
		}
		articles[row.SellerSKU] = article
	}

	tax := taxRef{rate: decimal.NewFromFloat(m.cfg.DefaultTaxRate), id: m.cfg.DefaultTaxID}
	if article.TaxRate.Valid {
		tax.rate = article.TaxRate.Decimal
	} else {
		logger.Warn("article has no tax rate, using default", zap.String("rate", tax.rate.String()))
	}
	if article.TaxID != 0 {
		tax.id = article.TaxID
	}

	name := row.ProductName
	if name == "" {
		name = article.Name
	}
	if name == "" {
		name = row.SellerSKU
	}

	items := []model.LineItem{{
		SKU:       row.SellerSKU,
		ArticleID: article.ID,
		Name:      name,
		Quantity:  quantity,
		UnitPrice: price,
		TaxRate:   tax.rate,
		TaxID:     tax.id,
	}}

	discounts := []struct {
		sku, column, label string
		value              string
	}{
		{SellerDiscountSKU, model.ColSKUSellerDiscount, "Seller discount", row.SKUSellerDiscount},
		{PlatformDiscountSKU, model.ColSKUPlatformDiscount, "Platform discount", row.SKUPlatformDiscount},
	}
	for _, d := range discounts {
		amount := m.money(d.value, d.column, logger)
		if !amount.IsPositive() {
			continue
		}
		items = append(items, model.LineItem{
			SKU:       d.sku,
			Name:      d.label + ": " + name,
			Quantity:  1,
			UnitPrice: amount.Neg(),
			TaxRate:   tax.rate,
			TaxID:     tax.id,
			Discount:  true,
		})
	}

	return items, tax, true
}

func (m *Mapper) money(value, column string, logger *zap.Logger) decimal.Decimal {
	d, err := normalize.ParseMoney(value)
	if err != nil {
		logger.Warn("invalid amount, using zero", zap.String("field", column), zap.Error(err))
		return decimal.Zero
	}
	return d
}

// totals считает брутто- и нетто-суммы заказа. Нетто по позициям суммируется без округления,
// округляется только итог.
func (m *Mapper) totals(order *model.NormalizedOrder) {
	gross := decimal.Zero
	net := decimal.Zero
	for _, item := range order.Items {
		total := item.Total()
		gross = gross.Add(total)
		net = net.Add(normalize.NetAmount(total, item.TaxRate))
	}

	shippingNet := normalize.NetAmount(order.InvoiceShipping, order.ShippingTaxRate)

	order.InvoiceAmount = gross.Add(order.InvoiceShipping).Round(2)
	order.InvoiceAmountNet = net.Add(shippingNet).Round(2)
	order.InvoiceShippingNet = shippingNet.Round(2)
}

func (m *Mapper) request(order model.NormalizedOrder) shopware.CreateOrderRequest {
	address := shopware.OrderAddress{
		CustomerID:   order.Customer.ID,
		CountryID:    order.Address.CountryID,
		Salutation:   "mr",
		FirstName:    order.Customer.FirstName,
		LastName:     order.Customer.LastName,
		Street:       order.Address.Street,
		StreetNumber: order.Address.HouseNumber,
		ZipCode:      order.Address.Zipcode,
		City:         order.Address.City,
		Phone:        order.Customer.Phone,
	}

	details := make([]shopware.OrderDetail, 0, len(order.Items))
	for _, item := range order.Items {
		mode := shopware.DetailModeArticle
		if item.Discount {
			mode = shopware.DetailModeDiscount
		}
		details = append(details, shopware.OrderDetail{
			ArticleID:     item.ArticleID,
			ArticleNumber: item.SKU,
			ArticleName:   item.Name,
			Quantity:      item.Quantity,
			Price:         amount(item.UnitPrice),
			TaxID:         item.TaxID,
			TaxRate:       amount(item.TaxRate),
			Mode:          mode,
		})
	}

	return shopware.CreateOrderRequest{
		CustomerID:         order.Customer.ID,
		PaymentID:          m.cfg.PaymentMethodID,
		DispatchID:         m.cfg.ShippingMethodID,
		ShopID:             m.cfg.ShopID,
		OrderStatusID:      m.cfg.OrderStatusID,
		PaymentStatusID:    m.cfg.PaymentStatusID,
		InvoiceAmount:      amount(order.InvoiceAmount),
		InvoiceAmountNet:   amount(order.InvoiceAmountNet),
		InvoiceShipping:    amount(order.InvoiceShipping),
		InvoiceShippingNet: amount(order.InvoiceShippingNet),
		OrderTime:          shopware.FormatTime(order.OrderTime),
		ClearedDate:        shopware.FormatTime(order.ClearedDate),
		LanguageIso:        "1",
		Currency:           m.cfg.Currency,
		CurrencyFactor:     "1",
		InternalComment:    "Marketplace order " + order.ExternalID,
		Details:            details,
		Billing:            address,
		Shipping:           address,
		Attribute:          shopware.OrderAttribute{Attribute1: order.ExternalID},
	}
}

func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func guestEmail(externalID, domain string) string {
	local := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, externalID)
	if local == "" {
		local = "guest"
	}
	return "order-" + local + "@" + domain
}
