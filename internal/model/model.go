// Package model содержит доменные сущности синхронизации заказов маркетплейса.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Колонки экспорта заказов после нормализации заголовков.
const (
	ColOrderID                     = "OrderID"
	ColRecipient                   = "Recipient"
	ColEmail                       = "Email"
	ColPhone                       = "Phone#"
	ColStreetName                  = "StreetName"
	ColHouseNumber                 = "HouseNameorNumber"
	ColZipcode                     = "Zipcode"
	ColCity                        = "City"
	ColSellerSKU                   = "SellerSKU"
	ColProductName                 = "ProductName"
	ColQuantity                    = "Quantity"
	ColUnitOriginalPrice           = "SKUUnitOriginalPrice"
	ColSKUPlatformDiscount         = "SKUPlatformDiscount"
	ColSKUSellerDiscount           = "SKUSellerDiscount"
	ColOrderAmount                 = "OrderAmount"
	ColShippingFeeAfterDiscount    = "ShippingFeeAfterDiscount"
	ColShippingFeePlatformDiscount = "ShippingFeePlatformDiscount"
	ColCreatedTime                 = "CreatedTime"
	ColPaidTime                    = "PaidTime"
)

// RawRow описывает одну строку файла: нормализованный заголовок -> значение.
type RawRow struct {
	Line    int
	Headers []string
	Values  map[string]string
}

// Get возвращает значение колонки и признак её наличия.
func (r RawRow) Get(name string) (string, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// OrderRow содержит типизированное представление строки экспорта.
// Нераспознанные колонки попадают в Extra.
type OrderRow struct {
	Line int

	OrderID                     string
	Recipient                   string
	Email                       string
	Phone                       string
	StreetName                  string
	HouseNumber                 string
	Zipcode                     string
	City                        string
	SellerSKU                   string
	ProductName                 string
	Quantity                    string
	UnitOriginalPrice           string
	SKUPlatformDiscount         string
	SKUSellerDiscount           string
	OrderAmount                 string
	ShippingFeeAfterDiscount    string
	ShippingFeePlatformDiscount string
	CreatedTime                 string
	PaidTime                    string

	Extra map[string]string
}

// NewOrderRow строит типизированную строку из RawRow.
func NewOrderRow(raw RawRow) OrderRow {
	row := OrderRow{Line: raw.Line}
	for _, h := range raw.Headers {
		row.Set(h, raw.Values[h])
	}
	return row
}

func (r *OrderRow) field(name string) *string {
	switch name {
	case ColOrderID:
		return &r.OrderID
	case ColRecipient:
		return &r.Recipient
	case ColEmail:
		return &r.Email
	case ColPhone:
		return &r.Phone
	case ColStreetName:
		return &r.StreetName
	case ColHouseNumber:
		return &r.HouseNumber
	case ColZipcode:
		return &r.Zipcode
	case ColCity:
		return &r.City
	case ColSellerSKU:
		return &r.SellerSKU
	case ColProductName:
		return &r.ProductName
	case ColQuantity:
		return &r.Quantity
	case ColUnitOriginalPrice:
		return &r.UnitOriginalPrice
	case ColSKUPlatformDiscount:
		return &r.SKUPlatformDiscount
	case ColSKUSellerDiscount:
		return &r.SKUSellerDiscount
	case ColOrderAmount:
		return &r.OrderAmount
	case ColShippingFeeAfterDiscount:
		return &r.ShippingFeeAfterDiscount
	case ColShippingFeePlatformDiscount:
		return &r.ShippingFeePlatformDiscount
	case ColCreatedTime:
		return &r.CreatedTime
	case ColPaidTime:
		return &r.PaidTime
	}
	return nil
}

// Get возвращает значение поля по имени колонки.
func (r *OrderRow) Get(name string) string {
	if p := r.field(name); p != nil {
		return *p
	}
	return r.Extra[name]
}

// Set записывает значение поля по имени колонки.
func (r *OrderRow) Set(name, value string) {
	if p := r.field(name); p != nil {
		*p = value
		return
	}
	if r.Extra == nil {
		r.Extra = make(map[string]string)
	}
	r.Extra[name] = value
}

// OrderGroup объединяет строки одного внешнего заказа в порядке следования в файле.
type OrderGroup struct {
	ExternalID string
	Rows       []OrderRow
}

// Customer содержит данные покупателя.
type Customer struct {
	ID        int
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Address описывает адрес доставки и оплаты.
type Address struct {
	Street      string
	HouseNumber string
	Zipcode     string
	City        string
	CountryID   int
}

// LineItem описывает позицию заказа. Discount отличает синтетические скидочные позиции от товаров.
type LineItem struct {
	SKU       string
	ArticleID int
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	TaxID     int
	Discount  bool
}

// Total возвращает брутто-сумму позиции.
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// NormalizedOrder описывает заказ, собранный из строк одной группы.
type NormalizedOrder struct {
	ExternalID string
	Customer   Customer
	Address    Address

	InvoiceAmount      decimal.Decimal
	InvoiceAmountNet   decimal.Decimal
	InvoiceShipping    decimal.Decimal
	InvoiceShippingNet decimal.Decimal
	ShippingTaxRate    decimal.Decimal

	Items []LineItem

	OrderTime   time.Time
	ClearedDate time.Time
}

// Article описывает товар каталога удалённой системы.
type Article struct {
	ID      int
	Number  string
	Name    string
	TaxID   int
	TaxRate decimal.NullDecimal
}

// RemoteOrder описывает заказ, уже созданный в удалённой системе.
type RemoteOrder struct {
	ID         int
	Number     string
	ExternalID string
}

// RemoteCustomer описывает покупателя удалённой системы.
type RemoteCustomer struct {
	ID       int
	Email    string
	GroupKey string
}

// OrderOutcome описывает итог обработки одного заказа.
type OrderOutcome string

const (
	OrderOutcomeCreated OrderOutcome = "CREATED"
	OrderOutcomeSkipped OrderOutcome = "SKIPPED"
	OrderOutcomeFailed  OrderOutcome = "FAILED"
)

// FileStatus описывает итог обработки файла.
type FileStatus string

const (
	FileStatusAborted FileStatus = "ABORTED"
	FileStatusDone    FileStatus = "DONE"
)

// FileReport описывает итог обработки одного файла.
type FileReport struct {
	File        string
	Status      FileStatus
	Error       string
	Rows        int
	SkippedRows int
	Created     int
	Skipped     int
	Failed      int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// OrderRecord описывает запись журнала синхронизации по одному заказу.
type OrderRecord struct {
	ExternalID  string       `json:"external_id"`
	File        string       `json:"file"`
	Outcome     OrderOutcome `json:"outcome"`
	RemoteID    *int         `json:"remote_id,omitempty"`
	Error       string       `json:"error,omitempty"`
	ProcessedAt time.Time    `json:"processed_at"`
}
