package shopware

import "encoding/json"

// CreateOrderRequest описывает тело запроса POST /orders.
type CreateOrderRequest struct {
	Number             string         `json:"number,omitempty"`
	CustomerID         int            `json:"customerId" validate:"gt=0"`
	PaymentID          int            `json:"paymentId" validate:"gt=0"`
	DispatchID         int            `json:"dispatchId" validate:"gt=0"`
	ShopID             int            `json:"shopId" validate:"gt=0"`
	PartnerID          string         `json:"partnerId"`
	OrderStatusID      int            `json:"orderStatusId"`
	PaymentStatusID    int            `json:"paymentStatusId"`
	InvoiceAmount      json.Number    `json:"invoiceAmount" validate:"required"`
	InvoiceAmountNet   json.Number    `json:"invoiceAmountNet" validate:"required"`
	InvoiceShipping    json.Number    `json:"invoiceShipping" validate:"required"`
	InvoiceShippingNet json.Number    `json:"invoiceShippingNet" validate:"required"`
	OrderTime          string         `json:"orderTime" validate:"required"`
	ClearedDate        string         `json:"clearedDate,omitempty"`
	Net                int            `json:"net"`
	TaxFree            int            `json:"taxFree"`
	LanguageIso        string         `json:"languageIso"`
	Currency           string         `json:"currency" validate:"required,len=3"`
	CurrencyFactor     json.Number    `json:"currencyFactor"`
	RemoteAddress      string         `json:"remoteAddress"`
	InternalComment    string         `json:"internalComment"`
	Details            []OrderDetail  `json:"details" validate:"required,min=1,dive"`
	Billing            OrderAddress   `json:"billing"`
	Shipping           OrderAddress   `json:"shipping"`
	Attribute          OrderAttribute `json:"attribute"`
}

// OrderDetail описывает позицию заказа.
type OrderDetail struct {
	ArticleID     int         `json:"articleId"`
	ArticleNumber string      `json:"articleNumber" validate:"required"`
	ArticleName   string      `json:"articleName" validate:"required"`
	Quantity      int         `json:"quantity" validate:"gt=0"`
	Price         json.Number `json:"price" validate:"required"`
	TaxID         int         `json:"taxId" validate:"gt=0"`
	TaxRate       json.Number `json:"taxRate" validate:"required"`
	StatusID      int         `json:"statusId"`
	Mode          int         `json:"mode"`
	Shipped       int         `json:"shipped"`
	ShippedGroup  int         `json:"shippedGroup"`
	EsdArticle    int         `json:"esdArticle"`
}

// Режимы позиций заказа.
const (
	DetailModeArticle  = 0
	DetailModeDiscount = 3
)

// OrderAddress описывает адрес оплаты или доставки заказа.
type OrderAddress struct {
	CustomerID   int    `json:"customerId"`
	CountryID    int    `json:"countryId" validate:"gt=0"`
	Salutation   string `json:"salutation"`
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	Street       string `json:"street" validate:"required"`
	StreetNumber string `json:"streetNumber,omitempty"`
	ZipCode      string `json:"zipCode" validate:"required"`
	City         string `json:"city" validate:"required"`
	Phone        string `json:"phone,omitempty"`
}

// OrderAttribute хранит внешний номер заказа для поиска дубликатов.
type OrderAttribute struct {
	Attribute1 string `json:"attribute1"`
}

// GuestCustomer содержит данные для поиска или создания гостевого покупателя.
type GuestCustomer struct {
	Email       string
	FirstName   string
	LastName    string
	Phone       string
	Street      string
	HouseNumber string
	Zipcode     string
	City        string
	CountryID   int
}

type createCustomerRequest struct {
	Email       string          `json:"email"`
	FirstName   string          `json:"firstname"`
	LastName    string          `json:"lastname"`
	Salutation  string          `json:"salutation"`
	Password    string          `json:"password"`
	GroupKey    string          `json:"groupKey"`
	ShopID      int             `json:"shopId"`
	AccountMode int             `json:"accountMode"`
	Active      bool            `json:"active"`
	Billing     customerAddress `json:"billing"`
}

type customerAddress struct {
	FirstName  string `json:"firstname"`
	LastName   string `json:"lastname"`
	Salutation string `json:"salutation"`
	Street     string `json:"street"`
	Zipcode    string `json:"zipcode"`
	City       string `json:"city"`
	Country    int    `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type createdResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ID       int    `json:"id"`
		Location string `json:"location"`
	} `json:"data"`
}

type orderListResponse struct {
	Data []struct {
		ID        int    `json:"id"`
		Number    string `json:"number"`
		Attribute *struct {
			Attribute1 string `json:"attribute1"`
		} `json:"attribute"`
	} `json:"data"`
	Total int `json:"total"`
}

type customerListResponse struct {
	Data []struct {
		ID       int    `json:"id"`
		Email    string `json:"email"`
		GroupKey string `json:"groupKey"`
	} `json:"data"`
	Total int `json:"total"`
}

type articleResponse struct {
	Data *struct {
		ID         int    `json:"id"`
		Name       string `json:"name"`
		TaxID      int    `json:"taxId"`
		MainDetail struct {
			Number string `json:"number"`
		} `json:"mainDetail"`
		Tax *struct {
			ID  int    `json:"id"`
			Tax string `json:"tax"`
		} `json:"tax"`
	} `json:"data"`
}
