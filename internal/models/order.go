package models

import "time"

// Order is one imported marketplace order row.
type Order struct {
	ID     string `db:"id" json:"id"`
	UserID string `db:"user_id" json:"user_id"`

	OrderNumber   string     `db:"order_number" json:"order_number"`
	OrderDate     *time.Time `db:"order_date" json:"order_date,omitempty"`
	AWBNumber     *string    `db:"awb_number" json:"awb_number,omitempty"`
	ProductName   *string    `db:"product_name" json:"product_name,omitempty"`
	ProductCode   *string    `db:"product_code" json:"product_code,omitempty"`
	PNK           *string    `db:"pnk" json:"pnk,omitempty"`
	SerialNumbers *string    `db:"serial_numbers" json:"serial_numbers,omitempty"`

	Quantity         *float64 `db:"quantity" json:"quantity,omitempty"`
	UnitPriceNoVAT   *float64 `db:"unit_price_without_vat" json:"unit_price_without_vat,omitempty"`
	TotalPriceVAT    *float64 `db:"total_price_with_vat" json:"total_price_with_vat,omitempty"`
	Currency         *string  `db:"currency" json:"currency,omitempty"`
	VAT              *float64 `db:"vat" json:"vat,omitempty"`
	OrderStatus      *string  `db:"order_status" json:"order_status,omitempty"`
	PaymentMethod    *string  `db:"payment_method" json:"payment_method,omitempty"`
	DeliveryMethod   *string  `db:"delivery_method" json:"delivery_method,omitempty"`
	PaymentStatus    *string  `db:"payment_status" json:"payment_status,omitempty"`
	CustomerName     *string  `db:"customer_name" json:"customer_name,omitempty"`
	PhoneNumber      *string  `db:"phone_number" json:"phone_number,omitempty"`
	DeliveryName     *string  `db:"delivery_name" json:"delivery_name,omitempty"`
	DeliveryPhone    *string  `db:"delivery_phone" json:"delivery_phone,omitempty"`
	DeliveryAddress  *string  `db:"delivery_address" json:"delivery_address,omitempty"`
	BillingName      *string  `db:"billing_name" json:"billing_name,omitempty"`
	BillingAddress   *string  `db:"billing_address" json:"billing_address,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderImportRow is one pre-parsed row submitted to the import endpoint.
// Spreadsheet parsing happens client-side; the API receives structured
// rows only.
type OrderImportRow struct {
	OrderNumber   string   `json:"order_number" validate:"required,max=64"`
	OrderDate     *string  `json:"order_date" validate:"omitempty"`
	AWBNumber     string   `json:"awb_number" validate:"omitempty,max=64"`
	ProductName   string   `json:"product_name" validate:"omitempty"`
	ProductCode   string   `json:"product_code" validate:"omitempty,max=64"`
	PNK           string   `json:"pnk" validate:"omitempty,max=64"`
	Quantity      *float64 `json:"quantity"`
	TotalPrice    *float64 `json:"total_price_with_vat"`
	Currency      string   `json:"currency" validate:"omitempty,max=8"`
	OrderStatus   string   `json:"order_status" validate:"omitempty,max=64"`
	CustomerName  string   `json:"customer_name" validate:"omitempty,max=255"`
	PhoneNumber   string   `json:"phone_number" validate:"omitempty,max=64"`
	DeliveryPhone string   `json:"delivery_phone" validate:"omitempty,max=64"`
}

// OrderImportRequest wraps a batch of rows.
type OrderImportRequest struct {
	Rows []OrderImportRow `json:"rows" validate:"required,min=1,dive"`
}

// OrderImportResult summarises an import batch.
type OrderImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// OrderFilter captures listing criteria for a user's orders.
type OrderFilter struct {
	UserID    string
	Search    string
	Status    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// OrderExport describes a generated CSV export available for download.
type OrderExport struct {
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Rows      int       `json:"rows"`
}
