package domain

import "github.com/shopspring/decimal"

// Product is the backend's product record as cached on the device.
type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Code           string          `json:"code"`
	Description    string          `json:"description,omitempty"`
	ImageURL       string          `json:"imageUrl,omitempty"`
	BuyPrice       decimal.Decimal `json:"buyPrice"`
	SellPrice      decimal.Decimal `json:"sellPrice"`
	Stock          int             `json:"stock"`
	LowStockLevel  *int            `json:"lowStockLevel,omitempty"`
	ExpirationDate string          `json:"expirationDate,omitempty"`
	CategoryID     *int64          `json:"categoryId,omitempty"`
	ClerkID        string          `json:"clerkId,omitempty"`
	Brand          string          `json:"brand,omitempty"`
}

// IsLowStock reports whether stock is at or below the product's low-stock level.
func (p Product) IsLowStock() bool {
	return p.LowStockLevel != nil && p.Stock <= *p.LowStockLevel
}

type PaymentMethod struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	ClerkID string `json:"clerkId,omitempty"`
}
