package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
)

var (
	ErrNothingToRefund   = errors.New("select at least one item to refund")
	ErrInvalidRefundType = errors.New("refund type must be full or partial")
)

type RefundItem struct {
	OrderID           int64           `json:"orderId"`
	ProductID         int64           `json:"productId"`
	ProductName       string          `json:"productName"`
	OriginalQuantity  int             `json:"originalQuantity"`
	RefundedQuantity  int             `json:"refundedQuantity"`
	AvailableQuantity int             `json:"availableQuantity"`
	QuantityToRefund  int             `json:"quantityToRefund"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	TotalRefund       decimal.Decimal `json:"totalRefund"`
	RefundStatus      string          `json:"refundStatus,omitempty"`
}

// RefundForm is the refund request sent to the backend.
type RefundForm struct {
	TransactionID int64           `json:"transactionId"`
	Reason        string          `json:"reason"`
	Type          RefundType      `json:"type"`
	Items         []RefundItem    `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

type Refund struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transactionId"`
	DateOfRefund  string          `json:"dateOfRefund"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Reason        string          `json:"reason,omitempty"`
	Type          RefundType      `json:"type"`
	ClerkID       string          `json:"clerkId"`
	Items         []RefundItem    `json:"items,omitempty"`
}

// NewRefundForm prepares a form over the refundable items of a transaction.
// A full refund selects every available unit; a partial one starts empty.
func NewRefundForm(transactionID int64, refundType RefundType, items []RefundItem) (*RefundForm, error) {
	if refundType != RefundTypeFull && refundType != RefundTypePartial {
		return nil, ErrInvalidRefundType
	}
	form := &RefundForm{
		TransactionID: transactionID,
		Type:          refundType,
		Items:         make([]RefundItem, len(items)),
	}
	copy(form.Items, items)
	for i := range form.Items {
		if refundType == RefundTypeFull {
			form.Items[i].QuantityToRefund = form.Items[i].AvailableQuantity
		} else {
			form.Items[i].QuantityToRefund = 0
		}
	}
	form.recalculate()
	return form, nil
}

// SetQuantity clamps quantity to [0, available] for the product. Ignored on
// full refunds and for unknown products.
func (f *RefundForm) SetQuantity(productID int64, quantity int) {
	if f.Type == RefundTypeFull {
		return
	}
	for i := range f.Items {
		if f.Items[i].ProductID != productID {
			continue
		}
		f.Items[i].QuantityToRefund = min(max(0, quantity), f.Items[i].AvailableQuantity)
	}
	f.recalculate()
}

func (f *RefundForm) Validate() error {
	for _, item := range f.Items {
		if item.QuantityToRefund > 0 {
			return nil
		}
	}
	return ErrNothingToRefund
}

func (f *RefundForm) recalculate() {
	total := decimal.Zero
	for i := range f.Items {
		line := f.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(f.Items[i].QuantityToRefund)))
		f.Items[i].TotalRefund = line
		total = total.Add(line)
	}
	f.TotalAmount = total
}
