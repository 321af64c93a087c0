package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusCompleted         TransactionStatus = "completed"
	TransactionStatusRefunded          TransactionStatus = "refunded"
	TransactionStatusPartiallyRefunded TransactionStatus = "partially_refunded"
)

// Refundable reports whether a refund can still be issued against the status.
func (s TransactionStatus) Refundable() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusPartiallyRefunded
}

func (s TransactionStatus) String() string {
	return string(s)
}

// Transaction is the sale payload submitted to the backend.
type Transaction struct {
	PaymentMethodID   int64             `json:"payment_method_id"`
	DateOfTransaction time.Time         `json:"date_of_transaction"`
	CashReceived      *decimal.Decimal  `json:"cash_received,omitempty"`
	TotalPrice        decimal.Decimal   `json:"total_price"`
	Status            TransactionStatus `json:"status"`
	Items             []CartItem        `json:"items"`
	ReferenceNumber   string            `json:"reference_number,omitempty"`
	EmailTo           string            `json:"email_to,omitempty"`
}

// PendingTransaction is a sale recorded while the backend was unreachable.
// Timestamp is unix milliseconds.
type PendingTransaction struct {
	Transaction
	LocalID   string `json:"local_id"`
	Timestamp int64  `json:"timestamp"`
}

func (p PendingTransaction) QueuedAt() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// ServerTransaction is a transaction record as the backend returns it.
type ServerTransaction struct {
	ID                int64             `json:"id"`
	PaymentMethodID   int64             `json:"paymentMethodId"`
	DateOfTransaction string            `json:"dateOfTransaction"`
	EmailTo           string            `json:"emailTo,omitempty"`
	CashReceived      *decimal.Decimal  `json:"cashReceived,omitempty"`
	TotalPrice        decimal.Decimal   `json:"totalPrice"`
	Status            TransactionStatus `json:"status"`
	Items             json.RawMessage   `json:"items,omitempty"`
	PaymentMethodName string            `json:"paymentMethodName,omitempty"`
	ReferenceNumber   string            `json:"referenceNumber,omitempty"`
	TotalRefund       decimal.Decimal   `json:"totalRefund"`
}

// NetTotal is the transaction total minus everything refunded so far.
func (t ServerTransaction) NetTotal() decimal.Decimal {
	return t.TotalPrice.Sub(t.TotalRefund)
}

var (
	ErrInsufficientCash  = errors.New("cash received is less than the total")
	ErrReferenceRequired = errors.New("reference number is required for this payment method")
	ErrNoPaymentMethod   = errors.New("payment method is required")
)

// referenceMethods settle electronically and carry a reference number instead
// of cash.
var referenceMethods = map[string]struct{}{
	"gcash": {},
}

// Payment is what the clerk entered in the checkout dialog.
type Payment struct {
	Method          PaymentMethod    `json:"payment_method"`
	CashReceived    *decimal.Decimal `json:"cash_received,omitempty"`
	ReferenceNumber string           `json:"reference_number,omitempty"`
	EmailTo         string           `json:"email_to,omitempty"`
}

func (p Payment) RequiresReference() bool {
	_, ok := referenceMethods[strings.ToLower(strings.TrimSpace(p.Method.Name))]
	return ok
}

// Validate checks the payment against the amount due.
func (p Payment) Validate(total decimal.Decimal) error {
	if p.Method.ID == 0 {
		return ErrNoPaymentMethod
	}
	if p.RequiresReference() {
		if strings.TrimSpace(p.ReferenceNumber) == "" {
			return ErrReferenceRequired
		}
		return nil
	}
	if p.CashReceived == nil || p.CashReceived.LessThan(total) {
		return ErrInsufficientCash
	}
	return nil
}

// Change is the cash handed back to the customer; zero for reference payments.
func (p Payment) Change(total decimal.Decimal) decimal.Decimal {
	if p.RequiresReference() || p.CashReceived == nil {
		return decimal.Zero
	}
	return p.CashReceived.Sub(total)
}

// NewTransaction builds the submission payload for a completed sale.
func NewTransaction(items []CartItem, payment Payment, at time.Time) Transaction {
	tx := Transaction{
		PaymentMethodID:   payment.Method.ID,
		DateOfTransaction: at.UTC(),
		TotalPrice:        CartTotal(items),
		Status:            TransactionStatusCompleted,
		Items:             items,
		EmailTo:           payment.EmailTo,
	}
	if payment.RequiresReference() {
		tx.ReferenceNumber = strings.TrimSpace(payment.ReferenceNumber)
	} else {
		tx.CashReceived = payment.CashReceived
	}
	return tx
}
