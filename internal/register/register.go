package register

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_pos/internal/backend"
	"github.com/fjod/go_pos/internal/cart"
	"github.com/fjod/go_pos/internal/connectivity"
	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/ledger"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/metrics"
	"github.com/fjod/go_pos/internal/queue"
	"github.com/shopspring/decimal"
)

var ErrEmptyCart = errors.New("cart is empty")

// Backend is the part of the REST service the register uses.
type Backend interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
	SubmitTransaction(ctx context.Context, tx domain.Transaction) (*domain.ServerTransaction, error)
	FetchTransactions(ctx context.Context) ([]domain.ServerTransaction, error)
	RefundTransaction(ctx context.Context, id int64) (*domain.ServerTransaction, error)
	FetchRefundableItems(ctx context.Context, transactionID int64) ([]domain.RefundItem, error)
	CreateRefund(ctx context.Context, form domain.RefundForm) (*domain.Refund, error)
	FetchRefunds(ctx context.Context) ([]domain.Refund, error)
	FetchPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	FetchCategories(ctx context.Context) ([]domain.Category, error)
}

// Register ties the cart to the backend and the offline queue.
type Register struct {
	cart    *cart.Store
	queue   *queue.Queue
	backend Backend
	signal  connectivity.Signal
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu         sync.RWMutex
	categories []domain.Category
}

type Option func(*Register)

func WithLogger(log *logger.Logger) Option {
	return func(r *Register) { r.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Register) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Register) { r.now = now }
}

func New(c *cart.Store, q *queue.Queue, b Backend, signal connectivity.Signal, opts ...Option) *Register {
	r := &Register{
		cart:    c,
		queue:   q,
		backend: b,
		signal:  signal,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Register) Cart() *cart.Store {
	return r.cart
}

func (r *Register) Queue() *queue.Queue {
	return r.queue
}

func (r *Register) Online() bool {
	return r.signal.Online()
}

// RefreshProducts replaces the cached snapshot with the backend's product list
// and re-holds the cart against it.
func (r *Register) RefreshProducts(ctx context.Context) ([]cart.Conflict, error) {
	products, err := r.backend.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}

	conflicts := r.cart.ReplaceSnapshot(products)
	for _, c := range conflicts {
		fields := r.log.WithFields(ctx, map[string]any{
			"line_id":    c.LineID,
			"product_id": c.ProductID,
			"held":       c.Held,
			"kept":       c.Kept,
		})
		if c.Missing {
			r.log.Warn(fields, "cart line references a product no longer offered", nil)
		} else {
			r.log.Warn(fields, "cart line cut down to refreshed stock", nil)
		}
	}
	r.metrics.SetCartLines(r.cart.Len())

	r.log.Info(r.log.WithField(ctx, "products", len(products)), "product snapshot refreshed")

	// categories only drive filtering; a stale list is better than none
	if _, err := r.RefreshCategories(ctx); err != nil {
		r.log.Warn(ctx, "category refresh failed, keeping cached categories", err)
	}
	return conflicts, nil
}

// RefreshCategories replaces the cached category list with the backend's.
func (r *Register) RefreshCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := r.backend.FetchCategories(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.categories = categories
	r.mu.Unlock()
	return r.Categories(), nil
}

// Categories returns the cached category list.
func (r *Register) Categories() []domain.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Category{}, r.categories...)
}

// SearchProducts filters the cached snapshot, with local stock, by f.
func (r *Register) SearchProducts(f domain.ProductFilter) []domain.Product {
	return domain.FilterProducts(r.cart.Ledger().Products(), r.Categories(), f)
}

// Scan adds quantity units of the product with the given barcode.
func (r *Register) Scan(code string, quantity int) (domain.CartItem, error) {
	product, ok := r.cart.Ledger().ByCode(code)
	if !ok {
		return domain.CartItem{}, fmt.Errorf("%w: code %q", ledger.ErrProductNotFound, code)
	}
	return r.AddItem(product.ID, quantity)
}

func (r *Register) AddItem(productID int64, quantity int) (domain.CartItem, error) {
	item, err := r.cart.AddItem(productID, quantity)
	if err != nil {
		return domain.CartItem{}, err
	}
	r.metrics.SetCartLines(r.cart.Len())
	return item, nil
}

func (r *Register) SetQuantity(lineID int64, quantity int) error {
	if err := r.cart.SetQuantity(lineID, quantity); err != nil {
		return err
	}
	r.metrics.SetCartLines(r.cart.Len())
	return nil
}

func (r *Register) RemoveItem(lineID int64) error {
	if err := r.cart.RemoveItem(lineID); err != nil {
		return err
	}
	r.metrics.SetCartLines(r.cart.Len())
	return nil
}

// ClearCart abandons the sale and gives everything back to stock.
func (r *Register) ClearCart() {
	r.cart.Clear()
	r.metrics.SetCartLines(0)
}

// Receipt describes a completed sale. Server is set when the backend took the
// sale directly; LocalID when it was queued.
type Receipt struct {
	Transaction domain.Transaction        `json:"transaction"`
	Server      *domain.ServerTransaction `json:"server,omitempty"`
	LocalID     string                    `json:"local_id,omitempty"`
	Queued      bool                      `json:"queued"`
	Change      decimal.Decimal           `json:"change"`
}

// Checkout charges the cart. Online the sale goes straight to the backend; if
// that fails because the backend cannot be reached, or the device is offline,
// the sale is queued for sync. Any other failure leaves the cart untouched.
func (r *Register) Checkout(ctx context.Context, payment domain.Payment) (*Receipt, error) {
	var receipt *Receipt

	_, err := r.cart.Checkout(func(items []domain.CartItem) error {
		if len(items) == 0 {
			return ErrEmptyCart
		}
		total := domain.CartTotal(items)
		if err := payment.Validate(total); err != nil {
			return err
		}

		tx := domain.NewTransaction(items, payment, r.now())
		receipt = &Receipt{Transaction: tx, Change: payment.Change(total)}

		if r.signal.Online() {
			server, err := r.backend.SubmitTransaction(ctx, tx)
			if err == nil {
				receipt.Server = server
				return nil
			}
			if !errors.Is(err, backend.ErrUnreachable) {
				return err
			}
			r.log.Warn(ctx, "backend unreachable at checkout, queueing sale", err)
		}

		// the sale is charged; a request that timed out or went away must
		// not lose it
		localID, err := r.queue.Enqueue(context.WithoutCancel(ctx), tx)
		if err != nil {
			return err
		}
		receipt.LocalID = localID
		receipt.Queued = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	mode := "online"
	if receipt.Queued {
		mode = "queued"
		if n, err := r.queue.Len(context.WithoutCancel(ctx)); err == nil {
			r.metrics.SetPending(n)
		}
	}
	r.metrics.IncCheckout(mode)
	r.metrics.SetCartLines(0)

	fields := r.log.WithFields(ctx, map[string]any{
		"mode":  mode,
		"total": receipt.Transaction.TotalPrice.String(),
		"items": len(receipt.Transaction.Items),
	})
	r.log.Info(fields, "checkout completed")
	return receipt, nil
}

func (r *Register) Transactions(ctx context.Context) ([]domain.ServerTransaction, error) {
	return r.backend.FetchTransactions(ctx)
}

// RefundTransaction marks a whole transaction refunded.
func (r *Register) RefundTransaction(ctx context.Context, id int64) (*domain.ServerTransaction, error) {
	return r.backend.RefundTransaction(ctx, id)
}

// PrepareRefund loads what is still refundable on a transaction into a form.
func (r *Register) PrepareRefund(ctx context.Context, transactionID int64, refundType domain.RefundType) (*domain.RefundForm, error) {
	items, err := r.backend.FetchRefundableItems(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return domain.NewRefundForm(transactionID, refundType, items)
}

func (r *Register) SubmitRefund(ctx context.Context, form domain.RefundForm) (*domain.Refund, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	refund, err := r.backend.CreateRefund(ctx, form)
	if err != nil {
		return nil, err
	}

	fields := r.log.WithFields(ctx, map[string]any{
		"transaction_id": form.TransactionID,
		"amount":         form.TotalAmount.String(),
	})
	r.log.Info(fields, "refund submitted")
	return refund, nil
}

func (r *Register) Refunds(ctx context.Context) ([]domain.Refund, error) {
	return r.backend.FetchRefunds(ctx)
}

func (r *Register) PaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return r.backend.FetchPaymentMethods(ctx)
}
