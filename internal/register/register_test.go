package register

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_pos/internal/backend"
	"github.com/fjod/go_pos/internal/cart"
	"github.com/fjod/go_pos/internal/connectivity"
	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/ledger"
	"github.com/fjod/go_pos/internal/queue"
	"github.com/fjod/go_pos/internal/storage"
	"github.com/fjod/go_pos/internal/syncer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cashMethod  = domain.PaymentMethod{ID: 1, Name: "Cash"}
	gcashMethod = domain.PaymentMethod{ID: 2, Name: "GCash"}
)

type fakeBackend struct {
	mu          sync.Mutex
	products    []domain.Product
	submitted   []domain.Transaction
	submitErr   error
	productsErr error
	refundItems []domain.RefundItem
	refunds     []domain.RefundForm
	// hang holds submissions until the caller's context ends
	hang          bool
	categories    []domain.Category
	categoriesErr error
}

func (f *fakeBackend) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.productsErr != nil {
		return nil, f.productsErr
	}
	return append([]domain.Product(nil), f.products...), nil
}

func (f *fakeBackend) SubmitTransaction(ctx context.Context, tx domain.Transaction) (*domain.ServerTransaction, error) {
	if f.hang {
		<-ctx.Done()
		return nil, fmt.Errorf("submit transaction: %w: %w", backend.ErrUnreachable, ctx.Err())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, tx)
	return &domain.ServerTransaction{ID: int64(len(f.submitted)), TotalPrice: tx.TotalPrice, Status: tx.Status}, nil
}

func (f *fakeBackend) FetchTransactions(ctx context.Context) ([]domain.ServerTransaction, error) {
	return []domain.ServerTransaction{{ID: 1}}, nil
}

func (f *fakeBackend) RefundTransaction(ctx context.Context, id int64) (*domain.ServerTransaction, error) {
	return &domain.ServerTransaction{ID: id, Status: domain.TransactionStatusRefunded}, nil
}

func (f *fakeBackend) FetchRefundableItems(ctx context.Context, transactionID int64) ([]domain.RefundItem, error) {
	return f.refundItems, nil
}

func (f *fakeBackend) CreateRefund(ctx context.Context, form domain.RefundForm) (*domain.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, form)
	return &domain.Refund{ID: 1, TransactionID: form.TransactionID, TotalAmount: form.TotalAmount}, nil
}

func (f *fakeBackend) FetchRefunds(ctx context.Context) ([]domain.Refund, error) {
	return nil, nil
}

func (f *fakeBackend) FetchPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return []domain.PaymentMethod{cashMethod, gcashMethod}, nil
}

func (f *fakeBackend) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return append([]domain.Category(nil), f.categories...), nil
}

func (f *fakeBackend) Submitted() []domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Transaction(nil), f.submitted...)
}

type fixture struct {
	store    *storage.Memory
	backend  *fakeBackend
	signal   *connectivity.Manual
	queue    *queue.Queue
	register *Register
}

func setup(t *testing.T, online bool) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewMemory(),
		backend: &fakeBackend{products: []domain.Product{
			{ID: 10, Name: "Rice 5kg", Code: "4800010", SellPrice: decimal.RequireFromString("42.50"), Stock: 5},
			{ID: 11, Name: "Soap", Code: "4800011", SellPrice: decimal.RequireFromString("12.25"), Stock: 3},
		}},
		signal: connectivity.NewManual(online),
	}
	f.queue = queue.New(f.store)
	f.register = New(cart.NewStore(ledger.New(), nil), f.queue, f.backend, f.signal,
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }))

	_, err := f.register.RefreshProducts(context.Background())
	require.NoError(t, err)
	return f
}

func cash(amount string) domain.Payment {
	d := decimal.RequireFromString(amount)
	return domain.Payment{Method: cashMethod, CashReceived: &d}
}

func stock(t *testing.T, r *Register, productID int64) int {
	t.Helper()
	s, ok := r.Cart().Ledger().Stock(productID)
	require.True(t, ok)
	return s
}

func TestRegister_OfflineCheckoutThenSync(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	_, err := f.register.Scan("4800010", 1)
	require.NoError(t, err)

	receipt, err := f.register.Checkout(ctx, cash("50"))
	require.NoError(t, err)
	assert.True(t, receipt.Queued)
	assert.NotEmpty(t, receipt.LocalID)
	assert.True(t, decimal.RequireFromString("7.50").Equal(receipt.Change))
	assert.True(t, decimal.RequireFromString("42.50").Equal(receipt.Transaction.TotalPrice))

	pending, err := f.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, receipt.LocalID, pending[0].LocalID)
	assert.Empty(t, f.register.Cart().Items())
	assert.Equal(t, 4, stock(t, f.register, 10))
	assert.Empty(t, f.backend.Submitted())

	// reconnect and sync
	f.signal.Set(true)
	ctrl := syncer.New(f.queue, f.backend, f.signal, f.store)
	result, err := ctrl.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomeSucceeded, result.Outcome())

	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, err := ctrl.LastSync(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	submitted := f.backend.Submitted()
	require.Len(t, submitted, 1)
	assert.True(t, decimal.RequireFromString("42.50").Equal(submitted[0].TotalPrice))
	assert.Equal(t, int64(1), submitted[0].PaymentMethodID)
}

func TestRegister_OnlineCheckout(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()

	_, err := f.register.AddItem(11, 2)
	require.NoError(t, err)

	receipt, err := f.register.Checkout(ctx, cash("24.50"))
	require.NoError(t, err)
	assert.False(t, receipt.Queued)
	require.NotNil(t, receipt.Server)
	assert.Equal(t, int64(1), receipt.Server.ID)
	assert.True(t, receipt.Change.IsZero())

	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, stock(t, f.register, 11))
	baseline, _ := f.register.Cart().Ledger().Baseline(11)
	assert.Equal(t, 1, baseline)
}

func TestRegister_CheckoutFallsBackToQueueWhenUnreachable(t *testing.T) {
	f := setup(t, true)
	f.backend.submitErr = fmt.Errorf("submit transaction: %w", backend.ErrUnreachable)

	_, err := f.register.AddItem(10, 1)
	require.NoError(t, err)

	receipt, err := f.register.Checkout(context.Background(), cash("42.50"))
	require.NoError(t, err)
	assert.True(t, receipt.Queued)

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, f.register.Cart().Items())
}

func TestRegister_CheckoutDeadlineDuringSubmitStillQueues(t *testing.T) {
	f := setup(t, true)
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f.queue = queue.New(store)
	f.register.queue = f.queue
	f.backend.hang = true

	_, err = f.register.AddItem(10, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	receipt, err := f.register.Checkout(ctx, cash("50"))
	require.NoError(t, err)
	assert.True(t, receipt.Queued)
	assert.NotEmpty(t, receipt.LocalID)

	pending, err := f.queue.List(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, receipt.LocalID, pending[0].LocalID)
	assert.Empty(t, f.register.Cart().Items())
}

func TestRegister_CheckoutRejectedLeavesCart(t *testing.T) {
	f := setup(t, true)
	f.backend.submitErr = &backend.StatusError{Code: 400, Body: "unknown payment method"}

	_, err := f.register.AddItem(10, 2)
	require.NoError(t, err)

	_, err = f.register.Checkout(context.Background(), cash("100"))
	var statusErr *backend.StatusError
	require.ErrorAs(t, err, &statusErr)

	assert.Len(t, f.register.Cart().Items(), 1)
	assert.Equal(t, 3, stock(t, f.register, 10))
	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// failingStore refuses every write.
type failingStore struct {
	*storage.Memory
}

func (failingStore) Set(ctx context.Context, key, value string) error {
	return errors.New("read-only filesystem")
}

func TestRegister_OfflineQueueFailureLeavesCart(t *testing.T) {
	f := setup(t, false)
	f.register.queue = queue.New(failingStore{storage.NewMemory()})

	_, err := f.register.AddItem(10, 1)
	require.NoError(t, err)

	_, err = f.register.Checkout(context.Background(), cash("50"))
	require.ErrorIs(t, err, queue.ErrStorage)
	assert.Len(t, f.register.Cart().Items(), 1)
	assert.Equal(t, 4, stock(t, f.register, 10))
}

func TestRegister_CheckoutValidation(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()

	_, err := f.register.Checkout(ctx, cash("10"))
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = f.register.AddItem(10, 1)
	require.NoError(t, err)

	_, err = f.register.Checkout(ctx, cash("40"))
	assert.ErrorIs(t, err, domain.ErrInsufficientCash)

	_, err = f.register.Checkout(ctx, domain.Payment{Method: gcashMethod})
	assert.ErrorIs(t, err, domain.ErrReferenceRequired)

	_, err = f.register.Checkout(ctx, domain.Payment{})
	assert.ErrorIs(t, err, domain.ErrNoPaymentMethod)

	assert.Len(t, f.register.Cart().Items(), 1)
	assert.Empty(t, f.backend.Submitted())

	receipt, err := f.register.Checkout(ctx, domain.Payment{Method: gcashMethod, ReferenceNumber: " 1002-334 "})
	require.NoError(t, err)
	assert.Equal(t, "1002-334", receipt.Transaction.ReferenceNumber)
	assert.Nil(t, receipt.Transaction.CashReceived)
}

func TestRegister_Scan(t *testing.T) {
	f := setup(t, true)

	item, err := f.register.Scan("4800011", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(11), item.ProductID)

	_, err = f.register.Scan("0000000", 1)
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)

	_, err = f.register.Scan("4800011", 2)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

func TestRegister_RefreshKeepsCartConsistent(t *testing.T) {
	f := setup(t, true)
	_, err := f.register.AddItem(10, 4)
	require.NoError(t, err)

	f.backend.products[0].Stock = 2
	conflicts, err := f.register.RefreshProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, 2, conflicts[0].Kept)
	assert.Equal(t, 2, f.register.Cart().Items()[0].Quantity)
	assert.Equal(t, 0, stock(t, f.register, 10))
}

func TestRegister_RefreshFailureKeepsSnapshot(t *testing.T) {
	f := setup(t, false)
	f.backend.productsErr = fmt.Errorf("fetch products: %w", backend.ErrUnreachable)

	_, err := f.register.RefreshProducts(context.Background())
	require.ErrorIs(t, err, backend.ErrUnreachable)
	assert.Equal(t, 5, stock(t, f.register, 10))
}

func TestRegister_SearchProducts(t *testing.T) {
	f := setup(t, true)
	groceries, rice := int64(1), int64(2)
	f.backend.categories = []domain.Category{
		{ID: groceries, Name: "Groceries"},
		{ID: rice, Name: "Rice", ParentID: &groceries},
	}
	f.backend.products[0].CategoryID = &rice
	_, err := f.register.RefreshProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, f.register.Categories(), 2)

	_, err = f.register.AddItem(10, 2)
	require.NoError(t, err)

	found := f.register.SearchProducts(domain.ProductFilter{CategoryID: groceries})
	require.Len(t, found, 1)
	assert.Equal(t, int64(10), found[0].ID)
	assert.Equal(t, 3, found[0].Stock, "results carry local stock")

	found = f.register.SearchProducts(domain.ProductFilter{Query: "soap"})
	require.Len(t, found, 1)
	assert.Equal(t, int64(11), found[0].ID)

	assert.Empty(t, f.register.SearchProducts(domain.ProductFilter{SubcategoryID: 99}))
}

func TestRegister_CategoryFailureKeepsCache(t *testing.T) {
	f := setup(t, true)
	f.backend.categories = []domain.Category{{ID: 1, Name: "Groceries"}}
	_, err := f.register.RefreshProducts(context.Background())
	require.NoError(t, err)

	f.backend.categoriesErr = &backend.StatusError{Code: 404, Body: "not found"}
	_, err = f.register.RefreshProducts(context.Background())
	require.NoError(t, err, "products still refresh")
	assert.Len(t, f.register.Categories(), 1)
}

func TestRegister_Refunds(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	f.backend.refundItems = []domain.RefundItem{
		{ProductID: 10, ProductName: "Rice 5kg", AvailableQuantity: 2, UnitPrice: decimal.RequireFromString("42.50")},
		{ProductID: 11, ProductName: "Soap", AvailableQuantity: 1, UnitPrice: decimal.RequireFromString("12.25")},
	}

	form, err := f.register.PrepareRefund(ctx, 9, domain.RefundTypePartial)
	require.NoError(t, err)

	_, err = f.register.SubmitRefund(ctx, *form)
	assert.ErrorIs(t, err, domain.ErrNothingToRefund)

	form.SetQuantity(10, 5)
	form.Reason = "damaged"
	refund, err := f.register.SubmitRefund(ctx, *form)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("85").Equal(refund.TotalAmount))
	require.Len(t, f.backend.refunds, 1)
	assert.Equal(t, "damaged", f.backend.refunds[0].Reason)

	updated, err := f.register.RefundTransaction(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefunded, updated.Status)
}
