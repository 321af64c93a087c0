package ledger

import (
	"sync"
	"testing"

	"github.com/fjod/go_pos/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New()
	l.SetSnapshot([]domain.Product{
		{ID: 1, Name: "Soap", Code: "4800001", SellPrice: decimal.RequireFromString("12.50"), Stock: 100},
		{ID: 2, Name: "Rice", Code: "4800002", SellPrice: decimal.RequireFromString("55"), Stock: 5},
	})
	return l
}

func TestLedger_SetSnapshot_And_Stock(t *testing.T) {
	l := setupLedger(t)

	stock, ok := l.Stock(1)
	require.True(t, ok)
	assert.Equal(t, 100, stock)

	_, ok = l.Stock(3)
	assert.False(t, ok)

	products := l.Products()
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)
	assert.Equal(t, int64(2), products[1].ID)
}

func TestLedger_SetSnapshot_ReplacesWholesale(t *testing.T) {
	l := setupLedger(t)
	require.NoError(t, l.AdjustStock(1, -10))

	l.SetSnapshot([]domain.Product{{ID: 3, Name: "Milk", Code: "4800003", Stock: 7}})

	_, ok := l.Stock(1)
	assert.False(t, ok, "products absent from the new snapshot are gone")
	_, ok = l.ByCode("4800001")
	assert.False(t, ok)

	stock, ok := l.Stock(3)
	require.True(t, ok)
	assert.Equal(t, 7, stock)
	baseline, _ := l.Baseline(3)
	assert.Equal(t, 7, baseline)
}

func TestLedger_SetSnapshot_ClampsNegativeStock(t *testing.T) {
	l := New()
	l.SetSnapshot([]domain.Product{{ID: 1, Stock: -4}})

	stock, _ := l.Stock(1)
	assert.Equal(t, 0, stock)
}

func TestLedger_AdjustStock_Decrement(t *testing.T) {
	l := setupLedger(t)

	require.NoError(t, l.AdjustStock(2, -3))
	stock, _ := l.Stock(2)
	assert.Equal(t, 2, stock)
}

func TestLedger_AdjustStock_InsufficientStock(t *testing.T) {
	l := setupLedger(t)

	err := l.AdjustStock(2, -6)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Contains(t, err.Error(), "only 5 items available")

	// Stock should be unchanged
	stock, _ := l.Stock(2)
	assert.Equal(t, 5, stock)
}

func TestLedger_AdjustStock_RestoreNeverRejected(t *testing.T) {
	l := setupLedger(t)
	require.NoError(t, l.AdjustStock(2, -5))

	require.NoError(t, l.AdjustStock(2, 5))
	stock, _ := l.Stock(2)
	assert.Equal(t, 5, stock)
}

func TestLedger_AdjustStock_ProductNotFound(t *testing.T) {
	l := setupLedger(t)

	err := l.AdjustStock(999, -1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestLedger_Settle(t *testing.T) {
	l := setupLedger(t)
	require.NoError(t, l.AdjustStock(2, -2))

	l.Settle(2, 2)
	baseline, ok := l.Baseline(2)
	require.True(t, ok)
	assert.Equal(t, 3, baseline)

	l.Settle(999, 1) // unknown products are ignored
	_, ok = l.Baseline(999)
	assert.False(t, ok)
}

func TestLedger_ByCode(t *testing.T) {
	l := setupLedger(t)

	p, ok := l.ByCode("4800002")
	require.True(t, ok)
	assert.Equal(t, "Rice", p.Name)

	_, ok = l.ByCode("nope")
	assert.False(t, ok)
}

func TestLedger_ProductReturnsCopy(t *testing.T) {
	l := setupLedger(t)

	p, ok := l.Product(1)
	require.True(t, ok)
	p.Stock = 0

	stock, _ := l.Stock(1)
	assert.Equal(t, 100, stock)
}

func TestLedger_ConcurrentDecrements(t *testing.T) {
	l := New()
	l.SetSnapshot([]domain.Product{{ID: 1, Stock: 100}})

	var wg sync.WaitGroup
	successCount := 0
	var mu sync.Mutex

	// 10 callers taking 20 units each; only 5 fit
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.AdjustStock(1, -20); err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 5, successCount)
	stock, _ := l.Stock(1)
	assert.Equal(t, 0, stock)
}
