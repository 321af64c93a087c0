package ledger

import (
	"sync"

	"github.com/fjod/go_pos/internal/domain"
)

// Ledger is the device's cache of per-product available stock.
type Ledger struct {
	mu       sync.RWMutex
	products map[int64]*domain.Product // productID -> product
	order    []int64                   // snapshot order
	byCode   map[string]int64          // barcode -> productID
	baseline map[int64]int             // stock last fetched, minus settled sales
}

func New() *Ledger {
	return &Ledger{
		products: make(map[int64]*domain.Product),
		byCode:   make(map[string]int64),
		baseline: make(map[int64]int),
	}
}

// SetSnapshot replaces the whole product set. Nothing from the previous
// snapshot survives.
func (l *Ledger) SetSnapshot(products []domain.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.products = make(map[int64]*domain.Product, len(products))
	l.byCode = make(map[string]int64, len(products))
	l.baseline = make(map[int64]int, len(products))
	l.order = l.order[:0]

	for _, p := range products {
		product := p
		if product.Stock < 0 {
			product.Stock = 0
		}
		if _, exists := l.products[product.ID]; !exists {
			l.order = append(l.order, product.ID)
		}
		l.products[product.ID] = &product
		l.baseline[product.ID] = product.Stock
		if product.Code != "" {
			l.byCode[product.Code] = product.ID
		}
	}
}

// AdjustStock adds delta to the product's stock. A decrement that would take
// stock below zero is refused without mutating anything; increments always
// succeed.
func (l *Ledger) AdjustStock(productID int64, delta int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	product, exists := l.products[productID]
	if !exists {
		return productNotFound(productID)
	}
	if delta < 0 && product.Stock+delta < 0 {
		return &InsufficientStockError{
			ProductID: productID,
			Available: product.Stock,
			Requested: -delta,
		}
	}
	product.Stock += delta
	return nil
}

// Settle records that quantity units left the store in a completed sale, so
// they no longer count towards the product's baseline.
func (l *Ledger) Settle(productID int64, quantity int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.products[productID]; exists {
		l.baseline[productID] -= quantity
	}
}

func (l *Ledger) Stock(productID int64) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	product, exists := l.products[productID]
	if !exists {
		return 0, false
	}
	return product.Stock, true
}

// Baseline is the stock last fetched from the backend less settled sales.
func (l *Ledger) Baseline(productID int64) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stock, exists := l.baseline[productID]
	return stock, exists
}

func (l *Ledger) Product(productID int64) (domain.Product, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	product, exists := l.products[productID]
	if !exists {
		return domain.Product{}, false
	}
	return *product, true
}

// ByCode looks a product up by its barcode.
func (l *Ledger) ByCode(code string) (domain.Product, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, exists := l.byCode[code]
	if !exists {
		return domain.Product{}, false
	}
	return *l.products[id], true
}

// Products returns copies of all products in snapshot order.
func (l *Ledger) Products() []domain.Product {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Product, 0, len(l.order))
	for _, id := range l.order {
		result = append(result, *l.products[id])
	}
	return result
}
