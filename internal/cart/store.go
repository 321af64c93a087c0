package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/ledger"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/shopspring/decimal"
)

// Store is the clerk's in-progress sale. Every mutation adjusts the cart line
// and the ledger stock under one lock, so for each product
// stock + quantity in cart == ledger baseline.
type Store struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
	log    *logger.Logger
	items  []domain.CartItem
	nextID int64
}

func NewStore(l *ledger.Ledger, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		ledger: l,
		log:    log,
		nextID: 1,
	}
}

// Ledger exposes the stock ledger the cart reconciles against.
func (s *Store) Ledger() *ledger.Ledger {
	return s.ledger
}

// AddItem takes quantity units of the product out of stock and into the cart,
// merging with an existing line for the same product.
func (s *Store) AddItem(productID int64, quantity int) (domain.CartItem, error) {
	if quantity < 1 {
		return domain.CartItem{}, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.ledger.Product(productID)
	if !ok {
		return domain.CartItem{}, fmt.Errorf("%w: id %d", ledger.ErrProductNotFound, productID)
	}
	if err := s.ledger.AdjustStock(productID, -quantity); err != nil {
		return domain.CartItem{}, err
	}

	if idx := s.indexByProduct(productID); idx >= 0 {
		s.items[idx].Quantity += quantity
		return s.items[idx], nil
	}

	item := domain.CartItem{
		ID:        s.nextID,
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  quantity,
		Price:     product.SellPrice,
	}
	s.nextID++
	s.items = append(s.items, item)
	return item, nil
}

// SetQuantity moves the line to newQuantity, taking or giving back the
// difference in stock. Zero or less removes the line.
func (s *Store) SetQuantity(lineID int64, newQuantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(lineID)
	if idx < 0 {
		return fmt.Errorf("%w: id %d", ErrLineItemNotFound, lineID)
	}
	if newQuantity <= 0 {
		return s.removeAt(idx)
	}

	item := s.items[idx]
	diff := item.Quantity - newQuantity
	if diff == 0 {
		return nil
	}
	if err := s.ledger.AdjustStock(item.ProductID, diff); err != nil {
		return err
	}
	s.items[idx].Quantity = newQuantity
	return nil
}

// RemoveItem gives the line's quantity back to stock and drops it. Unknown
// lines are ignored.
func (s *Store) RemoveItem(lineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(lineID)
	if idx < 0 {
		return nil
	}
	return s.removeAt(idx)
}

// Clear gives every line back to stock and empties the cart. Lines whose
// product has left the ledger are dropped without restoring anything.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		err := s.ledger.AdjustStock(item.ProductID, item.Quantity)
		if err != nil {
			ctx := s.log.WithFields(context.Background(), map[string]any{
				"product_id": item.ProductID,
				"quantity":   item.Quantity,
			})
			s.log.Warn(ctx, "skipping stock restore for cart line", err)
		}
	}
	s.items = nil
}

// Commit empties the cart after a completed sale. The held stock stays out of
// the ledger and is settled against the baseline.
func (s *Store) Commit() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commitLocked()
}

// Checkout hands a copy of the cart to settle and commits the sale when settle
// returns nil. The cart is locked while settle runs, so what is committed is
// exactly what settle saw. On error the cart and stock are left untouched.
func (s *Store) Checkout(settle func(items []domain.CartItem) error) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.CartItem, len(s.items))
	copy(items, s.items)
	if err := settle(items); err != nil {
		return nil, err
	}
	s.commitLocked()
	return items, nil
}

func (s *Store) commitLocked() []domain.CartItem {
	sold := s.items
	for _, item := range sold {
		s.ledger.Settle(item.ProductID, item.Quantity)
	}
	s.items = nil
	return sold
}

// Conflict describes a cart line that could not be fully re-held against a
// refreshed product snapshot.
type Conflict struct {
	LineID    int64 `json:"line_id"`
	ProductID int64 `json:"product_id"`
	Held      int   `json:"held"`
	Kept      int   `json:"kept"`
	Missing   bool  `json:"missing"`
}

// ReplaceSnapshot installs a freshly fetched product set and takes the cart's
// quantities back out of it. A line holding more than the new stock is cut
// down to what is available; a line whose product disappeared is kept as is.
func (s *Store) ReplaceSnapshot(products []domain.Product) []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger.SetSnapshot(products)

	var conflicts []Conflict
	kept := s.items[:0]
	for _, item := range s.items {
		stock, ok := s.ledger.Stock(item.ProductID)
		if !ok {
			conflicts = append(conflicts, Conflict{LineID: item.ID, ProductID: item.ProductID, Held: item.Quantity, Kept: item.Quantity, Missing: true})
			kept = append(kept, item)
			continue
		}

		hold := min(item.Quantity, stock)
		if hold > 0 {
			// hold <= stock, cannot fail
			_ = s.ledger.AdjustStock(item.ProductID, -hold)
		}
		if hold < item.Quantity {
			conflicts = append(conflicts, Conflict{LineID: item.ID, ProductID: item.ProductID, Held: item.Quantity, Kept: hold})
		}
		if hold == 0 {
			continue
		}
		item.Quantity = hold
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		kept = nil
	}
	s.items = kept
	return conflicts
}

// Total is the sum of price * quantity over the cart.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.CartTotal(s.items)
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.CartItem, len(s.items))
	copy(result, s.items)
	return result
}

func (s *Store) Item(lineID int64) (domain.CartItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(lineID)
	if idx < 0 {
		return domain.CartItem{}, false
	}
	return s.items[idx], true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

func (s *Store) removeAt(idx int) error {
	item := s.items[idx]
	if err := s.ledger.AdjustStock(item.ProductID, item.Quantity); err != nil {
		return err
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return nil
}

func (s *Store) indexByID(lineID int64) int {
	for i, item := range s.items {
		if item.ID == lineID {
			return i
		}
	}
	return -1
}

func (s *Store) indexByProduct(productID int64) int {
	for i, item := range s.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}
