package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pos/internal/cart"
	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/register"
)

type ProductHandler struct {
	register *register.Register
	log      *logger.Logger
	timeout  time.Duration
}

func NewProductHandler(reg *register.Register, log *logger.Logger, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		register: reg,
		log:      log,
		timeout:  timeout,
	}
}

type RefreshResponseDTO struct {
	Products  []domain.Product `json:"products"`
	Conflicts []cart.Conflict  `json:"conflicts"`
}

// ListProducts serves the cached snapshot with the device's local stock,
// filtered by ?q=, ?category= and ?subcategory=.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.ProductFilter{Query: query.Get("q")}

	var ok bool
	if filter.CategoryID, ok = int64Query(w, r, "category"); !ok {
		return
	}
	if filter.SubcategoryID, ok = int64Query(w, r, "subcategory"); !ok {
		return
	}

	respondJSON(w, http.StatusOK, h.register.SearchProducts(filter))
}

// ListCategories serves the cached category list; ?parent= narrows it to
// that category's subcategories.
func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	parent, ok := int64Query(w, r, "parent")
	if !ok {
		return
	}

	categories := h.register.Categories()
	if parent != 0 {
		categories = domain.Subcategories(categories, parent)
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *ProductHandler) RefreshProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	conflicts, err := h.register.RefreshProducts(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if conflicts == nil {
		conflicts = []cart.Conflict{}
	}

	respondJSON(w, http.StatusOK, RefreshResponseDTO{
		Products:  h.register.Cart().Ledger().Products(),
		Conflicts: conflicts,
	})
}

func (h *ProductHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	methods, err := h.register.PaymentMethods(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, methods)
}
