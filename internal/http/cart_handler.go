package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/register"
	"github.com/shopspring/decimal"
)

type CartHandler struct {
	register *register.Register
	log      *logger.Logger
	timeout  time.Duration
}

func NewCartHandler(reg *register.Register, log *logger.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		register: reg,
		log:      log,
		timeout:  timeout,
	}
}

// AddItemRequestDTO selects the product by id or by scanned barcode.
type AddItemRequestDTO struct {
	ProductID int64  `json:"product_id"`
	Code      string `json:"code"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Items []domain.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

type CheckoutRequestDTO struct {
	PaymentMethodID   int64            `json:"payment_method_id"`
	PaymentMethodName string           `json:"payment_method_name"`
	CashReceived      *decimal.Decimal `json:"cash_received"`
	ReferenceNumber   string           `json:"reference_number"`
	EmailTo           string           `json:"email_to"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	req.Code = strings.TrimSpace(req.Code)
	if req.ProductID <= 0 && req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_product", "product_id or code is required")
		return
	}

	var err error
	if req.Code != "" {
		_, err = h.register.Scan(req.Code, req.Quantity)
	} else {
		_, err = h.register.AddItem(req.ProductID, req.Quantity)
	}
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.cartResponse())
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	lineID, ok := int64Param(w, r, "item_id")
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.register.SetQuantity(lineID, req.Quantity); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := int64Param(w, r, "item_id")
	if !ok {
		return
	}

	if err := h.register.RemoveItem(lineID); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.register.ClearCart()
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	payment := domain.Payment{
		Method:          domain.PaymentMethod{ID: req.PaymentMethodID, Name: req.PaymentMethodName},
		CashReceived:    req.CashReceived,
		ReferenceNumber: req.ReferenceNumber,
		EmailTo:         req.EmailTo,
	}

	receipt, err := h.register.Checkout(ctx, payment)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	status := http.StatusCreated
	if receipt.Queued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, receipt)
}

func (h *CartHandler) cartResponse() CartResponseDTO {
	items := h.register.Cart().Items()
	return CartResponseDTO{
		Items: items,
		Total: domain.CartTotal(items),
	}
}
