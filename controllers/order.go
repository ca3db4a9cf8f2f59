// controllers/order.go
package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go-freshmart/models"
	"go-freshmart/services"
	"go-freshmart/utils"
)

// OrderService is the order lifecycle used by the handlers.
type OrderService interface {
	CreateOrder(ctx context.Context, p models.Principal, cmd services.CreateOrderCommand) (models.Order, error)
	ListOrders(ctx context.Context, p models.Principal, query services.OrderListQuery) (services.OrderPage, error)
	GetOrder(ctx context.Context, p models.Principal, id string) (models.Order, error)
	UpdateStatus(ctx context.Context, p models.Principal, id string, cmd services.UpdateStatusCommand) (models.Order, error)
	Cancel(ctx context.Context, p models.Principal, id string, reason string) (models.Order, error)
}

// PaymentService applies payment outcomes.
type PaymentService interface {
	VerifyPayment(ctx context.Context, p models.Principal, id string, ref models.GatewayReference) (models.Order, error)
	MarkSettled(ctx context.Context, p models.Principal, id string, note string) (models.Order, error)
	RecordFailure(ctx context.Context, p models.Principal, id string, reason string) (models.Order, error)
}

// OrderController handles order-related requests
type OrderController struct {
	orders   OrderService
	payments PaymentService
	logger   *zap.Logger
}

// NewOrderController creates a new OrderController
func NewOrderController(orders OrderService, payments PaymentService, logger *zap.Logger) *OrderController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderController{orders: orders, payments: payments, logger: logger}
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	Items           []orderItemRequest   `json:"items"`
	ShippingAddress models.Address       `json:"shipping_address"`
	BillingAddress  *models.Address      `json:"billing_address"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	Notes           string               `json:"notes"`
}

// CreateOrder places an order for the caller.
func (oc *OrderController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := oc.orders.CreateOrder(r.Context(), p, cmd)
	if err != nil {
		respondError(w, r, oc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Order created successfully",
		"order":   order,
	})
}

// GetOrders lists the caller's orders, or all orders for admins.
func (oc *OrderController) GetOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := oc.orders.ListOrders(r.Context(), p, services.OrderListQuery{
		Page:   page,
		Limit:  limit,
		Status: q.Get("status"),
	})
	if err != nil {
		respondError(w, r, oc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// GetOrder returns one order.
func (oc *OrderController) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	order, err := oc.orders.GetOrder(r.Context(), p, mux.Vars(r)["id"])
	oc.respondOrder(w, r, order, err)
}

type updateStatusRequest struct {
	Status         string `json:"status"`
	Note           string `json:"note"`
	TrackingNumber string `json:"tracking_number"`
}

// UpdateOrderStatus moves an order through its lifecycle.
func (oc *OrderController) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := oc.orders.UpdateStatus(r.Context(), p, mux.Vars(r)["id"], services.UpdateStatusCommand{
		Status:         req.Status,
		Note:           req.Note,
		TrackingNumber: req.TrackingNumber,
	})
	oc.respondOrder(w, r, order, err)
}

type reasonRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// CancelOrder cancels an order that has not shipped.
func (oc *OrderController) CancelOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := oc.orders.Cancel(r.Context(), p, mux.Vars(r)["id"], req.Reason)
	oc.respondOrder(w, r, order, err)
}

type verifyPaymentRequest struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
}

// VerifyPayment records a gateway payment confirmation.
func (oc *OrderController) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := oc.payments.VerifyPayment(r.Context(), p, mux.Vars(r)["id"], models.GatewayReference{
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	})
	oc.respondOrder(w, r, order, err)
}

// SettlePayment records a cash-on-delivery collection.
func (oc *OrderController) SettlePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := oc.payments.MarkSettled(r.Context(), p, mux.Vars(r)["id"], req.Note)
	oc.respondOrder(w, r, order, err)
}

// FailPayment records a failed gateway payment.
func (oc *OrderController) FailPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := oc.payments.RecordFailure(r.Context(), p, mux.Vars(r)["id"], req.Reason)
	oc.respondOrder(w, r, order, err)
}

func (oc *OrderController) respondOrder(w http.ResponseWriter, r *http.Request, order models.Order, err error) {
	if err != nil {
		respondError(w, r, oc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}
