package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"go-freshmart/controllers"
	"go-freshmart/middleware"
	"go-freshmart/models"
	"go-freshmart/services"
	"go-freshmart/utils"
)

type fakeOrders struct {
	createErr error
	created   services.CreateOrderCommand
	updateErr error
	listQuery services.OrderListQuery
}

func (f *fakeOrders) CreateOrder(_ context.Context, p models.Principal, cmd services.CreateOrderCommand) (models.Order, error) {
	f.created = cmd
	if f.createErr != nil {
		return models.Order{}, f.createErr
	}
	return models.Order{ID: primitive.NewObjectID(), OrderNumber: "ORD-000001", UserID: p.ID}, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, _ models.Principal, q services.OrderListQuery) (services.OrderPage, error) {
	f.listQuery = q
	return services.OrderPage{Page: q.Page, Limit: q.Limit}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, _ models.Principal, id string) (models.Order, error) {
	oid, _ := primitive.ObjectIDFromHex(id)
	return models.Order{ID: oid}, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, _ models.Principal, _ string, _ services.UpdateStatusCommand) (models.Order, error) {
	return models.Order{}, f.updateErr
}

func (f *fakeOrders) Cancel(_ context.Context, _ models.Principal, _ string, _ string) (models.Order, error) {
	return models.Order{}, nil
}

type fakePayments struct{}

func (fakePayments) VerifyPayment(context.Context, models.Principal, string, models.GatewayReference) (models.Order, error) {
	return models.Order{}, nil
}

func (fakePayments) MarkSettled(context.Context, models.Principal, string, string) (models.Order, error) {
	return models.Order{}, nil
}

func (fakePayments) RecordFailure(context.Context, models.Principal, string, string) (models.Order, error) {
	return models.Order{}, errors.New("mongo: connection reset")
}

type fakeSubscriptions struct {
	createCmd services.CreateSubscriptionCommand
	from, to  *time.Time
	due       []models.Subscription
}

func (f *fakeSubscriptions) Create(_ context.Context, _ models.Principal, cmd services.CreateSubscriptionCommand) (models.Subscription, error) {
	f.createCmd = cmd
	return models.Subscription{ID: primitive.NewObjectID(), Type: models.SubscriptionType(cmd.Type)}, nil
}

func (f *fakeSubscriptions) List(context.Context, models.Principal, services.SubscriptionListQuery) (services.SubscriptionPage, error) {
	return services.SubscriptionPage{}, nil
}

func (f *fakeSubscriptions) Get(_ context.Context, _ models.Principal, id string) (models.Subscription, error) {
	oid, _ := primitive.ObjectIDFromHex(id)
	return models.Subscription{ID: oid}, nil
}

func (f *fakeSubscriptions) Update(context.Context, models.Principal, string, services.UpdateSubscriptionCommand) (models.Subscription, error) {
	return models.Subscription{}, nil
}

func (f *fakeSubscriptions) Pause(context.Context, models.Principal, string) (models.Subscription, error) {
	return models.Subscription{}, fmt.Errorf("%w: only active subscriptions can be paused", services.ErrInvalidState)
}

func (f *fakeSubscriptions) Resume(context.Context, models.Principal, string) (models.Subscription, error) {
	return models.Subscription{Status: models.SubscriptionActive}, nil
}

func (f *fakeSubscriptions) Cancel(context.Context, models.Principal, string) (models.Subscription, error) {
	return models.Subscription{}, services.ErrForbidden
}

func (f *fakeSubscriptions) CompleteDelivery(context.Context, models.Principal, string) (models.Subscription, error) {
	return models.Subscription{}, nil
}

func (f *fakeSubscriptions) ListDue(_ context.Context, _ models.Principal, from, to *time.Time) ([]models.Subscription, error) {
	f.from, f.to = from, to
	return f.due, nil
}

func (f *fakeSubscriptions) Stats(context.Context, models.Principal) (services.SubscriptionStats, error) {
	return services.SubscriptionStats{Total: 3}, nil
}

func (f *fakeSubscriptions) Sweep(context.Context, models.Principal) (int64, error) {
	return 2, nil
}

type fakeStores struct{}

func (fakeStores) ActiveStore(context.Context) (models.StoreProfile, error) {
	return models.StoreProfile{}, fmt.Errorf("%w: no active store", services.ErrNotFound)
}

func (fakeStores) Activate(_ context.Context, _ models.Principal, id string) (models.StoreProfile, error) {
	oid, _ := primitive.ObjectIDFromHex(id)
	return models.StoreProfile{ID: oid, Active: true}, nil
}

// testAuth reads the caller's role from X-Role; no header means anonymous.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Role")
		if role == "" {
			utils.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "authorization header missing")
			return
		}
		p := models.Principal{ID: primitive.NewObjectID(), Email: role + "@example.com", Role: role}
		next.ServeHTTP(w, r.WithContext(middleware.WithPrincipal(r.Context(), p)))
	})
}

type harness struct {
	router *mux.Router
	orders *fakeOrders
	subs   *fakeSubscriptions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{router: mux.NewRouter(), orders: &fakeOrders{}, subs: &fakeSubscriptions{}}
	RegisterRoutes(h.router, Controllers{
		Orders:        controllers.NewOrderController(h.orders, fakePayments{}, nil),
		Subscriptions: controllers.NewSubscriptionController(h.subs, time.UTC, nil),
		Stores:        controllers.NewStoreController(fakeStores{}, nil),
	}, testAuth, middleware.AdminMiddleware)
	return h
}

func (h *harness) do(method, path, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRouteAccess(t *testing.T) {
	h := newHarness(t)
	id := primitive.NewObjectID().Hex()

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		status int
	}{
		{"health is public", http.MethodGet, "/healthz", "", http.StatusOK},
		{"orders need a caller", http.MethodGet, "/orders", "", http.StatusUnauthorized},
		{"customer lists orders", http.MethodGet, "/orders", models.RoleUser, http.StatusOK},
		{"customer reads an order", http.MethodGet, "/orders/" + id, models.RoleUser, http.StatusOK},
		{"malformed id is not routed", http.MethodGet, "/orders/not-an-id", models.RoleUser, http.StatusNotFound},
		{"customer cannot change status", http.MethodPatch, "/orders/" + id + "/status", models.RoleUser, http.StatusForbidden},
		{"customer cannot create subscriptions", http.MethodPost, "/subscriptions", models.RoleUser, http.StatusForbidden},
		{"admin creates subscriptions", http.MethodPost, "/subscriptions", models.RoleAdmin, http.StatusCreated},
		{"customer lists subscriptions", http.MethodGet, "/subscriptions", models.RoleUser, http.StatusOK},
		{"due is not an id", http.MethodGet, "/subscriptions/due", models.RoleAdmin, http.StatusOK},
		{"stats are admin only", http.MethodGet, "/subscriptions/stats", models.RoleUser, http.StatusForbidden},
		{"customer resumes", http.MethodPost, "/subscriptions/" + id + "/resume", models.RoleUser, http.StatusOK},
		{"customer cannot record deliveries", http.MethodPost, "/subscriptions/" + id + "/deliveries", models.RoleUser, http.StatusForbidden},
		{"admin activates a store", http.MethodPost, "/stores/" + id + "/activate", models.RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(tt.method, tt.path, tt.role, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateOrderResponse(t *testing.T) {
	h := newHarness(t)
	productID := primitive.NewObjectID().Hex()

	rec := h.do(http.MethodPost, "/orders", models.RoleUser, fmt.Sprintf(
		`{"items":[{"product_id":%q,"quantity":2}],"shipping_address":{"street":"1 Main St","city":"Pune","state":"MH","zipcode":"411001"},"payment_method":"cash_on_delivery"}`,
		productID,
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Message string       `json:"message"`
		Order   models.Order `json:"order"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Order created successfully", body.Message)
	assert.Equal(t, "ORD-000001", body.Order.OrderNumber)

	require.Len(t, h.orders.created.Items, 1)
	assert.Equal(t, productID, h.orders.created.Items[0].ProductID)
	assert.Equal(t, 2, h.orders.created.Items[0].Quantity)
	assert.Equal(t, models.PaymentMethodCashOnDelivery, h.orders.created.PaymentMethod)
	assert.Equal(t, "Pune", h.orders.created.ShippingAddress.City)
}

func TestErrorMapping(t *testing.T) {
	id := primitive.NewObjectID().Hex()

	t.Run("insufficient stock", func(t *testing.T) {
		h := newHarness(t)
		h.orders.createErr = fmt.Errorf("%w: only 1 left", services.ErrInsufficientStock)
		rec := h.do(http.MethodPost, "/orders", models.RoleUser, `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "insufficient_stock", decodeError(t, rec).Error)
	})

	t.Run("invalid transition", func(t *testing.T) {
		h := newHarness(t)
		h.orders.updateErr = fmt.Errorf("%w: delivered to pending", services.ErrInvalidTransition)
		rec := h.do(http.MethodPatch, "/orders/"+id+"/status", models.RoleAdmin, `{"status":"pending"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)
	})

	t.Run("invalid state", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodPost, "/subscriptions/"+id+"/pause", models.RoleUser, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "invalid_state", decodeError(t, rec).Error)
	})

	t.Run("forbidden", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodPost, "/subscriptions/"+id+"/cancel", models.RoleUser, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodGet, "/stores/active", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeError(t, rec).Error)
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodPost, "/orders/"+id+"/payment/fail", models.RoleAdmin, `{"reason":"declined"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "internal server error", body.Message)
		assert.NotContains(t, rec.Body.String(), "mongo")
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodPost, "/orders", models.RoleUser, `{"items":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_body", decodeError(t, rec).Error)
	})
}

func TestDueSubscriptionsQuery(t *testing.T) {
	h := newHarness(t)
	h.subs.due = []models.Subscription{{ID: primitive.NewObjectID()}, {ID: primitive.NewObjectID()}}

	rec := h.do(http.MethodGet, "/subscriptions/due?from=2026-10-01&to=2026-10-07", models.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	require.NotNil(t, h.subs.from)
	require.NotNil(t, h.subs.to)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), *h.subs.from)
	assert.Equal(t, time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC), *h.subs.to)

	rec = h.do(http.MethodGet, "/subscriptions/due?from=yesterday", models.RoleAdmin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSubscriptionParsesStartDate(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/subscriptions", models.RoleAdmin,
		`{"type":"weekly","start_date":"2026-11-02","items":[{"product_id":"p","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, h.subs.createCmd.StartDate)
	assert.Equal(t, time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC), *h.subs.createCmd.StartDate)
	assert.Equal(t, "weekly", h.subs.createCmd.Type)

	rec = h.do(http.MethodPost, "/subscriptions/sweep", models.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"expired":2}`, rec.Body.String())
}

func TestHandlerLogsUnmatchedRoutes(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.InfoLevel)
	handler := Handler(h.router, zap.New(core), time.Second)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/carts", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "not_found", body.Error)
	assert.NotEmpty(t, body.RequestID)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/carts", fields["path"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.Equal(t, body.RequestID, fields["request_id"])
}
