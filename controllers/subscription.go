// controllers/subscription.go
package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go-freshmart/models"
	"go-freshmart/services"
	"go-freshmart/utils"
)

const dateLayout = "2006-01-02"

// SubscriptionService is the subscription scheduler used by the handlers.
type SubscriptionService interface {
	Create(ctx context.Context, p models.Principal, cmd services.CreateSubscriptionCommand) (models.Subscription, error)
	List(ctx context.Context, p models.Principal, query services.SubscriptionListQuery) (services.SubscriptionPage, error)
	Get(ctx context.Context, p models.Principal, id string) (models.Subscription, error)
	Update(ctx context.Context, p models.Principal, id string, cmd services.UpdateSubscriptionCommand) (models.Subscription, error)
	Pause(ctx context.Context, p models.Principal, id string) (models.Subscription, error)
	Resume(ctx context.Context, p models.Principal, id string) (models.Subscription, error)
	Cancel(ctx context.Context, p models.Principal, id string) (models.Subscription, error)
	CompleteDelivery(ctx context.Context, p models.Principal, id string) (models.Subscription, error)
	ListDue(ctx context.Context, p models.Principal, from, to *time.Time) ([]models.Subscription, error)
	Stats(ctx context.Context, p models.Principal) (services.SubscriptionStats, error)
	Sweep(ctx context.Context, p models.Principal) (int64, error)
}

// SubscriptionController handles subscription requests.
type SubscriptionController struct {
	subs     SubscriptionService
	location *time.Location
	logger   *zap.Logger
}

// NewSubscriptionController creates a SubscriptionController. Dates in
// requests are read in loc.
func NewSubscriptionController(subs SubscriptionService, loc *time.Location, logger *zap.Logger) *SubscriptionController {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionController{subs: subs, location: loc, logger: logger}
}

type subscriptionItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createSubscriptionRequest struct {
	CustomerDetails      models.CustomerDetails    `json:"customer_details"`
	Type                 string                    `json:"type"`
	Items                []subscriptionItemRequest `json:"items"`
	StartDate            string                    `json:"start_date"`
	PaymentMethod        models.PaymentMethod      `json:"payment_method"`
	DeliveryInstructions string                    `json:"delivery_instructions"`
}

type updateSubscriptionRequest struct {
	CustomerDetails      *models.CustomerDetails   `json:"customer_details"`
	Items                []subscriptionItemRequest `json:"items"`
	PaymentMethod        *models.PaymentMethod     `json:"payment_method"`
	DeliveryInstructions *string                   `json:"delivery_instructions"`
}

// CreateSubscription registers a subscription.
func (sc *SubscriptionController) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createSubscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := sc.parseDate("start_date", req.StartDate)
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}

	sub, err := sc.subs.Create(r.Context(), p, services.CreateSubscriptionCommand{
		CustomerDetails:      req.CustomerDetails,
		Type:                 req.Type,
		Items:                subscriptionItems(req.Items),
		StartDate:            start,
		PaymentMethod:        req.PaymentMethod,
		DeliveryInstructions: req.DeliveryInstructions,
	})
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, sub)
}

// GetSubscriptions lists subscriptions.
func (sc *SubscriptionController) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	result, err := sc.subs.List(r.Context(), p, services.SubscriptionListQuery{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Email:  q.Get("email"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// GetSubscription returns one subscription.
func (sc *SubscriptionController) GetSubscription(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sub, err := sc.subs.Get(r.Context(), p, mux.Vars(r)["id"])
	sc.respond(w, r, sub, err)
}

// UpdateSubscription edits the mutable fields of a subscription.
func (sc *SubscriptionController) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateSubscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cmd := services.UpdateSubscriptionCommand{
		CustomerDetails:      req.CustomerDetails,
		PaymentMethod:        req.PaymentMethod,
		DeliveryInstructions: req.DeliveryInstructions,
	}
	if req.Items != nil {
		cmd.Items = subscriptionItems(req.Items)
	}
	sub, err := sc.subs.Update(r.Context(), p, mux.Vars(r)["id"], cmd)
	sc.respond(w, r, sub, err)
}

// PauseSubscription pauses an active subscription.
func (sc *SubscriptionController) PauseSubscription(w http.ResponseWriter, r *http.Request) {
	sc.action(w, r, sc.subs.Pause)
}

// ResumeSubscription resumes a paused subscription.
func (sc *SubscriptionController) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	sc.action(w, r, sc.subs.Resume)
}

// CancelSubscription cancels a subscription.
func (sc *SubscriptionController) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	sc.action(w, r, sc.subs.Cancel)
}

// CompleteDelivery records today's delivery.
func (sc *SubscriptionController) CompleteDelivery(w http.ResponseWriter, r *http.Request) {
	sc.action(w, r, sc.subs.CompleteDelivery)
}

// GetDueSubscriptions lists subscriptions due inside ?from=&to= (dates, default today).
func (sc *SubscriptionController) GetDueSubscriptions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := sc.parseDate("from", q.Get("from"))
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}
	to, err := sc.parseDate("to", q.Get("to"))
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}
	subs, err := sc.subs.ListDue(r.Context(), p, from, to)
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs, "count": len(subs)})
}

// GetSubscriptionStats returns per-status counts.
func (sc *SubscriptionController) GetSubscriptionStats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	stats, err := sc.subs.Stats(r.Context(), p)
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

// SweepSubscriptions expires ended subscriptions now.
func (sc *SubscriptionController) SweepSubscriptions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := sc.subs.Sweep(r.Context(), p)
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]int64{"expired": n})
}

func (sc *SubscriptionController) action(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.Principal, string) (models.Subscription, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sub, err := fn(r.Context(), p, mux.Vars(r)["id"])
	sc.respond(w, r, sub, err)
}

func (sc *SubscriptionController) respond(w http.ResponseWriter, r *http.Request, sub models.Subscription, err error) {
	if err != nil {
		respondError(w, r, sc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sub)
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Empty means unset.
func (sc *SubscriptionController) parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, sc.location); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", services.ErrValidation, field)
	}
	return &t, nil
}

func subscriptionItems(in []subscriptionItemRequest) []services.SubscriptionItemInput {
	out := make([]services.SubscriptionItemInput, 0, len(in))
	for _, item := range in {
		out = append(out, services.SubscriptionItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}
