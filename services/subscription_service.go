package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"go-freshmart/models"
)

const day = 24 * time.Hour

// SubscriptionServiceDeps bundles collaborators required to construct the subscription service.
type SubscriptionServiceDeps struct {
	Subscriptions SubscriptionStore
	Products      ProductStore
	Pricing       PricingCalculator
	Notifier      Notifier
	Clock         func() time.Time
	Location      *time.Location
	Logger        *zap.Logger
}

// SubscriptionService computes delivery recurrence, drives the subscription
// status machine and expires finished windows.
type SubscriptionService struct {
	subs     SubscriptionStore
	products ProductStore
	pricing  PricingCalculator
	dispatch dispatcher
	clock    func() time.Time
	location *time.Location
	logger   *zap.Logger
}

// CreateSubscriptionCommand is an administrator's subscription request.
type CreateSubscriptionCommand struct {
	CustomerDetails      models.CustomerDetails
	Type                 string
	Items                []SubscriptionItemInput
	StartDate            *time.Time
	PaymentMethod        models.PaymentMethod
	DeliveryInstructions string
}

// SubscriptionItemInput is one requested product line.
type SubscriptionItemInput struct {
	ProductID string
	Quantity  int
}

// UpdateSubscriptionCommand changes mutable subscription fields; nil leaves a field unchanged.
type UpdateSubscriptionCommand struct {
	CustomerDetails      *models.CustomerDetails
	Items                []SubscriptionItemInput
	PaymentMethod        *models.PaymentMethod
	DeliveryInstructions *string
}

// SubscriptionListQuery selects a page of subscriptions.
type SubscriptionListQuery struct {
	Status string
	Type   string
	Email  string
	Page   int
	Limit  int
}

// SubscriptionPage is one page of a subscription listing.
type SubscriptionPage struct {
	Subscriptions []models.Subscription `json:"subscriptions"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	Total         int64                 `json:"total"`
}

// SubscriptionStats summarises the subscription book.
type SubscriptionStats struct {
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"by_status"`
	ActiveAmount float64          `json:"active_amount"`
	DueToday     int              `json:"due_today"`
}

// NewSubscriptionService wires dependencies into a SubscriptionService.
func NewSubscriptionService(deps SubscriptionServiceDeps) (*SubscriptionService, error) {
	if deps.Subscriptions == nil {
		return nil, errors.New("subscription service: subscription store is required")
	}
	if deps.Products == nil {
		return nil, errors.New("subscription service: product store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{
		subs:     deps.Subscriptions,
		products: deps.Products,
		pricing:  deps.Pricing,
		dispatch: dispatcher{notifier: deps.Notifier, logger: logger},
		clock:    clock,
		location: loc,
		logger:   logger,
	}, nil
}

// CalculateEndDate returns the start date plus the window length of the subscription type.
func (s *SubscriptionService) CalculateEndDate(sub models.Subscription) (time.Time, error) {
	days, ok := sub.Type.WindowDays()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown subscription type %q", ErrValidation, sub.Type)
	}
	return s.dateOf(sub.StartDate).AddDate(0, 0, days), nil
}

// CalculateNextDeliveryDate returns the day after the last delivery (or the
// start date when nothing was delivered yet). It returns false once that day
// falls after the end date.
func (s *SubscriptionService) CalculateNextDeliveryDate(sub models.Subscription) (time.Time, bool) {
	base := sub.StartDate
	if sub.LastDeliveryDate != nil {
		base = *sub.LastDeliveryDate
	}
	next := s.dateOf(base).AddDate(0, 0, 1)
	if next.After(s.dateOf(sub.EndDate)) {
		return time.Time{}, false
	}
	return next, true
}

// IsDueForDelivery reports whether an active subscription has a delivery due today.
func (s *SubscriptionService) IsDueForDelivery(sub models.Subscription) bool {
	if sub.Status != models.SubscriptionActive {
		return false
	}
	today := s.today()
	return !s.dateOf(sub.NextDeliveryDate).After(today) && !today.After(s.dateOf(sub.EndDate))
}

// Create registers a new active subscription.
func (s *SubscriptionService) Create(ctx context.Context, principal models.Principal, cmd CreateSubscriptionCommand) (models.Subscription, error) {
	if err := requireAdmin(principal); err != nil {
		return models.Subscription{}, err
	}
	subType := models.SubscriptionType(strings.TrimSpace(cmd.Type))
	if _, ok := subType.WindowDays(); !ok {
		return models.Subscription{}, fmt.Errorf("%w: unknown subscription type %q", ErrValidation, cmd.Type)
	}
	if err := validateCustomer(cmd.CustomerDetails); err != nil {
		return models.Subscription{}, err
	}
	if !cmd.PaymentMethod.Valid() {
		return models.Subscription{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, cmd.PaymentMethod)
	}
	items, err := s.snapshotItems(ctx, cmd.Items)
	if err != nil {
		return models.Subscription{}, err
	}

	now := s.clock()
	start := s.today()
	if cmd.StartDate != nil {
		start = s.dateOf(*cmd.StartDate)
	}
	creator := principal.ID

	sub := models.Subscription{
		ID:                   primitive.NewObjectID(),
		CustomerDetails:      normaliseCustomer(cmd.CustomerDetails),
		Type:                 subType,
		Status:               models.SubscriptionActive,
		Items:                items,
		TotalAmount:          s.pricing.SubscriptionTotal(items),
		StartDate:            start,
		PaymentMethod:        cmd.PaymentMethod,
		DeliveryInstructions: strings.TrimSpace(cmd.DeliveryInstructions),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if !creator.IsZero() {
		sub.CreatedBy = &creator
	}
	if sub.EndDate, err = s.CalculateEndDate(sub); err != nil {
		return models.Subscription{}, err
	}
	next, ok := s.CalculateNextDeliveryDate(sub)
	if !ok {
		return models.Subscription{}, fmt.Errorf("%w: subscription window has no delivery days", ErrValidation)
	}
	sub.NextDeliveryDate = next

	if err := s.subs.Insert(ctx, &sub); err != nil {
		return models.Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}

	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID.Hex()),
		zap.String("type", string(sub.Type)),
		zap.Time("end_date", sub.EndDate),
	)
	s.notify(ctx, EventSubscriptionCreated, sub, nil)
	return sub, nil
}

// List returns a page of subscriptions; non-admins only see their own.
func (s *SubscriptionService) List(ctx context.Context, principal models.Principal, query SubscriptionListQuery) (SubscriptionPage, error) {
	page, limit := normalisePage(query.Page, query.Limit)
	filter := SubscriptionFilter{
		Email: strings.TrimSpace(query.Email),
		Skip:  int64((page - 1) * limit),
		Limit: int64(limit),
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		if !models.SubscriptionStatus(status).Valid() {
			return SubscriptionPage{}, fmt.Errorf("%w: unknown subscription status %q", ErrValidation, status)
		}
		filter.Status = models.SubscriptionStatus(status)
	}
	if typ := strings.TrimSpace(query.Type); typ != "" {
		if _, ok := models.SubscriptionType(typ).WindowDays(); !ok {
			return SubscriptionPage{}, fmt.Errorf("%w: unknown subscription type %q", ErrValidation, typ)
		}
		filter.Type = models.SubscriptionType(typ)
	}
	if !principal.IsAdmin() {
		if strings.TrimSpace(principal.Email) == "" {
			return SubscriptionPage{}, fmt.Errorf("%w: an account is required", ErrForbidden)
		}
		filter.Email = principal.Email
	}

	subs, total, err := s.subs.List(ctx, filter)
	if err != nil {
		return SubscriptionPage{}, fmt.Errorf("list subscriptions: %w", err)
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	return SubscriptionPage{Subscriptions: subs, Page: page, Limit: limit, Total: total}, nil
}

// Get returns a subscription visible to the principal.
func (s *SubscriptionService) Get(ctx context.Context, principal models.Principal, id string) (models.Subscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if err := authorizeSubscription(principal, sub); err != nil {
		return models.Subscription{}, err
	}
	return sub, nil
}

// Update changes the mutable fields of an active or paused subscription.
func (s *SubscriptionService) Update(ctx context.Context, principal models.Principal, id string, cmd UpdateSubscriptionCommand) (models.Subscription, error) {
	if err := requireAdmin(principal); err != nil {
		return models.Subscription{}, err
	}
	sub, err := s.load(ctx, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if sub.Status != models.SubscriptionActive && sub.Status != models.SubscriptionPaused {
		return models.Subscription{}, fmt.Errorf("%w: subscription is %s", ErrInvalidState, sub.Status)
	}

	if cmd.CustomerDetails != nil {
		if err := validateCustomer(*cmd.CustomerDetails); err != nil {
			return models.Subscription{}, err
		}
		sub.CustomerDetails = normaliseCustomer(*cmd.CustomerDetails)
	}
	if cmd.Items != nil {
		items, err := s.snapshotItems(ctx, cmd.Items)
		if err != nil {
			return models.Subscription{}, err
		}
		sub.Items = items
		sub.TotalAmount = s.pricing.SubscriptionTotal(items)
	}
	if cmd.PaymentMethod != nil {
		if !cmd.PaymentMethod.Valid() {
			return models.Subscription{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, *cmd.PaymentMethod)
		}
		sub.PaymentMethod = *cmd.PaymentMethod
	}
	if cmd.DeliveryInstructions != nil {
		sub.DeliveryInstructions = strings.TrimSpace(*cmd.DeliveryInstructions)
	}
	sub.UpdatedAt = s.clock()

	if err := s.subs.UpdateIfStatus(ctx, sub, sub.Status); err != nil {
		return models.Subscription{}, fmt.Errorf("update subscription %s: %w", sub.ID.Hex(), err)
	}
	sub.Version++
	return sub, nil
}

// Pause suspends deliveries of an active subscription.
func (s *SubscriptionService) Pause(ctx context.Context, principal models.Principal, id string) (models.Subscription, error) {
	return s.transition(ctx, principal, id, models.SubscriptionActive, models.SubscriptionPaused, nil)
}

// Resume reactivates a paused subscription.
func (s *SubscriptionService) Resume(ctx context.Context, principal models.Principal, id string) (models.Subscription, error) {
	return s.transition(ctx, principal, id, models.SubscriptionPaused, models.SubscriptionActive, nil)
}

// Cancel ends an active or paused subscription now.
func (s *SubscriptionService) Cancel(ctx context.Context, principal models.Principal, id string) (models.Subscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if err := authorizeSubscription(principal, sub); err != nil {
		return models.Subscription{}, err
	}
	if sub.Status != models.SubscriptionActive && sub.Status != models.SubscriptionPaused {
		return models.Subscription{}, fmt.Errorf("%w: cannot cancel a %s subscription", ErrInvalidState, sub.Status)
	}
	return s.apply(ctx, sub, models.SubscriptionCancelled, func(sub *models.Subscription, now time.Time) {
		sub.EndDate = now
	})
}

// CompleteDelivery records today's delivery and advances the next delivery
// date, expiring the subscription once its window is exhausted.
func (s *SubscriptionService) CompleteDelivery(ctx context.Context, principal models.Principal, id string) (models.Subscription, error) {
	if err := requireAdmin(principal); err != nil {
		return models.Subscription{}, err
	}
	sub, err := s.load(ctx, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if sub.Status != models.SubscriptionActive {
		return models.Subscription{}, fmt.Errorf("%w: cannot deliver a %s subscription", ErrInvalidState, sub.Status)
	}

	now := s.clock()
	sub.LastDeliveryDate = &now
	sub.UpdatedAt = now
	expected := sub.Status
	if next, ok := s.CalculateNextDeliveryDate(sub); ok {
		sub.NextDeliveryDate = next
	} else {
		sub.Status = models.SubscriptionExpired
		sub.NextDeliveryDate = sub.EndDate
	}

	if err := s.subs.UpdateIfStatus(ctx, sub, expected); err != nil {
		return models.Subscription{}, fmt.Errorf("complete delivery of %s: %w", sub.ID.Hex(), err)
	}
	sub.Version++

	eventType := EventSubscriptionDelivered
	if sub.Status == models.SubscriptionExpired {
		eventType = EventSubscriptionExpired
	}
	s.notify(ctx, eventType, sub, map[string]any{"delivered_at": now.Format(time.RFC3339)})
	return sub, nil
}

// ListDue returns active subscriptions whose next delivery date falls inside
// [from, to], both taken as whole days. Nil bounds default to today.
func (s *SubscriptionService) ListDue(ctx context.Context, principal models.Principal, from, to *time.Time) ([]models.Subscription, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	start := s.today()
	if from != nil {
		start = s.dateOf(*from)
	}
	end := start
	if to != nil {
		end = s.dateOf(*to)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: due window ends before it starts", ErrValidation)
	}
	return s.listDue(ctx, start, end)
}

// Stats summarises subscriptions per status.
func (s *SubscriptionService) Stats(ctx context.Context, principal models.Principal) (SubscriptionStats, error) {
	if err := requireAdmin(principal); err != nil {
		return SubscriptionStats{}, err
	}
	agg, err := s.subs.Aggregate(ctx)
	if err != nil {
		return SubscriptionStats{}, fmt.Errorf("aggregate subscriptions: %w", err)
	}
	stats := SubscriptionStats{ByStatus: make(map[string]int64, len(models.SubscriptionStatuses))}
	for _, status := range models.SubscriptionStatuses {
		entry := agg[status]
		stats.ByStatus[string(status)] = entry.Count
		stats.Total += entry.Count
	}
	stats.ActiveAmount = agg[models.SubscriptionActive].Amount

	today := s.today()
	due, err := s.listDue(ctx, today, today)
	if err != nil {
		return SubscriptionStats{}, err
	}
	stats.DueToday = len(due)
	return stats, nil
}

// Sweep runs SweepExpired on behalf of an administrator.
func (s *SubscriptionService) Sweep(ctx context.Context, principal models.Principal) (int64, error) {
	if err := requireAdmin(principal); err != nil {
		return 0, err
	}
	return s.SweepExpired(ctx)
}

// SweepExpired expires every active or paused subscription whose end date is
// before today and notifies each subscriber.
func (s *SubscriptionService) SweepExpired(ctx context.Context) (int64, error) {
	now := s.clock()
	today := s.today()
	expired, err := s.subs.ExpireEnded(ctx, today, now)
	for _, sub := range expired {
		s.notify(ctx, EventSubscriptionExpired, sub, map[string]any{"expired_by": "sweep"})
	}
	count := int64(len(expired))
	if err != nil {
		return count, fmt.Errorf("expire subscriptions: %w", err)
	}
	if count > 0 {
		s.logger.Info("subscriptions expired", zap.Int64("count", count), zap.Time("cutoff", today))
	}
	return count, nil
}

func (s *SubscriptionService) transition(ctx context.Context, principal models.Principal, id string, from, to models.SubscriptionStatus, mutate func(*models.Subscription, time.Time)) (models.Subscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if err := authorizeSubscription(principal, sub); err != nil {
		return models.Subscription{}, err
	}
	if sub.Status != from {
		return models.Subscription{}, fmt.Errorf("%w: subscription is %s, expected %s", ErrInvalidState, sub.Status, from)
	}
	return s.apply(ctx, sub, to, mutate)
}

// apply writes the new status conditioned on the status that was read.
func (s *SubscriptionService) apply(ctx context.Context, sub models.Subscription, to models.SubscriptionStatus, mutate func(*models.Subscription, time.Time)) (models.Subscription, error) {
	now := s.clock()
	expected := sub.Status
	sub.Status = to
	sub.UpdatedAt = now
	if mutate != nil {
		mutate(&sub, now)
	}
	if err := s.subs.UpdateIfStatus(ctx, sub, expected); err != nil {
		return models.Subscription{}, fmt.Errorf("subscription %s %s -> %s: %w", sub.ID.Hex(), expected, to, err)
	}
	sub.Version++
	s.notify(ctx, EventSubscriptionStatus, sub, map[string]any{"previous_status": string(expected)})
	return sub, nil
}

func (s *SubscriptionService) listDue(ctx context.Context, start, end time.Time) ([]models.Subscription, error) {
	subs, err := s.subs.ListDue(ctx, start, end.Add(day-time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	return subs, nil
}

func (s *SubscriptionService) load(ctx context.Context, id string) (models.Subscription, error) {
	subID, err := parseObjectID("subscription", id)
	if err != nil {
		return models.Subscription{}, err
	}
	sub, err := s.subs.FindByID(ctx, subID)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("load subscription %s: %w", subID.Hex(), err)
	}
	return sub, nil
}

func (s *SubscriptionService) snapshotItems(ctx context.Context, inputs []SubscriptionItemInput) ([]models.SubscriptionItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: subscription must contain at least one item", ErrValidation)
	}
	items := make([]models.SubscriptionItem, 0, len(inputs))
	for i, in := range inputs {
		if in.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d quantity must be at least 1", ErrValidation, i)
		}
		productID, err := parseObjectID("product", in.ProductID)
		if err != nil {
			return nil, err
		}
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: product %s does not exist", ErrValidation, productID.Hex())
			}
			return nil, fmt.Errorf("load product %s: %w", productID.Hex(), err)
		}
		items = append(items, models.SubscriptionItem{
			ProductID: product.ID,
			Quantity:  in.Quantity,
			Price:     product.Price,
		})
	}
	return items, nil
}

func (s *SubscriptionService) notify(ctx context.Context, eventType string, sub models.Subscription, extra map[string]any) {
	data := map[string]any{
		"status":             string(sub.Status),
		"type":               string(sub.Type),
		"next_delivery_date": sub.NextDeliveryDate.Format("2006-01-02"),
		"end_date":           sub.EndDate.Format("2006-01-02"),
		"customer_name":      sub.CustomerDetails.Name,
	}
	for k, v := range extra {
		data[k] = v
	}
	s.dispatch.send(ctx, Event{
		Type:      eventType,
		Recipient: sub.CustomerDetails.Email,
		Reference: sub.ID.Hex(),
		Data:      data,
	})
}

func (s *SubscriptionService) today() time.Time {
	return s.dateOf(s.clock())
}

func (s *SubscriptionService) dateOf(t time.Time) time.Time {
	local := t.In(s.location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.location)
}

func validateCustomer(c models.CustomerDetails) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		return fmt.Errorf("%w: customer email %q is invalid", ErrValidation, c.Email)
	}
	if strings.TrimSpace(c.Phone) == "" {
		return fmt.Errorf("%w: customer phone is required", ErrValidation)
	}
	return validateAddress("customer", c.Address)
}

func normaliseCustomer(c models.CustomerDetails) models.CustomerDetails {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	return c
}
