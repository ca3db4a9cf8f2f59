package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"go-freshmart/models"
)

const (
	orderCounterName        = "orders"
	defaultOrderPrefix      = "ORD"
	defaultDeliveryLeadTime = 24 * time.Hour
	defaultPageLimit        = 10
	maxPageLimit            = 100
)

// fulfilment rank of each non-cancelled status; transitions only move forward.
var orderProgression = map[models.OrderStatus]int{
	models.OrderStatusPending:    0,
	models.OrderStatusConfirmed:  1,
	models.OrderStatusProcessing: 2,
	models.OrderStatusShipped:    3,
	models.OrderStatusDelivered:  4,
}

var cancellableStatuses = map[models.OrderStatus]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusConfirmed:  true,
	models.OrderStatusProcessing: true,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders           OrderStore
	Products         ProductStore
	Inventory        *InventoryLedger
	Counters         CounterStore
	UnitOfWork       UnitOfWork
	Pricing          PricingCalculator
	Notifier         Notifier
	Clock            func() time.Time
	Logger           *zap.Logger
	NumberPrefix     string
	DeliveryLeadTime time.Duration
}

// OrderService validates and creates orders and drives the order status state machine.
type OrderService struct {
	orders     OrderStore
	products   ProductStore
	inventory  *InventoryLedger
	counters   CounterStore
	unitOfWork UnitOfWork
	pricing    PricingCalculator
	dispatch   dispatcher
	clock      func() time.Time
	logger     *zap.Logger
	prefix     string
	leadTime   time.Duration
}

// CreateOrderCommand is a checkout request.
type CreateOrderCommand struct {
	Items           []OrderItemInput
	ShippingAddress models.Address
	BillingAddress  *models.Address
	PaymentMethod   models.PaymentMethod
	Notes           string
}

// OrderItemInput is one requested product line.
type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// UpdateStatusCommand is an administrative status change.
type UpdateStatusCommand struct {
	Status         string
	Note           string
	TrackingNumber string
}

// OrderListQuery selects a page of orders.
type OrderListQuery struct {
	Page   int
	Limit  int
	Status string
}

// OrderPage is one page of an order listing.
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int64          `json:"total"`
}

// NewOrderService wires dependencies into an OrderService.
func NewOrderService(deps OrderServiceDeps) (*OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order store is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product store is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory ledger is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter store is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = defaultOrderPrefix
	}
	lead := deps.DeliveryLeadTime
	if lead <= 0 {
		lead = defaultDeliveryLeadTime
	}

	return &OrderService{
		orders:     deps.Orders,
		products:   deps.Products,
		inventory:  deps.Inventory,
		counters:   deps.Counters,
		unitOfWork: unit,
		pricing:    deps.Pricing,
		dispatch:   dispatcher{notifier: deps.Notifier, logger: logger},
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		prefix:   prefix,
		leadTime: lead,
	}, nil
}

// CreateOrder snapshots the requested items, prices them, reserves stock and
// persists a pending order.
func (s *OrderService) CreateOrder(ctx context.Context, principal models.Principal, cmd CreateOrderCommand) (models.Order, error) {
	if principal.ID.IsZero() {
		return models.Order{}, fmt.Errorf("%w: an account is required to place orders", ErrForbidden)
	}
	if err := validateCheckout(cmd); err != nil {
		return models.Order{}, err
	}

	items := make([]models.OrderItem, 0, len(cmd.Items))
	for i, line := range cmd.Items {
		item, err := s.snapshotItem(ctx, i, line)
		if err != nil {
			return models.Order{}, err
		}
		items = append(items, item)
	}

	seq, err := s.counters.Next(ctx, orderCounterName)
	if err != nil {
		return models.Order{}, fmt.Errorf("allocate order number: %w", err)
	}

	now := s.clock()
	estimated := now.Add(s.leadTime)
	order := models.Order{
		ID:                primitive.NewObjectID(),
		OrderNumber:       fmt.Sprintf("%s-%06d", s.prefix, seq),
		UserID:            principal.ID,
		CustomerEmail:     principal.Email,
		Items:             items,
		ShippingAddress:   cmd.ShippingAddress,
		BillingAddress:    cloneAddress(cmd.BillingAddress),
		PaymentMethod:     cmd.PaymentMethod,
		PaymentStatus:     models.PaymentStatusPending,
		Pricing:           s.pricing.Order(items),
		EstimatedDelivery: &estimated,
		Notes:             strings.TrimSpace(cmd.Notes),
		CreatedAt:         now,
	}
	order.RecordStatus(models.OrderStatusPending, now, "Order placed")

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		reserved := make([]models.OrderItem, 0, len(order.Items))
		for _, item := range order.Items {
			if err := s.inventory.Reserve(txCtx, item.ProductID, item.Quantity); err != nil {
				s.releaseReserved(txCtx, order.OrderNumber, reserved)
				return err
			}
			reserved = append(reserved, item)
		}
		if err := s.orders.Insert(txCtx, &order); err != nil {
			s.releaseReserved(txCtx, order.OrderNumber, reserved)
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", order.UserID.Hex()),
		zap.Float64("total", order.Pricing.Total),
	)
	s.dispatch.send(ctx, Event{
		Type:       EventOrderCreated,
		Recipient:  order.CustomerEmail,
		Reference:  order.OrderNumber,
		OccurredAt: now,
		Data: map[string]any{
			"order_id":           order.ID.Hex(),
			"total":              order.Pricing.Total,
			"payment_method":     string(order.PaymentMethod),
			"estimated_delivery": estimated.Format("2006-01-02"),
		},
	})
	return order, nil
}

// ListOrders returns a page of orders; non-admins only see their own.
func (s *OrderService) ListOrders(ctx context.Context, principal models.Principal, query OrderListQuery) (OrderPage, error) {
	page, limit := normalisePage(query.Page, query.Limit)
	filter := OrderFilter{
		Skip:  int64((page - 1) * limit),
		Limit: int64(limit),
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		if !models.OrderStatus(status).Valid() {
			return OrderPage{}, fmt.Errorf("%w: unknown order status %q", ErrValidation, status)
		}
		filter.Status = models.OrderStatus(status)
	}
	if !principal.IsAdmin() {
		if principal.ID.IsZero() {
			return OrderPage{}, fmt.Errorf("%w: an account is required", ErrForbidden)
		}
		owner := principal.ID
		filter.UserID = &owner
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return OrderPage{Orders: orders, Page: page, Limit: limit, Total: total}, nil
}

// GetOrder returns an order visible to the principal.
func (s *OrderService) GetOrder(ctx context.Context, principal models.Principal, orderID string) (models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if err := authorizeOrder(principal, order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// UpdateStatus applies an administrative status change.
func (s *OrderService) UpdateStatus(ctx context.Context, principal models.Principal, orderID string, cmd UpdateStatusCommand) (models.Order, error) {
	if err := requireAdmin(principal); err != nil {
		return models.Order{}, err
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if tracking := strings.TrimSpace(cmd.TrackingNumber); tracking != "" {
		order.TrackingNumber = tracking
	}
	return s.TransitionStatus(ctx, order, models.OrderStatus(strings.TrimSpace(cmd.Status)), cmd.Note)
}

// Cancel cancels an order on behalf of its owner or an admin.
func (s *OrderService) Cancel(ctx context.Context, principal models.Principal, orderID string, reason string) (models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if err := authorizeOrder(principal, order); err != nil {
		return models.Order{}, err
	}
	return s.CancelOrder(ctx, order, reason)
}

// CancelOrder cancels an order that has not shipped yet.
func (s *OrderService) CancelOrder(ctx context.Context, order models.Order, reason string) (models.Order, error) {
	if order.OrderStatus == models.OrderStatusCancelled && !order.StockRestored {
		// an earlier cancellation stopped before every line was restocked
		return s.resumeRestock(ctx, order)
	}
	if !cancellableStatuses[order.OrderStatus] {
		return models.Order{}, fmt.Errorf("%w: order %s is %s and cannot be cancelled", ErrInvalidState, order.OrderNumber, order.OrderStatus)
	}
	note := strings.TrimSpace(reason)
	if note == "" {
		note = "Order cancelled"
	}
	return s.TransitionStatus(ctx, order, models.OrderStatusCancelled, note)
}

// TransitionStatus moves order to target, appends a history entry and applies
// the side effects of the target status. The write is conditioned on the order
// version so a concurrent change is reported as ErrConflict.
func (s *OrderService) TransitionStatus(ctx context.Context, order models.Order, target models.OrderStatus, note string) (models.Order, error) {
	if !target.Valid() {
		return models.Order{}, fmt.Errorf("%w: unknown order status %q", ErrInvalidTransition, target)
	}
	previous := order.OrderStatus
	if !canTransition(previous, target) {
		return models.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, previous, target)
	}

	now := s.clock()
	note = strings.TrimSpace(note)
	if note == "" {
		note = fmt.Sprintf("Status updated to %s", target)
	}
	order.RecordStatus(target, now, note)

	restore := false
	switch target {
	case models.OrderStatusCancelled:
		if order.PaymentStatus == models.PaymentStatusCompleted {
			order.PaymentStatus = models.PaymentStatusRefunded
			order.Payment.RefundedAt = &now
		}
		restore = !order.StockRestored
	case models.OrderStatusDelivered:
		if order.ActualDelivery == nil {
			order.ActualDelivery = &now
		}
	}

	var saved models.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		written, err := s.save(txCtx, order)
		if err != nil {
			return err
		}
		if restore {
			if written, err = s.restoreStock(txCtx, written); err != nil {
				return err
			}
		}
		saved = written
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	order = saved

	eventType := EventOrderStatusChanged
	if target == models.OrderStatusCancelled {
		eventType = EventOrderCancelled
	}
	s.dispatch.send(ctx, Event{
		Type:       eventType,
		Recipient:  order.CustomerEmail,
		Reference:  order.OrderNumber,
		OccurredAt: now,
		Data: map[string]any{
			"order_id":        order.ID.Hex(),
			"previous_status": string(previous),
			"status":          string(target),
			"note":            note,
			"tracking_number": order.TrackingNumber,
		},
	})
	return order, nil
}

func (s *OrderService) resumeRestock(ctx context.Context, order models.Order) (models.Order, error) {
	var saved models.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		written, err := s.restoreStock(txCtx, order)
		saved = written
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	return saved, nil
}

func (s *OrderService) save(ctx context.Context, order models.Order) (models.Order, error) {
	if err := checkStatusHistory(order); err != nil {
		return models.Order{}, err
	}
	if err := s.orders.Update(ctx, order); err != nil {
		return models.Order{}, fmt.Errorf("update order %s: %w", order.OrderNumber, err)
	}
	order.Version++
	return order, nil
}

func (s *OrderService) load(ctx context.Context, orderID string) (models.Order, error) {
	id, err := parseObjectID("order", orderID)
	if err != nil {
		return models.Order{}, err
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, fmt.Errorf("load order %s: %w", id.Hex(), err)
	}
	return order, nil
}

func (s *OrderService) snapshotItem(ctx context.Context, index int, line OrderItemInput) (models.OrderItem, error) {
	if line.Quantity < 1 {
		return models.OrderItem{}, fmt.Errorf("%w: item %d quantity must be at least 1", ErrValidation, index)
	}
	productID, err := parseObjectID("product", line.ProductID)
	if err != nil {
		return models.OrderItem{}, err
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.OrderItem{}, fmt.Errorf("%w: product %s does not exist", ErrValidation, productID.Hex())
		}
		return models.OrderItem{}, fmt.Errorf("load product %s: %w", productID.Hex(), err)
	}
	if level, ok := product.StockLevel().(models.Managed); ok && line.Quantity > level.Quantity {
		return models.OrderItem{}, fmt.Errorf("%w: %s has %d left, requested %d", ErrInsufficientStock, product.Name, level.Quantity, line.Quantity)
	}
	return models.OrderItem{
		ProductID:  product.ID,
		Name:       product.Name,
		Price:      product.Price,
		Quantity:   line.Quantity,
		TotalPrice: s.pricing.LineTotal(product.Price, line.Quantity),
		Image:      product.PrimaryImage(),
	}, nil
}

// restoreStock returns every line not yet restocked to inventory. Each line is
// claimed with a versioned write before its release and unclaimed when the
// release fails, so a retried cancellation resumes with the remaining lines
// and never restocks a line twice. StockRestored is set once all lines are done.
func (s *OrderService) restoreStock(ctx context.Context, order models.Order) (models.Order, error) {
	for i := range order.Items {
		if order.Items[i].Restocked {
			continue
		}
		item := order.Items[i]
		order.Items = withRestocked(order.Items, i, true)
		claimed, err := s.save(ctx, order)
		if err != nil {
			return models.Order{}, err
		}
		order = claimed

		err = s.inventory.Release(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("stock restore skipped for missing product",
				zap.String("order_number", order.OrderNumber),
				zap.String("product_id", item.ProductID.Hex()),
			)
			continue
		}
		if err != nil {
			order.Items = withRestocked(order.Items, i, false)
			if _, unclaimErr := s.save(ctx, order); unclaimErr != nil {
				s.logger.Error("unclaim restock",
					zap.String("order_number", order.OrderNumber),
					zap.String("product_id", item.ProductID.Hex()),
					zap.Error(unclaimErr),
				)
			}
			return models.Order{}, fmt.Errorf("restore stock for %s: %w", order.OrderNumber, err)
		}
	}
	order.StockRestored = true
	return s.save(ctx, order)
}

// withRestocked copies items so a caller's earlier copy of the order keeps its lines.
func withRestocked(items []models.OrderItem, i int, restocked bool) []models.OrderItem {
	out := append([]models.OrderItem(nil), items...)
	out[i].Restocked = restocked
	return out
}

// checkStatusHistory rejects an order whose status is not its last history entry.
func checkStatusHistory(order models.Order) error {
	if order.StatusHistory.Len() == 0 || order.OrderStatus != order.StatusHistory.Current() {
		return fmt.Errorf("%w: order %s status %q does not match its history", ErrInvalidState, order.OrderNumber, order.OrderStatus)
	}
	return nil
}

// releaseReserved compensates reservations taken before a failed checkout.
func (s *OrderService) releaseReserved(ctx context.Context, orderNumber string, items []models.OrderItem) {
	for _, item := range items {
		if err := s.inventory.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("release reserved stock",
				zap.String("order_number", orderNumber),
				zap.String("product_id", item.ProductID.Hex()),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

func validateCheckout(cmd CreateOrderCommand) error {
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	if !cmd.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, cmd.PaymentMethod)
	}
	if err := validateAddress("shipping", cmd.ShippingAddress); err != nil {
		return err
	}
	if cmd.BillingAddress != nil {
		if err := validateAddress("billing", *cmd.BillingAddress); err != nil {
			return err
		}
	}
	return nil
}

func validateAddress(kind string, addr models.Address) error {
	var missing []string
	if strings.TrimSpace(addr.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.ZipCode) == "" {
		missing = append(missing, "zipcode")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s address is missing %s", ErrValidation, kind, strings.Join(missing, ", "))
	}
	return nil
}

func canTransition(current, target models.OrderStatus) bool {
	if current == target {
		return true
	}
	if target == models.OrderStatusCancelled {
		return cancellableStatuses[current]
	}
	from, ok := orderProgression[current]
	if !ok {
		return false
	}
	to, ok := orderProgression[target]
	if !ok {
		return false
	}
	return to > from
}

func normalisePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func cloneAddress(addr *models.Address) *models.Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}
