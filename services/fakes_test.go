package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"go-freshmart/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memProducts struct {
	mu       sync.Mutex
	items    map[primitive.ObjectID]models.Product
	adjustFn func(id primitive.ObjectID, delta int) error
}

func newMemProducts() *memProducts {
	return &memProducts{items: map[primitive.ObjectID]models.Product{}}
}

func (m *memProducts) add(name string, price float64, stock *int) primitive.ObjectID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := primitive.NewObjectID()
	m.items[id] = models.Product{ID: id, Name: name, Price: price, Stock: stock, Images: []string{name + ".jpg"}}
	return id
}

func (m *memProducts) stock(id primitive.ObjectID) *int {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.items[id]
	if p.Stock == nil {
		return nil
	}
	v := *p.Stock
	return &v
}

func (m *memProducts) FindByID(_ context.Context, id primitive.ObjectID) (models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return models.Product{}, fmt.Errorf("%w: product %s", ErrNotFound, id.Hex())
	}
	return p, nil
}

func (m *memProducts) AdjustStock(_ context.Context, id primitive.ObjectID, delta int) (bool, error) {
	if m.adjustFn != nil {
		if err := m.adjustFn(id, delta); err != nil {
			return false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok || p.Stock == nil || *p.Stock+delta < 0 {
		return false, nil
	}
	next := *p.Stock + delta
	p.Stock = &next
	m.items[id] = p
	return true, nil
}

type memOrders struct {
	mu       sync.Mutex
	items    map[primitive.ObjectID]models.Order
	insertFn func(models.Order) error
}

func newMemOrders() *memOrders {
	return &memOrders{items: map[primitive.ObjectID]models.Order{}}
}

func (m *memOrders) Insert(_ context.Context, order *models.Order) error {
	if m.insertFn != nil {
		if err := m.insertFn(*order); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[order.ID] = *order
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id.Hex())
	}
	return o, nil
}

func (m *memOrders) List(_ context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.items {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && o.OrderStatus != filter.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber > out[j].OrderNumber })
	total := int64(len(out))
	start := min(int(filter.Skip), len(out))
	end := len(out)
	if filter.Limit > 0 {
		end = min(start+int(filter.Limit), len(out))
	}
	return out[start:end], total, nil
}

func (m *memOrders) Update(_ context.Context, order models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[order.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, order.ID.Hex())
	}
	if stored.Version != order.Version {
		return fmt.Errorf("%w: order %s", ErrConflict, order.OrderNumber)
	}
	order.Version++
	m.items[order.ID] = order
	return nil
}

type memCounters struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memCounters) Next(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]int64{}
	}
	m.values[name]++
	return m.values[name], nil
}

type memSubscriptions struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]models.Subscription
	// beforeUpdate runs once at the start of the next UpdateIfStatus.
	beforeUpdate func()
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{items: map[primitive.ObjectID]models.Subscription{}}
}

func (m *memSubscriptions) put(sub models.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sub.ID] = sub
}

func (m *memSubscriptions) get(id primitive.ObjectID) models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *memSubscriptions) Insert(_ context.Context, sub *models.Subscription) error {
	m.put(*sub)
	return nil
}

func (m *memSubscriptions) FindByID(_ context.Context, id primitive.ObjectID) (models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return models.Subscription{}, fmt.Errorf("%w: subscription %s", ErrNotFound, id.Hex())
	}
	return s, nil
}

func (m *memSubscriptions) List(_ context.Context, filter SubscriptionFilter) ([]models.Subscription, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, s := range m.items {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Type != "" && s.Type != filter.Type {
			continue
		}
		if filter.Email != "" && !strings.EqualFold(s.CustomerDetails.Email, filter.Email) {
			continue
		}
		out = append(out, s)
	}
	return out, int64(len(out)), nil
}

func (m *memSubscriptions) UpdateIfStatus(_ context.Context, sub models.Subscription, expected models.SubscriptionStatus) error {
	if hook := m.takeBeforeUpdate(); hook != nil {
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[sub.ID]
	if !ok {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, sub.ID.Hex())
	}
	if stored.Status != expected || stored.Version != sub.Version {
		return fmt.Errorf("%w: subscription %s", ErrConflict, sub.ID.Hex())
	}
	sub.Version++
	m.items[sub.ID] = sub
	return nil
}

// takeBeforeUpdate hands out the beforeUpdate hook once.
func (m *memSubscriptions) takeBeforeUpdate() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	hook := m.beforeUpdate
	m.beforeUpdate = nil
	return hook
}

func (m *memSubscriptions) ExpireEnded(_ context.Context, cutoff time.Time, now time.Time) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for id, s := range m.items {
		if (s.Status == models.SubscriptionActive || s.Status == models.SubscriptionPaused) && s.EndDate.Before(cutoff) {
			s.Status = models.SubscriptionExpired
			s.UpdatedAt = now
			s.Version++
			m.items[id] = s
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubscriptions) ListDue(_ context.Context, from, to time.Time) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, s := range m.items {
		if s.Status == models.SubscriptionActive && !s.NextDeliveryDate.Before(from) && !s.NextDeliveryDate.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubscriptions) Aggregate(_ context.Context) (map[models.SubscriptionStatus]StatusAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[models.SubscriptionStatus]StatusAggregate{}
	for _, s := range m.items {
		agg := out[s.Status]
		agg.Count++
		agg.Amount += s.TotalAmount
		out[s.Status] = agg
	}
	return out, nil
}

type memStores struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]models.StoreProfile
}

func (m *memStores) FindByID(_ context.Context, id primitive.ObjectID) (models.StoreProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return models.StoreProfile{}, fmt.Errorf("%w: store %s", ErrNotFound, id.Hex())
	}
	return p, nil
}

func (m *memStores) FindActive(_ context.Context) (models.StoreProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.Active {
			return p, nil
		}
	}
	return models.StoreProfile{}, fmt.Errorf("%w: active store", ErrNotFound)
}

func (m *memStores) DeactivateAllExcept(_ context.Context, id primitive.ObjectID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.items {
		if key != id && p.Active {
			p.Active = false
			p.UpdatedAt = now
			m.items[key] = p
		}
	}
	return nil
}

func (m *memStores) SetActive(_ context.Context, id primitive.ObjectID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return fmt.Errorf("%w: store %s", ErrNotFound, id.Hex())
	}
	p.Active = true
	p.UpdatedAt = now
	m.items[id] = p
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func (n *recordingNotifier) references(eventType string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e.Reference)
		}
	}
	return out
}

func (n *recordingNotifier) has(eventType string) bool {
	for _, t := range n.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

// txRecorder counts RunInTx calls and can fail the callback's result.
type txRecorder struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (u *txRecorder) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func (u *txRecorder) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	if err := fn(ctx); err != nil {
		return err
	}
	return u.fail
}

var errBoom = errors.New("boom")

func intPtr(v int) *int { return &v }

var (
	adminPrincipal = models.Principal{ID: primitive.NewObjectID(), Email: "admin@freshmart.test", Role: models.RoleAdmin}
	alicePrincipal = models.Principal{ID: primitive.NewObjectID(), Email: "alice@example.com", Role: models.RoleUser}
	bobPrincipal   = models.Principal{ID: primitive.NewObjectID(), Email: "bob@example.com", Role: models.RoleUser}
)

func testAddress() models.Address {
	return models.Address{FullName: "Alice", Phone: "555-0100", Street: "1 Market St", City: "Springfield", State: "OR", ZipCode: "97477"}
}
