package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/product"
)

const instrumentationName = "github.com/xenking/golden-feast/internal/domain/order"

// Order creation sources reported by the orders.created counter.
const (
	sourceDirect  = "direct"
	sourceTest    = "test"
	sourceSession = "session"
)

// TransitionResult is the outcome of a status change.
type TransitionResult struct {
	Order  *Order
	Notice UpdateNotice
}

// Grouped maps every status to the orders currently in it.
type Grouped map[Status][]Order

// Service implements order creation, ingestion, transitions and queries.
type Service struct {
	orders   Repository
	products product.Repository
	notifier Notifier

	now    func() time.Time
	newID  func() string
	tracer trace.Tracer

	created     metric.Int64Counter
	transitions metric.Int64Counter
	duplicates  metric.Int64Counter
}

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	now            func() time.Time
	newID          func() string
}

// Option configures a Service.
type Option func(*options)

// WithTracerProvider sets the tracer provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for service counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

// NewService creates an order Service. A nil notifier discards events.
func NewService(orders Repository, products product.Repository, notifier Notifier, opts ...Option) (*Service, error) {
	o := options{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	meter := o.meterProvider.Meter(instrumentationName)
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created, by source"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	transitions, err := meter.Int64Counter("orders.transitions",
		metric.WithDescription("Order status transitions, by target status"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.transitions counter")
	}
	duplicates, err := meter.Int64Counter("orders.ingest.duplicates",
		metric.WithDescription("Payment sessions ingested more than once"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.ingest.duplicates counter")
	}

	return &Service{
		orders:      orders,
		products:    products,
		notifier:    notifier,
		now:         o.now,
		newID:       o.newID,
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		created:     created,
		transitions: transitions,
		duplicates:  duplicates,
	}, nil
}

// Create validates d and persists a new pending order, then announces it to
// the admin room.
func (s *Service) Create(ctx context.Context, d Draft) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer span.End()

	method := d.PaymentMethod
	if method == "" {
		method = MethodStripe
	}
	o, err := s.build(d, StatusPending, PaymentPending, method)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceDirect)))

	s.announce(ctx, o)
	return o, nil
}

// CreateTestOrder persists an already paid order without going through the
// payment provider.
func (s *Service) CreateTestOrder(ctx context.Context, d Draft) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateTestOrder")
	defer span.End()

	o, err := s.build(d, StatusPaidTest, PaymentPaid, MethodTest)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create test order")
	}
	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceTest)))

	s.announce(ctx, o)
	return o, nil
}

func (s *Service) build(d Draft, status Status, paid PaymentStatus, method string) (*Order, error) {
	if err := ValidateItems(d.Items); err != nil {
		return nil, err
	}
	total, err := ResolveTotal(d.Total, d.Items)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &Order{
		ID:                s.newID(),
		CustomerID:        d.CustomerID,
		Items:             append([]Item(nil), d.Items...),
		Total:             total,
		Status:            status,
		PaymentStatus:     paid,
		PaymentMethod:     method,
		Customer:          d.Customer,
		Shipping:          d.Shipping,
		AdminNotification: true,
		Metadata:          d.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Get returns the order with item display names resolved.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	if id == "" {
		return nil, ErrMissingOrderID
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	s.resolveNames(ctx, o)
	return o, nil
}

// List returns orders matching f, newest first, with item names resolved.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	s.resolveNamesAll(ctx, orders)
	return orders, nil
}

// ListGrouped returns all orders bucketed by status. Every status has a
// bucket, possibly empty.
func (s *Service) ListGrouped(ctx context.Context) (Grouped, error) {
	orders, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	g := make(Grouped, len(Statuses))
	for _, st := range Statuses {
		g[st] = []Order{}
	}
	for _, o := range orders {
		g[o.Status] = append(g[o.Status], o)
	}
	return g, nil
}

// ListByCustomer returns the order history of a customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	if customerID == "" {
		return nil, ErrMissingCustomerID
	}
	return s.List(ctx, Filter{CustomerID: customerID})
}

// AdminNotifications returns orders the admin has not acted on yet.
func (s *Service) AdminNotifications(ctx context.Context) ([]Order, error) {
	return s.List(ctx, Filter{AdminNotificationPending: true})
}

// CustomerNotifications returns the pending update notices of a customer.
func (s *Service) CustomerNotifications(ctx context.Context, customerID string) ([]UpdateNotice, error) {
	if customerID == "" {
		return nil, ErrMissingCustomerID
	}
	orders, err := s.List(ctx, Filter{CustomerID: customerID, CustomerNotificationPending: true})
	if err != nil {
		return nil, err
	}
	out := make([]UpdateNotice, len(orders))
	for i := range orders {
		out[i] = updateNotice(&orders[i])
	}
	return out, nil
}

// AcknowledgeCustomerNotification clears the pending customer notification of
// an order owned by customerID.
func (s *Service) AcknowledgeCustomerNotification(ctx context.Context, id, customerID string) (*Order, error) {
	if id == "" {
		return nil, ErrMissingOrderID
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	// Foreign orders look missing to the caller.
	if customerID == "" || o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	cleared := false
	o, err = s.orders.Update(ctx, id, Update{CustomerNotification: &cleared})
	if err != nil {
		return nil, errors.Wrap(err, "acknowledge")
	}
	return o, nil
}

// Transition sets the status of an order and notifies its customer. A
// non-empty comment replaces the stored admin comment.
func (s *Service) Transition(ctx context.Context, id, status, comment string) (*TransitionResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.Transition",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("order.status", status)),
	)
	defer span.End()

	if id == "" {
		return nil, ErrMissingOrderID
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	adminPending, customerPending := false, true
	u := Update{
		Status:               &st,
		AdminNotification:    &adminPending,
		CustomerNotification: &customerPending,
	}
	if comment != "" {
		u.AdminComment = &comment
	}

	o, err := s.orders.Update(ctx, id, u)
	if err != nil {
		return nil, errors.Wrapf(err, "transition %s", id)
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(st))))

	s.resolveNames(ctx, o)
	notice := updateNotice(o)
	if o.CustomerID != "" {
		s.notifier.OrderUpdated(ctx, notice)
	}

	zctx.From(ctx).Info("Order transitioned",
		zap.String("order_id", o.ID),
		zap.String("status", string(st)),
	)
	return &TransitionResult{Order: o, Notice: notice}, nil
}

func (s *Service) announce(ctx context.Context, o *Order) {
	s.resolveNames(ctx, o)
	s.notifier.NewOrder(ctx, newOrderNotice(o))
}

func (s *Service) resolveNames(ctx context.Context, o *Order) {
	applyNames(o.Items, s.lookupNames(ctx, o.Items))
}

// resolveNamesAll resolves names for a batch of orders with one catalog query.
func (s *Service) resolveNamesAll(ctx context.Context, orders []Order) {
	var items []Item
	for _, o := range orders {
		items = append(items, o.Items...)
	}
	names := s.lookupNames(ctx, items)
	for i := range orders {
		applyNames(orders[i].Items, names)
	}
}

// lookupNames fetches catalog names for the referenced products. Lookup
// failures are logged and the stored names are kept.
func (s *Service) lookupNames(ctx context.Context, items []Item) map[string]string {
	if s.products == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			continue
		}
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	if len(ids) == 0 {
		return nil
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		zctx.From(ctx).Warn("Resolve item names", zap.Error(err))
		return nil
	}
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}
	return names
}

// applyNames prefers the catalog name, then the stored line name, then
// DefaultItemName.
func applyNames(items []Item, names map[string]string) {
	for i := range items {
		if n := names[items[i].ProductID]; n != "" {
			items[i].Name = n
			continue
		}
		if items[i].Name == "" {
			items[i].Name = DefaultItemName
		}
	}
}
