package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/pricing"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/stock"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

var orderNumberRe = regexp.MustCompile(`^ORD-\d{14}-[0-9a-f]{6}$`)

type outboxRecorder interface {
	domain.OutboxRepository
	AllPending() []domain.OutboxMessage
}

type env struct {
	service *Service
	orders  domain.OrderRepository
	catalog domain.CatalogAccessor
	outbox  outboxRecorder
}

func newEnv(t *testing.T, products ...domain.Product) *env {
	t.Helper()

	if len(products) == 0 {
		products = []domain.Product{
			{ID: "p-1", Name: "Widget", PriceMinor: 55000, Stock: 10},
			{ID: "p-2", Name: "Gadget", PriceMinor: 20000, Stock: 10},
		}
	}

	catalog := memory.NewCatalog(products...)
	orders := memory.NewOrderRepository()
	users := memory.NewUserDirectory("u-1")
	outbox := memory.NewOutboxRepository()
	manager := stock.NewManager(catalog, nil, nil)
	machine := lifecycle.NewMachine(orders, manager, nil, nil)
	engine := pricing.NewEngine(pricing.DefaultConfig())

	return &env{
		service: NewService(orders, catalog, users, manager, engine, machine, outbox, nil, nil),
		orders:  orders,
		catalog: catalog,
		outbox:  outbox,
	}
}

func validInput() CreateOrderInput {
	return CreateOrderInput{
		UserID:         "u-1",
		Items:          []CreateOrderItem{{ProductID: "p-1", Qty: 2}},
		ShippingMethod: domain.ShippingMethodStandard,
		PaymentMethod:  domain.PaymentMethodCard,
		ShippingAddress: domain.Address{
			Line1: "1 Main st", City: "Springfield", PostalCode: "00001", Country: "US",
		},
	}
}

func TestCreateOrder_ReferenceScenario(t *testing.T) {
	e := newEnv(t)

	order, err := e.service.CreateOrder(validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if !orderNumberRe.MatchString(order.Number) {
		t.Fatalf("order number %q does not match expected format", order.Number)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}
	if order.SubtotalMinor != 110000 {
		t.Fatalf("subtotal = %d, want 110000", order.SubtotalMinor)
	}
	if order.ShippingMinor != 0 {
		t.Fatalf("shipping = %d, want 0 (free above threshold)", order.ShippingMinor)
	}
	if order.TaxMinor != 17600 {
		t.Fatalf("tax = %d, want 17600", order.TaxMinor)
	}
	if order.TotalMinor != 127600 {
		t.Fatalf("total = %d, want 127600", order.TotalMinor)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusPending {
		t.Fatalf("unexpected history: %+v", order.StatusHistory)
	}

	product, _ := e.catalog.GetProduct("p-1")
	if product.Stock != 8 {
		t.Fatalf("stock = %d, want 8", product.Stock)
	}
	if product.SalesCount != 2 {
		t.Fatalf("sales count = %d, want 2", product.SalesCount)
	}

	stored, err := e.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("Get persisted order: %v", err)
	}
	if stored.Items[0].Name != "Widget" || stored.Items[0].UnitPriceMinor != 55000 {
		t.Fatalf("item snapshot lost: %+v", stored.Items[0])
	}

	events := e.outbox.AllPending()
	if len(events) != 1 || events[0].EventType != "order.created" {
		t.Fatalf("outbox = %+v, want single order.created", events)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["order_id"] != order.ID {
		t.Fatalf("payload order_id = %v, want %s", payload["order_id"], order.ID)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name   string
		mutate func(*CreateOrderInput)
	}{
		{"empty user", func(in *CreateOrderInput) { in.UserID = "" }},
		{"no items", func(in *CreateOrderInput) { in.Items = nil }},
		{"zero qty", func(in *CreateOrderInput) { in.Items[0].Qty = 0 }},
		{"empty product id", func(in *CreateOrderInput) { in.Items[0].ProductID = "" }},
		{"bad shipping method", func(in *CreateOrderInput) { in.ShippingMethod = "drone" }},
		{"bad payment method", func(in *CreateOrderInput) { in.PaymentMethod = "barter" }},
		{"negative discount", func(in *CreateOrderInput) { in.DiscountMinor = -1 }},
		{"empty shipping address", func(in *CreateOrderInput) { in.ShippingAddress = domain.Address{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := e.service.CreateOrder(in); !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	// Отклонённые запросы не трогают сток и не создают события.
	product, _ := e.catalog.GetProduct("p-1")
	if product.Stock != 10 {
		t.Fatalf("stock = %d, want 10 untouched", product.Stock)
	}
	if events := e.outbox.AllPending(); len(events) != 0 {
		t.Fatalf("outbox should be empty, got %d events", len(events))
	}
}

func TestCreateOrder_UnknownUserAndProduct(t *testing.T) {
	e := newEnv(t)

	in := validInput()
	in.UserID = "ghost"
	if _, err := e.service.CreateOrder(in); !domain.IsNotFound(err) {
		t.Fatalf("unknown user: expected not_found, got %v", err)
	}

	in = validInput()
	in.Items = []CreateOrderItem{{ProductID: "p-missing", Qty: 1}}
	if _, err := e.service.CreateOrder(in); !domain.IsNotFound(err) {
		t.Fatalf("unknown product: expected not_found, got %v", err)
	}

	product, _ := e.catalog.GetProduct("p-1")
	if product.Stock != 10 {
		t.Fatalf("stock = %d, want 10 untouched", product.Stock)
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	e := newEnv(t, domain.Product{ID: "p-1", Name: "Widget", PriceMinor: 55000, Stock: 1})

	in := validInput()
	_, err := e.service.CreateOrder(in)
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var domainErr *domain.Error
	if !errors.As(err, &domainErr) || domainErr.Details["product_id"] != "p-1" {
		t.Fatalf("conflict should name the product: %v", err)
	}

	product, _ := e.catalog.GetProduct("p-1")
	if product.Stock != 1 {
		t.Fatalf("stock = %d, want 1 untouched", product.Stock)
	}
	orders, err := e.service.ListUserOrders("u-1", domain.ListFilter{})
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("no order should be persisted, got %d", len(orders))
	}
	if events := e.outbox.AllPending(); len(events) != 0 {
		t.Fatalf("outbox should be empty, got %d events", len(events))
	}
}

// failingCreateRepo отклоняет Create указанное число раз.
type failingCreateRepo struct {
	domain.OrderRepository
	failures int
	err      error
	calls    int
}

func (r *failingCreateRepo) Create(order domain.Order) error {
	r.calls++
	if r.calls <= r.failures {
		return r.err
	}
	return r.OrderRepository.Create(order)
}

func TestCreateOrder_PersistFailureReleasesReservation(t *testing.T) {
	e := newEnv(t)
	repo := &failingCreateRepo{
		OrderRepository: e.orders,
		failures:        1,
		err:             domain.NewInternal("storage_down", "storage unavailable", nil),
	}
	manager := stock.NewManager(e.catalog, nil, nil)
	machine := lifecycle.NewMachine(repo, manager, nil, nil)
	service := NewService(repo, e.catalog, memory.NewUserDirectory("u-1"), manager,
		pricing.NewEngine(pricing.DefaultConfig()), machine, e.outbox, nil, nil)

	if _, err := service.CreateOrder(validInput()); domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}

	product, _ := e.catalog.GetProduct("p-1")
	if product.Stock != 10 {
		t.Fatalf("stock = %d, want 10 after released reservation", product.Stock)
	}
	if product.SalesCount != 0 {
		t.Fatalf("sales count = %d, want 0", product.SalesCount)
	}
}

func TestCreateOrder_RetriesOnNumberCollision(t *testing.T) {
	e := newEnv(t)
	repo := &failingCreateRepo{
		OrderRepository: e.orders,
		failures:        2,
		err:             domain.ErrOrderNumberTaken,
	}
	manager := stock.NewManager(e.catalog, nil, nil)
	machine := lifecycle.NewMachine(repo, manager, nil, nil)
	service := NewService(repo, e.catalog, memory.NewUserDirectory("u-1"), manager,
		pricing.NewEngine(pricing.DefaultConfig()), machine, e.outbox, nil, nil)

	order, err := service.CreateOrder(validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if repo.calls != 3 {
		t.Fatalf("Create calls = %d, want 3", repo.calls)
	}
	if !orderNumberRe.MatchString(order.Number) {
		t.Fatalf("order number %q does not match expected format", order.Number)
	}
}

func TestCreateOrder_ConcurrentContention(t *testing.T) {
	const workers = 10
	e := newEnv(t, domain.Product{ID: "p-1", Name: "Widget", PriceMinor: 55000, Stock: 3})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := validInput()
			in.Items = []CreateOrderItem{{ProductID: "p-1", Qty: 1}}
			_, err := e.service.CreateOrder(in)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("succeeded = %d, want 3", succeeded)
	}
	if conflicts != workers-3 {
		t.Fatalf("conflicts = %d, want %d", conflicts, workers-3)
	}

	product, _ := e.catalog.GetProduct("p-1")
	if product.Stock != 0 {
		t.Fatalf("final stock = %d, want 0", product.Stock)
	}
	orders, err := e.service.ListUserOrders("u-1", domain.ListFilter{})
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("persisted orders = %d, want 3", len(orders))
	}
	numbers := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		numbers[o.Number] = struct{}{}
	}
	if len(numbers) != 3 {
		t.Fatalf("order numbers are not unique: %v", numbers)
	}
}

func TestListUserOrders(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 3; i++ {
		in := validInput()
		in.Items = []CreateOrderItem{{ProductID: "p-2", Qty: int32(i + 1)}}
		if _, err := e.service.CreateOrder(in); err != nil {
			t.Fatalf("CreateOrder %d: %v", i, err)
		}
	}

	orders, err := e.service.ListUserOrders("u-1", domain.ListFilter{})
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("len = %d, want 3", len(orders))
	}

	if _, err := e.service.ListUserOrders("ghost", domain.ListFilter{}); !domain.IsNotFound(err) {
		t.Fatalf("unknown user: expected not_found, got %v", err)
	}

	bad := domain.OrderStatus("teleported")
	if _, err := e.service.ListUserOrders("u-1", domain.ListFilter{Status: &bad}); !domain.IsValidation(err) {
		t.Fatalf("bad status filter: expected validation, got %v", err)
	}
}

func TestCancelOrder_RestoresStockAndEmitsEvent(t *testing.T) {
	e := newEnv(t)

	created, err := e.service.CreateOrder(validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	cancelled, err := e.service.CancelOrder(created.ID, "customer", "changed my mind")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	product, _ := e.catalog.GetProduct("p-1")
	if product.Stock != 10 {
		t.Fatalf("stock = %d, want 10 restored", product.Stock)
	}

	var sawCancelEvent bool
	for _, event := range e.outbox.AllPending() {
		if event.EventType == "order.canceled" && event.AggregateID == created.ID {
			sawCancelEvent = true
		}
	}
	if !sawCancelEvent {
		t.Fatal("expected order.canceled event in outbox")
	}

	if _, err := e.service.CancelOrder(created.ID, "customer", "again"); !domain.IsConflict(err) {
		t.Fatalf("second cancel: expected conflict, got %v", err)
	}
}

func TestTransitionStatus_EmitsEvent(t *testing.T) {
	e := newEnv(t)

	created, err := e.service.CreateOrder(validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	updated, err := e.service.TransitionStatus(created.ID, domain.OrderStatusConfirmed, "ops", "")
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", updated.Status)
	}

	var sawStatusEvent bool
	for _, event := range e.outbox.AllPending() {
		if event.EventType == "order.status_changed" {
			sawStatusEvent = true
		}
	}
	if !sawStatusEvent {
		t.Fatal("expected order.status_changed event in outbox")
	}
}

func TestSetPaymentStatus(t *testing.T) {
	e := newEnv(t)

	created, err := e.service.CreateOrder(validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	updated, err := e.service.SetPaymentStatus(created.ID, domain.PaymentStatusPaid)
	if err != nil {
		t.Fatalf("SetPaymentStatus: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", updated.PaymentStatus)
	}

	// Повторная установка того же статуса не создаёт нового события.
	before := len(e.outbox.AllPending())
	if _, err := e.service.SetPaymentStatus(created.ID, domain.PaymentStatusPaid); err != nil {
		t.Fatalf("repeat SetPaymentStatus: %v", err)
	}
	if after := len(e.outbox.AllPending()); after != before {
		t.Fatalf("repeated update emitted an event: %d -> %d", before, after)
	}

	if _, err := e.service.SetPaymentStatus(created.ID, "iou"); !domain.IsValidation(err) {
		t.Fatalf("invalid payment status: expected validation, got %v", err)
	}
	if _, err := e.service.SetPaymentStatus("missing", domain.PaymentStatusPaid); !domain.IsNotFound(err) {
		t.Fatalf("unknown order: expected not_found, got %v", err)
	}
}

func TestGetOrderByNumber(t *testing.T) {
	e := newEnv(t)

	created, err := e.service.CreateOrder(validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	got, err := e.service.GetOrderByNumber(created.Number)
	if err != nil {
		t.Fatalf("GetOrderByNumber: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("got order %s, want %s", got.ID, created.ID)
	}

	if _, err := e.service.GetOrderByNumber(fmt.Sprintf("ORD-%s", "unknown")); !domain.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
}
