package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const orderNumberConstraint = "orders_order_number_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives checkout and the order and delivery state machines.
type Service interface {
	Place(ctx context.Context, actor types.Actor, req PlaceOrderRequest) (*OrderDTO, error)
	Get(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, actor types.Actor, q ListQuery) ([]OrderDTO, types.PaginationMeta, error)
	UpdateStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, req UpdateStatusRequest) (*OrderDTO, error)
	Cancel(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*OrderDTO, error)
	AssignAgent(ctx context.Context, actor types.Actor, orderID, agentID uuid.UUID) (*OrderDTO, error)
	UpdateDeliveryStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, req DeliveryUpdateRequest) (*OrderDTO, error)
	Tracking(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*TrackingDTO, error)
	ReportIssue(ctx context.Context, actor types.Actor, orderID uuid.UUID, req IssueRequest) (*DeliveryStatusDTO, error)
	ResolveIssue(ctx context.Context, actor types.Actor, statusID uuid.UUID, req ResolveIssueRequest) (*DeliveryStatusDTO, error)
	SubmitFeedback(ctx context.Context, actor types.Actor, orderID uuid.UUID, req FeedbackRequest) (*DeliveryStatusDTO, error)
	VendorStats(ctx context.Context, vendorID uuid.UUID) (*VendorStatsDTO, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Tx             txRunner
	Orders         *Repository
	Products       *product.Repository
	Users          *users.Repository
	Pricing        Pricing
	NumberAttempts int
	Metrics        *metrics.MarketplaceMetrics
	Logger         *logger.Logger
}

type service struct {
	tx        txRunner
	orders    *Repository
	products  *product.Repository
	users     *users.Repository
	pricing   Pricing
	attempts  int
	metrics   *metrics.MarketplaceMetrics
	logg      *logger.Logger
	now       func() time.Time
	newNumber func(time.Time) (string, error)
}

// repos is the set of repositories bound to one transaction.
type repos struct {
	orders   *Repository
	products *product.Repository
	users    *users.Repository
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	attempts := params.NumberAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &service{
		tx:        params.Tx,
		orders:    params.Orders,
		products:  params.Products,
		users:     params.Users,
		pricing:   params.Pricing,
		attempts:  attempts,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       func() time.Time { return time.Now().UTC() },
		newNumber: NewOrderNumber,
	}, nil
}

func (s *service) bind(tx *gorm.DB) repos {
	return repos{
		orders:   s.orders.WithTx(tx),
		products: s.products.WithTx(tx),
		users:    s.users.WithTx(tx),
	}
}

// Place snapshots the requested products into a new pending order. Every line
// is checked before anything is written; stock is validated, not reserved.
func (s *service) Place(ctx context.Context, actor types.Actor, req PlaceOrderRequest) (*OrderDTO, error) {
	if !actor.Is(enums.RoleCustomer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can place orders")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	method, err := enums.ParsePaymentMethod(strings.TrimSpace(req.PaymentMethod))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	lines, vendorID, err := s.snapshotLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Subtotal)
	}
	quote := s.pricing.Quote(subtotal)
	now := s.now()

	order := &models.Order{
		CustomerID:      actor.UserID,
		VendorID:        vendorID,
		Items:           lines,
		ShippingAddress: req.ShippingAddress.Normalize(),
		PaymentMethod:   method,
		PaymentStatus:   enums.PaymentStatusPending,
		Subtotal:        quote.Subtotal,
		Tax:             quote.Tax,
		ShippingCost:    quote.ShippingCost,
		Discount:        quote.Discount,
		Total:           quote.Total,
		OrderStatus:     enums.OrderStatusPending,
		StatusHistory: []models.OrderStatusEvent{{
			Status:    enums.OrderStatusPending,
			Note:      "order placed",
			ChangedBy: actor.UserID,
			ChangedAt: now,
		}},
		Notes: trimmedOrNil(req.Notes),
	}

	if err := s.insertWithNumber(ctx, order); err != nil {
		return nil, err
	}
	s.metrics.OrderPlaced()
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order placed")
	}
	return FromModel(order), nil
}

// snapshotLines re-reads every product, merges repeated (product, variants)
// lines and collects every problem before failing.
func (s *service) snapshotLines(ctx context.Context, items []PlaceOrderItem) ([]models.OrderLineItem, uuid.UUID, error) {
	var (
		errs      error
		vendorID  uuid.UUID
		lines     []models.OrderLineItem
		requested = map[uuid.UUID]int{}
		loaded    = map[uuid.UUID]*models.Product{}
	)

	for i, item := range items {
		if item.Quantity < 1 {
			errs = multierr.Append(errs, pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be at least 1", i+1))
			continue
		}
		p, ok := loaded[item.ProductID]
		if !ok {
			found, err := s.products.FindByID(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					errs = multierr.Append(errs, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", item.ProductID))
					continue
				}
				return nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
			}
			p = found
			loaded[item.ProductID] = p
		}
		if !p.IsPurchasable() {
			errs = multierr.Append(errs, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is not available for purchase", p.Name))
			continue
		}
		variants := item.Variants.Normalize()
		if err := p.Variants.Validate(variants); err != nil {
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("%s: %s", p.Name, err)))
			continue
		}
		if vendorID == uuid.Nil {
			vendorID = p.VendorID
		} else if p.VendorID != vendorID && s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("order mixes vendors; stamping first vendor %s", vendorID))
		}
		requested[p.ID] += item.Quantity

		merged := false
		for j := range lines {
			if lines[j].ProductID == p.ID && lines[j].Variants.Equal(variants) {
				lines[j].Quantity += item.Quantity
				lines[j].Subtotal = lines[j].Price.Mul(decimal.NewFromInt(int64(lines[j].Quantity)))
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		lines = append(lines, models.OrderLineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.PrimaryImage(),
			Price:     p.Price,
			Quantity:  item.Quantity,
			Variants:  variants,
			Subtotal:  p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}

	for productID, qty := range requested {
		p := loaded[productID]
		if p.Stock < qty {
			errs = multierr.Append(errs, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "only %d of %s in stock, %d requested", p.Stock, p.Name, qty))
		}
	}
	if errs != nil {
		return nil, uuid.Nil, pkgerrors.Aggregate(errs, "order items are invalid")
	}
	return lines, vendorID, nil
}

// insertWithNumber generates order numbers until one is free. A collision that
// slips past the existence check is caught by the unique index and retried.
func (s *service) insertWithNumber(ctx context.Context, order *models.Order) error {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		number, err := s.newNumber(s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		taken, err := s.orders.NumberExists(ctx, number)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check order number")
		}
		if taken {
			continue
		}
		order.OrderNumber = number
		err = s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if db.IsUniqueViolation(err, orderNumberConstraint) {
			order.ID = uuid.Nil
			continue
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert order")
	}
	return pkgerrors.Newf(pkgerrors.CodeInternal, "could not allocate an order number after %d attempts", s.attempts)
}

func (s *service) Get(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this order")
	}
	return FromModel(order), nil
}

// List is scoped by role: customers see their orders, vendors their store's,
// delivery agents their assignments and admins everything.
func (s *service) List(ctx context.Context, actor types.Actor, q ListQuery) ([]OrderDTO, types.PaginationMeta, error) {
	var filter ListFilter
	userID := actor.UserID
	switch actor.Role {
	case enums.RoleCustomer:
		filter.CustomerID = &userID
	case enums.RoleVendor:
		filter.VendorID = &userID
	case enums.RoleDeliveryAgent:
		filter.AgentID = &userID
	case enums.RoleAdmin:
	default:
		return nil, types.PaginationMeta{}, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to list orders")
	}
	if status := strings.TrimSpace(q.Status); status != "" {
		parsed, err := enums.ParseOrderStatus(status)
		if err != nil {
			return nil, types.PaginationMeta{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		filter.Status = parsed
	}

	page := pagination.Params{Page: q.Page, Limit: q.Limit}
	rows, total, err := s.orders.List(ctx, filter, page)
	if err != nil {
		return nil, types.PaginationMeta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list orders")
	}
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, page.Meta(total), nil
}

// UpdateStatus moves the order along the status table. Delivered is handed to
// markDelivered, the only path that completes an order.
func (s *service) UpdateStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, req UpdateStatusRequest) (*OrderDTO, error) {
	next, err := enums.ParseOrderStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Is(enums.RoleAdmin) && !(actor.Is(enums.RoleVendor) && actor.Owns(order.VendorID)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the order's vendor or an admin can update its status")
	}

	note := strings.TrimSpace(req.Notes)
	if next == enums.OrderStatusDelivered {
		return s.markDelivered(ctx, orderID, actor, note, nil, nil)
	}
	updated, err := s.transition(ctx, orderID, actor, next, note, func(ctx context.Context, r repos, order *models.Order, now time.Time) error {
		return s.closeOut(ctx, r, order, next, note, now)
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

func (s *service) Cancel(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*OrderDTO, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Is(enums.RoleCustomer) || !actor.Owns(order.CustomerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the customer who placed the order can cancel it")
	}
	if order.OrderStatus == enums.OrderStatusCancelled {
		return FromModel(order), nil
	}
	if !order.OrderStatus.IsCustomerCancellable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "orders that are %s can no longer be cancelled", order.OrderStatus)
	}

	note := strings.TrimSpace(reason)
	updated, err := s.transition(ctx, orderID, actor, enums.OrderStatusCancelled, note, func(ctx context.Context, r repos, order *models.Order, now time.Time) error {
		if !order.OrderStatus.IsCustomerCancellable() && order.OrderStatus != enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled")
		}
		return s.closeOut(ctx, r, order, enums.OrderStatusCancelled, note, now)
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

// closeOut stamps cancellation fields and frees a courier still holding the
// order when it is cancelled or returned.
func (s *service) closeOut(ctx context.Context, r repos, order *models.Order, next enums.OrderStatus, note string, now time.Time) error {
	if next == enums.OrderStatusCancelled {
		order.CancelledAt = &now
		order.CancelReason = trimmedOrNil(note)
	}
	if next != enums.OrderStatusCancelled && next != enums.OrderStatusReturned {
		return nil
	}
	if order.DeliveryAgentID == nil || (order.DeliveryStatus != nil && order.DeliveryStatus.IsTerminal()) {
		return nil
	}
	return s.releaseAgent(ctx, r, *order.DeliveryAgentID, order.ID, false)
}

// transition applies one order-status move inside a transaction. apply runs
// after the status and history are updated and before the guarded write.
func (s *service) transition(ctx context.Context, orderID uuid.UUID, actor types.Actor, next enums.OrderStatus, note string, apply func(ctx context.Context, r repos, order *models.Order, now time.Time) error) (*models.Order, error) {
	var (
		out     *models.Order
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.bind(tx)
		order, err := loadOrder(ctx, r.orders, orderID)
		if err != nil {
			return err
		}
		if order.OrderStatus == next {
			out = order
			return nil
		}
		if !order.OrderStatus.CanTransitionTo(next) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot move from %s to %s", order.OrderStatus, next)
		}
		prevStatus, prevDelivery := order.OrderStatus, copyDelivery(order.DeliveryStatus)

		now := s.now()
		order.OrderStatus = next
		order.StatusHistory = append(order.StatusHistory, models.OrderStatusEvent{
			Status:    next,
			Note:      note,
			ChangedBy: actor.UserID,
			ChangedAt: now,
		})
		if apply != nil {
			if err := apply(ctx, r, order, now); err != nil {
				return err
			}
		}
		if err := saveGuarded(ctx, r.orders, order, prevStatus, prevDelivery); err != nil {
			return err
		}
		out = order
		changed = true
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "db: update order status")
	}
	if changed {
		s.metrics.OrderTransitioned(next.String())
	}
	return out, nil
}

// markDelivered is the single authority for completing an order. In one
// transaction it decrements stock for every line, stamps deliveredAt and, for
// courier orders, records the delivered hop and credits the agent.
func (s *service) markDelivered(ctx context.Context, orderID uuid.UUID, actor types.Actor, note string, location *types.GeoPoint, photos []string) (*OrderDTO, error) {
	updated, err := s.transition(ctx, orderID, actor, enums.OrderStatusDelivered, note, func(ctx context.Context, r repos, order *models.Order, now time.Time) error {
		if order.DeliveryStatus != nil && !order.DeliveryStatus.CanTransitionTo(enums.DeliveryStatusDelivered) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "delivery ended as %s; reassign a courier before completing the order", *order.DeliveryStatus)
		}

		for productID, qty := range quantitiesByProduct(order.Items) {
			ok, err := r.products.DecrementStock(ctx, productID, qty)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: decrement stock")
			}
			if !ok {
				s.metrics.StockRejected()
				return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "not enough stock of %s to deliver %d", lineName(order.Items, productID), qty)
			}
		}

		order.DeliveredAt = &now
		order.PaymentStatus = order.PaymentStatus.AfterDelivery(order.PaymentMethod)
		if order.DeliveryAgentID == nil {
			return nil
		}

		delivered := enums.DeliveryStatusDelivered
		order.DeliveryStatus = &delivered
		record := &models.DeliveryStatus{
			OrderID:         order.ID,
			DeliveryAgentID: *order.DeliveryAgentID,
			Status:          delivered,
			Location:        location,
			Notes:           trimmedOrNil(note),
			Photos:          types.StringList(photos),
			RecordedBy:      actor.UserID,
			RecordedAt:      now,
		}
		if record.Photos == nil {
			record.Photos = types.StringList{}
		}
		if err := r.orders.CreateDeliveryStatus(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: record delivery")
		}
		return s.releaseAgent(ctx, r, *order.DeliveryAgentID, order.ID, true)
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

func (s *service) AssignAgent(ctx context.Context, actor types.Actor, orderID, agentID uuid.UUID) (*OrderDTO, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Is(enums.RoleAdmin) && !(actor.Is(enums.RoleVendor) && actor.Owns(order.VendorID)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the order's vendor or an admin can assign a courier")
	}

	var out *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.bind(tx)
		order, err := loadOrder(ctx, r.orders, orderID)
		if err != nil {
			return err
		}
		if order.OrderStatus.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot assign a courier to a %s order", order.OrderStatus)
		}
		if order.DeliveryStatus != nil {
			switch *order.DeliveryStatus {
			case enums.DeliveryStatusAssigned:
				if order.DeliveryAgentID != nil && *order.DeliveryAgentID == agentID {
					out = order
					return nil
				}
			case enums.DeliveryStatusFailed:
			default:
				return pkgerrors.Newf(pkgerrors.CodeStateConflict, "delivery is already %s", *order.DeliveryStatus)
			}
		}

		agent, err := r.users.FindByIDAndRole(ctx, agentID, enums.RoleDeliveryAgent)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "delivery agent not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load delivery agent")
		}
		if !agent.IsActive || agent.Profile.DeliveryAgent == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery agent account is not active")
		}
		if !agent.Profile.DeliveryAgent.IsAvailable {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery agent is not available")
		}

		prevStatus, prevDelivery := order.OrderStatus, copyDelivery(order.DeliveryStatus)
		if order.DeliveryAgentID != nil && *order.DeliveryAgentID != agentID && prevDelivery != nil && *prevDelivery == enums.DeliveryStatusAssigned {
			if err := s.releaseAgent(ctx, r, *order.DeliveryAgentID, order.ID, false); err != nil {
				return err
			}
		}

		now := s.now()
		assigned := enums.DeliveryStatusAssigned
		order.DeliveryAgentID = &agentID
		order.DeliveryStatus = &assigned
		record := &models.DeliveryStatus{
			OrderID:         order.ID,
			DeliveryAgentID: agentID,
			Status:          assigned,
			Photos:          types.StringList{},
			RecordedBy:      actor.UserID,
			RecordedAt:      now,
		}
		if err := r.orders.CreateDeliveryStatus(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: record assignment")
		}

		agent.Profile.DeliveryAgent.AddActiveDelivery(order.ID)
		if err := r.users.SaveRoleProfile(ctx, agent.ID, agent.Profile); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update agent deliveries")
		}
		if err := saveGuarded(ctx, r.orders, order, prevStatus, prevDelivery); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "db: assign courier")
	}
	return FromModel(out), nil
}

// UpdateDeliveryStatus appends a courier hop and mirrors it onto the order.
// Reaching delivered completes the order through markDelivered.
func (s *service) UpdateDeliveryStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, req DeliveryUpdateRequest) (*OrderDTO, error) {
	next, err := enums.ParseDeliveryStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAssignedAgent(actor, order) && !actor.Is(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the assigned courier can update delivery status")
	}
	if order.DeliveryAgentID == nil || order.DeliveryStatus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no courier assigned")
	}
	if *order.DeliveryStatus == next {
		return FromModel(order), nil
	}
	if !order.DeliveryStatus.CanTransitionTo(next) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "delivery cannot move from %s to %s", *order.DeliveryStatus, next)
	}

	note := strings.TrimSpace(req.Notes)
	location := stampLocation(req.Location, s.now())
	if next == enums.DeliveryStatusDelivered {
		return s.markDelivered(ctx, orderID, actor, note, location, req.Photos)
	}

	var (
		out          *models.Order
		orderChanged bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.bind(tx)
		order, err := loadOrder(ctx, r.orders, orderID)
		if err != nil {
			return err
		}
		if order.DeliveryAgentID == nil || order.DeliveryStatus == nil || !order.DeliveryStatus.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery state changed; reload the order")
		}
		prevStatus, prevDelivery := order.OrderStatus, copyDelivery(order.DeliveryStatus)
		now := s.now()

		photos := types.StringList(req.Photos)
		if photos == nil {
			photos = types.StringList{}
		}
		record := &models.DeliveryStatus{
			OrderID:         order.ID,
			DeliveryAgentID: *order.DeliveryAgentID,
			Status:          next,
			Location:        location,
			Notes:           trimmedOrNil(note),
			Photos:          photos,
			RecordedBy:      actor.UserID,
			RecordedAt:      now,
		}
		if err := r.orders.CreateDeliveryStatus(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: record delivery status")
		}
		order.DeliveryStatus = &next

		var follow enums.OrderStatus
		switch next {
		case enums.DeliveryStatusPickedUp, enums.DeliveryStatusInTransit, enums.DeliveryStatusOutForDelivery:
			if order.OrderStatus.CanTransitionTo(enums.OrderStatusShipped) {
				follow = enums.OrderStatusShipped
			}
		case enums.DeliveryStatusReturned:
			if order.OrderStatus.CanTransitionTo(enums.OrderStatusReturned) {
				follow = enums.OrderStatusReturned
			}
		}
		if follow != "" {
			order.OrderStatus = follow
			order.StatusHistory = append(order.StatusHistory, models.OrderStatusEvent{
				Status:    follow,
				Note:      "courier reported " + next.String(),
				ChangedBy: actor.UserID,
				ChangedAt: now,
			})
			orderChanged = true
		}
		if next == enums.DeliveryStatusFailed || next == enums.DeliveryStatusReturned {
			if err := s.releaseAgent(ctx, r, *order.DeliveryAgentID, order.ID, false); err != nil {
				return err
			}
		}
		if err := saveGuarded(ctx, r.orders, order, prevStatus, prevDelivery); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "db: update delivery status")
	}
	if orderChanged {
		s.metrics.OrderTransitioned(out.OrderStatus.String())
	}
	return FromModel(out), nil
}

func (s *service) Tracking(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*TrackingDTO, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to track this order")
	}
	rows, err := s.orders.DeliveryHistory(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load delivery history")
	}
	history := make([]DeliveryStatusDTO, 0, len(rows))
	for i := range rows {
		history = append(history, FromDeliveryStatus(&rows[i]))
	}
	return &TrackingDTO{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		OrderStatus:     order.OrderStatus,
		DeliveryStatus:  order.DeliveryStatus,
		DeliveryAgentID: order.DeliveryAgentID,
		DeliveredAt:     order.DeliveredAt,
		History:         history,
	}, nil
}

// ReportIssue attaches an issue to the latest delivery record.
func (s *service) ReportIssue(ctx context.Context, actor types.Actor, orderID uuid.UUID, req IssueRequest) (*DeliveryStatusDTO, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAssignedAgent(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the assigned courier can report delivery issues")
	}
	issueType := strings.TrimSpace(req.Type)
	description := strings.TrimSpace(req.Description)
	if issueType == "" || description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "issue type and description are required")
	}
	record, err := s.orders.LatestDeliveryStatus(ctx, order.ID, "")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no delivery record for this order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load delivery record")
	}
	if record.Issue != nil && !record.Issue.Resolved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "an unresolved issue is already open on this delivery")
	}
	record.Issue = &models.DeliveryIssue{
		Type:        issueType,
		Description: description,
		ReportedAt:  s.now(),
	}
	if err := s.orders.UpdateDeliveryAnnotations(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: record issue")
	}
	dto := FromDeliveryStatus(record)
	return &dto, nil
}

// ResolveIssue closes an open issue. It is the only in-place edit of a
// delivery record besides customer feedback.
func (s *service) ResolveIssue(ctx context.Context, actor types.Actor, statusID uuid.UUID, req ResolveIssueRequest) (*DeliveryStatusDTO, error) {
	if !actor.Is(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can resolve delivery issues")
	}
	resolution := strings.TrimSpace(req.Resolution)
	if resolution == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolution is required")
	}
	record, err := s.orders.FindDeliveryStatus(ctx, statusID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load delivery record")
	}
	if record.Issue == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no issue recorded on this delivery")
	}
	if record.Issue.Resolved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "issue is already resolved")
	}
	now := s.now()
	resolver := actor.UserID
	record.Issue.Resolved = true
	record.Issue.Resolution = resolution
	record.Issue.ResolvedBy = &resolver
	record.Issue.ResolvedAt = &now
	if err := s.orders.UpdateDeliveryAnnotations(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: resolve issue")
	}
	dto := FromDeliveryStatus(record)
	return &dto, nil
}

func (s *service) SubmitFeedback(ctx context.Context, actor types.Actor, orderID uuid.UUID, req FeedbackRequest) (*DeliveryStatusDTO, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Is(enums.RoleCustomer) || !actor.Owns(order.CustomerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the customer who placed the order can rate its delivery")
	}
	if order.OrderStatus != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "feedback is accepted once the order is delivered")
	}
	record, err := s.orders.LatestDeliveryStatus(ctx, order.ID, enums.DeliveryStatusDelivered)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order was not delivered by a courier")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load delivery record")
	}
	if record.Feedback != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "feedback was already submitted")
	}
	record.Feedback = &models.DeliveryFeedback{
		Rating:      req.Rating,
		Comment:     strings.TrimSpace(req.Comment),
		SubmittedAt: s.now(),
	}
	if err := s.orders.UpdateDeliveryAnnotations(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: record feedback")
	}
	dto := FromDeliveryStatus(record)
	return &dto, nil
}

func (s *service) VendorStats(ctx context.Context, vendorID uuid.UUID) (*VendorStatsDTO, error) {
	rows, err := s.orders.VendorStatusCounts(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: vendor order stats")
	}
	stats := &VendorStatsDTO{
		OrdersByState: map[enums.OrderStatus]int64{},
		Revenue:       decimal.Zero,
	}
	for _, row := range rows {
		stats.OrdersByState[row.Status] = row.Count
		stats.TotalOrders += row.Count
		if row.Status == enums.OrderStatusDelivered {
			stats.Revenue = stats.Revenue.Add(row.Revenue)
		}
		if !row.Status.IsTerminal() {
			stats.OpenOrders += row.Count
		}
	}
	stats.Revenue = stats.Revenue.Round(2)
	return stats, nil
}

// releaseAgent drops orderID from the courier's active list, crediting a
// completed delivery when asked. A courier account that no longer exists is
// skipped.
func (s *service) releaseAgent(ctx context.Context, r repos, agentID, orderID uuid.UUID, completed bool) error {
	agent, err := r.users.FindByIDAndRole(ctx, agentID, enums.RoleDeliveryAgent)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load delivery agent")
	}
	profile := agent.Profile.DeliveryAgent
	if profile == nil {
		return nil
	}
	profile.RemoveActiveDelivery(orderID)
	if completed {
		profile.CompletedDeliveries++
	}
	if err := r.users.SaveRoleProfile(ctx, agent.ID, agent.Profile); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update agent deliveries")
	}
	return nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return loadOrder(ctx, s.orders, orderID)
}

func loadOrder(ctx context.Context, repo *Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load order")
	}
	return order, nil
}

func saveGuarded(ctx context.Context, repo *Repository, order *models.Order, status enums.OrderStatus, delivery *enums.DeliveryStatus) error {
	ok, err := repo.SaveIfUnchanged(ctx, order, status, delivery)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: save order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order was updated concurrently; reload and retry")
	}
	return nil
}

// asTyped keeps typed errors and wraps raw ones, such as a failed commit.
func asTyped(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func canView(actor types.Actor, order *models.Order) bool {
	switch actor.Role {
	case enums.RoleAdmin:
		return true
	case enums.RoleCustomer:
		return actor.Owns(order.CustomerID)
	case enums.RoleVendor:
		return actor.Owns(order.VendorID)
	case enums.RoleDeliveryAgent:
		return isAssignedAgent(actor, order)
	}
	return false
}

func isAssignedAgent(actor types.Actor, order *models.Order) bool {
	return actor.Is(enums.RoleDeliveryAgent) && order.DeliveryAgentID != nil && actor.Owns(*order.DeliveryAgentID)
}

func quantitiesByProduct(items []models.OrderLineItem) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		out[item.ProductID] += item.Quantity
	}
	return out
}

func lineName(items []models.OrderLineItem, productID uuid.UUID) string {
	for _, item := range items {
		if item.ProductID == productID {
			return item.Name
		}
	}
	return productID.String()
}

func copyDelivery(status *enums.DeliveryStatus) *enums.DeliveryStatus {
	if status == nil {
		return nil
	}
	value := *status
	return &value
}

func stampLocation(point *types.GeoPoint, now time.Time) *types.GeoPoint {
	if point == nil {
		return nil
	}
	stamped := *point
	stamped.UpdatedAt = &now
	return &stamped
}

func trimmedOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
