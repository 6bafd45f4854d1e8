package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"agrobulk/internal/domain"
	"agrobulk/internal/events"
	"agrobulk/internal/metrics"
	"agrobulk/internal/pricing"
	"agrobulk/internal/repos"
)

var errNotParty = fmt.Errorf("%w: caller is neither the buyer nor the seller", ErrForbidden)

// OrderService runs individual orders. Stock leaves the product exactly once,
// when an order is confirmed, and comes back exactly once if that order is
// later cancelled.
type OrderService struct {
	DB       *sqlx.DB
	Orders   *repos.OrderRepo
	Products *repos.ProductRepo
	opts     Options
}

func NewOrderService(db *sqlx.DB, orders *repos.OrderRepo, products *repos.ProductRepo, opts Options) *OrderService {
	return &OrderService{DB: db, Orders: orders, Products: products, opts: opts.withDefaults()}
}

type CreateOrder struct {
	BuyerID         string
	ProductID       string
	Quantity        int
	DeliveryAddress string
}

// Create places a pending order priced on its own quantity.
func (s *OrderService) Create(ctx context.Context, in CreateOrder) (o domain.Order, err error) {
	ctx, end := begin(ctx, "order.create", attribute.String("product.id", in.ProductID))
	defer end(&err)

	in.DeliveryAddress = strings.TrimSpace(in.DeliveryAddress)
	switch {
	case in.BuyerID == "":
		return domain.Order{}, invalid("buyer", "is required")
	case in.ProductID == "":
		return domain.Order{}, invalid("product_id", "is required")
	case in.Quantity <= 0:
		return domain.Order{}, invalid("quantity", "must be greater than zero")
	case in.DeliveryAddress == "":
		return domain.Order{}, invalid("delivery_address", "is required")
	}

	p, err := s.Products.Get(ctx, in.ProductID)
	if err != nil {
		return domain.Order{}, notFound(err, "product")
	}
	if !p.Active {
		return domain.Order{}, stateErr("product %s is not active", p.ID)
	}
	if in.Quantity > p.StockQuantity {
		return domain.Order{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientStock, in.Quantity, p.StockQuantity)
	}

	q := pricing.ResolveUnitPrice(p.UnitPrice, p.Tiers, in.Quantity)
	now := s.opts.now()
	o = domain.Order{
		ID:              uuid.NewString(),
		BuyerID:         in.BuyerID,
		ProductID:       p.ID,
		Quantity:        in.Quantity,
		UnitPrice:       q.UnitPrice,
		TotalAmount:     q.Total(),
		Status:          domain.OrderPending,
		PaymentStatus:   domain.PaymentPending,
		DeliveryAddress: in.DeliveryAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Orders.Create(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.opts.Log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("product_id", o.ProductID),
		zap.Int("quantity", o.Quantity),
		zap.Stringer("total_amount", o.TotalAmount),
	)
	s.opts.publish(ctx, events.Event{Type: events.OrderCreated, AggregateID: o.ID, ActorID: in.BuyerID, Data: o})
	return o, nil
}

// load returns the order and its product, provided callerID is a party to it.
// sellerOnly narrows the check to the product owner.
func (s *OrderService) load(ctx context.Context, id, callerID string, sellerOnly bool) (domain.Order, domain.Product, error) {
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, domain.Product{}, notFound(err, "order")
	}
	p, err := s.Products.Get(ctx, o.ProductID)
	if err != nil && !errors.Is(err, repos.ErrNotFound) {
		return domain.Order{}, domain.Product{}, err
	}
	seller := p.SellerID != "" && p.SellerID == callerID
	switch {
	case seller:
	case sellerOnly:
		return domain.Order{}, domain.Product{}, fmt.Errorf("%w: only the seller may do this", ErrForbidden)
	case o.BuyerID != callerID:
		return domain.Order{}, domain.Product{}, errNotParty
	}
	return o, p, nil
}

func (s *OrderService) Get(ctx context.Context, id, callerID string) (domain.Order, error) {
	o, _, err := s.load(ctx, id, callerID, false)
	return o, err
}

// ListForUser returns the caller's purchases, or with asSeller the orders
// placed on products the caller sells.
func (s *OrderService) ListForUser(ctx context.Context, userID string, asSeller bool) ([]domain.Order, error) {
	if userID == "" {
		return nil, invalid("user", "is required")
	}
	if asSeller {
		return s.Orders.ListBySeller(ctx, userID)
	}
	return s.Orders.ListByBuyer(ctx, userID)
}

// UpdateStatus moves the order to next. Confirming takes stock in the same
// transaction as the status change; cancelling a confirmed order gives it back.
func (s *OrderService) UpdateStatus(ctx context.Context, id, callerID string, next domain.OrderStatus) (o domain.Order, err error) {
	ctx, end := begin(ctx, "order.update_status",
		attribute.String("order.id", id), attribute.String("order.status", string(next)))
	defer end(&err)

	if !next.Valid() {
		return domain.Order{}, invalid("status", fmt.Sprintf("%q is not an order status", next))
	}
	o, _, err = s.load(ctx, id, callerID, false)
	if err != nil {
		return domain.Order{}, err
	}
	if !o.Status.CanTransitionTo(next) {
		return domain.Order{}, &TransitionError{From: o.Status, To: next}
	}

	prev := o.Status
	at := s.opts.now()
	reserved := o.StockReserved
	err = repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		orders := s.Orders.WithTx(tx)
		if next == domain.OrderConfirmed {
			reserved = true
		}
		ok, err := orders.Transition(ctx, o.ID, prev, next, reserved, at)
		if err != nil {
			return fmt.Errorf("transition order: %w", err)
		}
		if !ok {
			cur, err := orders.Get(ctx, o.ID)
			if err != nil {
				return notFound(err, "order")
			}
			return &TransitionError{From: cur.Status, To: next}
		}
		if next == domain.OrderConfirmed {
			if err := s.Products.WithTx(tx).Decrement(ctx, o.ProductID, o.ID, o.Quantity, at); err != nil {
				if errors.Is(err, repos.ErrInsufficientStock) {
					return fmt.Errorf("%w: %d of %s", ErrInsufficientStock, o.Quantity, o.ProductID)
				}
				return fmt.Errorf("decrement stock: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if next == domain.OrderConfirmed {
		metrics.StockReserved(o.Quantity)
	}
	o.Status = next
	o.StockReserved = reserved
	o.UpdatedAt = at

	if next == domain.OrderCancelled && o.StockReserved {
		if rerr := s.restore(ctx, o); rerr != nil {
			metrics.StockRestoreFailures.Inc()
			s.opts.Log.Warn("stock restore failed after cancellation",
				zap.String("inconsistency", "stock_restore"),
				zap.String("order_id", o.ID),
				zap.String("product_id", o.ProductID),
				zap.Int("quantity", o.Quantity),
				zap.Error(rerr),
			)
		} else {
			o.StockReserved = false
		}
	}

	s.opts.Log.Info("order status changed",
		zap.String("order_id", o.ID), zap.String("from", string(prev)), zap.String("to", string(next)))
	s.opts.publish(ctx, events.Event{Type: events.OrderStatusChanged, AggregateID: o.ID, ActorID: callerID,
		Data: map[string]any{"from": prev, "to": next, "product_id": o.ProductID, "quantity": o.Quantity}})
	return o, nil
}

func (s *OrderService) Cancel(ctx context.Context, id, callerID string) (domain.Order, error) {
	return s.UpdateStatus(ctx, id, callerID, domain.OrderCancelled)
}

// restore gives the order's stock back and clears its reservation flag in one
// transaction. An order whose flag is already clear is left alone.
func (s *OrderService) restore(ctx context.Context, o domain.Order) error {
	at := s.opts.now()
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		ok, err := s.Orders.WithTx(tx).MarkRestored(ctx, o.ID, at)
		if err != nil || !ok {
			return err
		}
		return s.Products.WithTx(tx).Restore(ctx, o.ProductID, o.ID, o.Quantity, at)
	})
	if err == nil {
		metrics.StockRestored(o.Quantity)
	}
	return err
}

// Reconcile retries the stock restore for every cancelled order still holding
// stock and reports how many were repaired.
func (s *OrderService) Reconcile(ctx context.Context) (n int, err error) {
	ctx, end := begin(ctx, "order.reconcile")
	defer end(&err)

	pending, err := s.Orders.ListUnreconciled(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, o := range pending {
		if rerr := s.restore(ctx, o); rerr != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, rerr))
			continue
		}
		n++
		s.opts.Log.Info("stock reconciled", zap.String("order_id", o.ID), zap.Int("quantity", o.Quantity))
	}
	return n, errors.Join(errs...)
}

// Unreconciled lists cancelled orders whose stock was never restored.
func (s *OrderService) Unreconciled(ctx context.Context) ([]domain.Order, error) {
	return s.Orders.ListUnreconciled(ctx)
}

// RecordPayment stores the payment status reported by the seller. No money
// moves here.
func (s *OrderService) RecordPayment(ctx context.Context, id, callerID string, status domain.PaymentStatus) (o domain.Order, err error) {
	ctx, end := begin(ctx, "order.record_payment", attribute.String("order.id", id))
	defer end(&err)

	switch status {
	case domain.PaymentPending, domain.PaymentPaid, domain.PaymentRefunded:
	default:
		return domain.Order{}, invalid("payment_status", fmt.Sprintf("%q is not a payment status", status))
	}
	o, _, err = s.load(ctx, id, callerID, true)
	if err != nil {
		return domain.Order{}, err
	}
	at := s.opts.now()
	if err := s.Orders.UpdatePaymentStatus(ctx, o.ID, status, at); err != nil {
		return domain.Order{}, notFound(err, "order")
	}
	o.PaymentStatus = status
	o.UpdatedAt = at
	return o, nil
}
