package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"agrobulk/internal/domain"
	"agrobulk/internal/events"
	"agrobulk/internal/pricing"
	"agrobulk/internal/repos"
)

type BulkOrderService struct {
	DB             *sqlx.DB
	BulkOrders     *repos.BulkOrderRepo
	Participations *repos.ParticipationRepo
	Products       *repos.ProductRepo
	Members        Membership
	opts           Options
}

func NewBulkOrderService(db *sqlx.DB, bulk *repos.BulkOrderRepo, parts *repos.ParticipationRepo,
	products *repos.ProductRepo, members Membership, opts Options) *BulkOrderService {
	return &BulkOrderService{DB: db, BulkOrders: bulk, Participations: parts, Products: products,
		Members: members, opts: opts.withDefaults()}
}

type CreateBulkOrder struct {
	GroupID        string
	ProductID      string
	CreatorID      string
	TargetQuantity int
	// Deadline defaults to now plus the collection window when zero.
	Deadline time.Time
}

// Create opens a bulk order priced at the tier the target quantity earns.
// Stock is checked against the target but not reserved.
func (s *BulkOrderService) Create(ctx context.Context, in CreateBulkOrder) (b domain.BulkOrder, err error) {
	ctx, end := begin(ctx, "bulk_order.create", attribute.String("group.id", in.GroupID))
	defer end(&err)

	switch {
	case in.GroupID == "":
		return domain.BulkOrder{}, invalid("group_id", "is required")
	case in.ProductID == "":
		return domain.BulkOrder{}, invalid("product_id", "is required")
	case in.TargetQuantity <= 0:
		return domain.BulkOrder{}, invalid("target_quantity", "must be greater than zero")
	}
	if err := s.requireMember(ctx, in.GroupID, in.CreatorID); err != nil {
		return domain.BulkOrder{}, err
	}

	p, err := s.Products.Get(ctx, in.ProductID)
	if err != nil {
		return domain.BulkOrder{}, notFound(err, "product")
	}
	if !p.Active {
		return domain.BulkOrder{}, stateErr("product %s is not active", p.ID)
	}
	if in.TargetQuantity > p.StockQuantity {
		return domain.BulkOrder{}, fmt.Errorf("%w: target %d exceeds stock %d", ErrInsufficientStock, in.TargetQuantity, p.StockQuantity)
	}

	now := s.opts.now()
	deadline := in.Deadline
	if deadline.IsZero() {
		deadline = now.Add(s.opts.CollectionWindow)
	}
	if !deadline.After(now.Time) {
		return domain.BulkOrder{}, invalid("deadline", "must be in the future")
	}

	q := pricing.ResolveUnitPrice(p.UnitPrice, p.Tiers, in.TargetQuantity)
	b = domain.BulkOrder{
		ID:             uuid.NewString(),
		GroupID:        in.GroupID,
		ProductID:      p.ID,
		CreatedBy:      in.CreatorID,
		TargetQuantity: in.TargetQuantity,
		UnitPrice:      q.UnitPrice,
		TotalAmount:    q.Total(),
		Deadline:       domain.At(deadline),
		Status:         domain.BulkCollecting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.BulkOrders.Create(ctx, b); err != nil {
		return domain.BulkOrder{}, fmt.Errorf("create bulk order: %w", err)
	}

	s.opts.Log.Info("bulk order created",
		zap.String("bulk_order_id", b.ID),
		zap.String("group_id", b.GroupID),
		zap.String("product_id", b.ProductID),
		zap.Int("target_quantity", b.TargetQuantity),
		zap.Stringer("unit_price", b.UnitPrice),
	)
	s.opts.publish(ctx, events.Event{Type: events.BulkOrderCreated, AggregateID: b.ID, ActorID: in.CreatorID, Data: b})
	return b, nil
}

func (s *BulkOrderService) requireMember(ctx context.Context, groupID, userID string) error {
	ok, err := s.Members.IsActiveMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func progress(b domain.BulkOrder, t repos.Totals) domain.BulkOrderProgress {
	return domain.BulkOrderProgress{
		BulkOrder:         b,
		CollectedQuantity: t.Quantity,
		RemainingCapacity: max(b.TargetQuantity-t.Quantity, 0),
		Participants:      t.Participants,
		TargetReached:     t.Quantity >= b.TargetQuantity,
	}
}

// Get returns the bulk order with its participations. Only active members of
// the owning group may read it.
func (s *BulkOrderService) Get(ctx context.Context, id, callerID string) (domain.BulkOrderProgress, error) {
	b, err := s.BulkOrders.Get(ctx, id)
	if err != nil {
		return domain.BulkOrderProgress{}, notFound(err, "bulk order")
	}
	if err := s.requireMember(ctx, b.GroupID, callerID); err != nil {
		return domain.BulkOrderProgress{}, err
	}
	parts, err := s.Participations.ListByBulkOrder(ctx, id)
	if err != nil {
		return domain.BulkOrderProgress{}, err
	}
	var t repos.Totals
	for _, p := range parts {
		t.Quantity += p.Quantity
		t.Participants++
	}
	out := progress(b, t)
	out.Participations = parts
	return out, nil
}

// ListForGroup returns every bulk order of the group, newest first.
func (s *BulkOrderService) ListForGroup(ctx context.Context, groupID, callerID string) ([]domain.BulkOrderProgress, error) {
	if err := s.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	orders, err := s.BulkOrders.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	totals, err := s.Participations.TotalsByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BulkOrderProgress, 0, len(orders))
	for _, b := range orders {
		out = append(out, progress(b, totals[b.ID]))
	}
	return out, nil
}

// Finalize closes collection. The quantity becomes what was actually pledged;
// the unit price stays the one chosen at creation.
func (s *BulkOrderService) Finalize(ctx context.Context, id, callerID string) (b domain.BulkOrder, err error) {
	ctx, end := begin(ctx, "bulk_order.finalize", attribute.String("bulk_order.id", id))
	defer end(&err)

	b, err = s.BulkOrders.Get(ctx, id)
	if err != nil {
		return domain.BulkOrder{}, notFound(err, "bulk order")
	}
	admin, err := s.Members.IsAdmin(ctx, b.GroupID, callerID)
	if err != nil {
		return domain.BulkOrder{}, fmt.Errorf("membership lookup: %w", err)
	}
	if !admin {
		return domain.BulkOrder{}, ErrNotAdmin
	}

	err = repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		bulk := s.BulkOrders.WithTx(tx)
		cur, err := bulk.Get(ctx, id)
		if err != nil {
			return notFound(err, "bulk order")
		}
		if cur.Status != domain.BulkCollecting {
			return stateErr("bulk order is %s", cur.Status)
		}
		t, err := s.Participations.WithTx(tx).Totals(ctx, id, "")
		if err != nil {
			return err
		}
		if t.Participants == 0 {
			return ErrNoParticipations
		}
		at := s.opts.now()
		total := pricing.Amount(cur.UnitPrice, t.Quantity)
		ok, err := bulk.Finalize(ctx, id, t.Quantity, total, at)
		if err != nil {
			return fmt.Errorf("finalize bulk order: %w", err)
		}
		if !ok {
			return stateErr("bulk order is no longer collecting")
		}
		b = cur
		b.Status = domain.BulkFinalized
		b.TargetQuantity = t.Quantity
		b.TotalAmount = total
		b.FinalizedAt = at
		b.UpdatedAt = at
		return nil
	})
	if err != nil {
		return domain.BulkOrder{}, err
	}

	s.opts.Log.Info("bulk order finalized",
		zap.String("bulk_order_id", b.ID),
		zap.Int("quantity", b.TargetQuantity),
		zap.Stringer("total_amount", b.TotalAmount),
	)
	s.opts.publish(ctx, events.Event{Type: events.BulkOrderFinalized, AggregateID: b.ID, ActorID: callerID, Data: b})
	return b, nil
}

// Cancel closes a collecting bulk order without a purchase. The group admin and
// the member who created it may cancel.
func (s *BulkOrderService) Cancel(ctx context.Context, id, callerID string) (b domain.BulkOrder, err error) {
	ctx, end := begin(ctx, "bulk_order.cancel", attribute.String("bulk_order.id", id))
	defer end(&err)

	b, err = s.BulkOrders.Get(ctx, id)
	if err != nil {
		return domain.BulkOrder{}, notFound(err, "bulk order")
	}
	if b.CreatedBy != callerID {
		admin, err := s.Members.IsAdmin(ctx, b.GroupID, callerID)
		if err != nil {
			return domain.BulkOrder{}, fmt.Errorf("membership lookup: %w", err)
		}
		if !admin {
			return domain.BulkOrder{}, fmt.Errorf("%w: only the group admin or the creator may cancel", ErrForbidden)
		}
	}

	at := s.opts.now()
	err = repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		ok, err := s.BulkOrders.WithTx(tx).Cancel(ctx, id, at)
		if err != nil {
			return fmt.Errorf("cancel bulk order: %w", err)
		}
		if !ok {
			cur, err := s.BulkOrders.WithTx(tx).Get(ctx, id)
			if err != nil {
				return notFound(err, "bulk order")
			}
			return stateErr("bulk order is %s", cur.Status)
		}
		return nil
	})
	if err != nil {
		return domain.BulkOrder{}, err
	}
	b.Status = domain.BulkCancelled
	b.UpdatedAt = at

	s.opts.Log.Info("bulk order cancelled", zap.String("bulk_order_id", b.ID), zap.String("caller_id", callerID))
	s.opts.publish(ctx, events.Event{Type: events.BulkOrderCancelled, AggregateID: b.ID, ActorID: callerID, Data: b})
	return b, nil
}
