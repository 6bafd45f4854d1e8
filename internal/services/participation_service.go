package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"agrobulk/internal/domain"
	"agrobulk/internal/events"
	"agrobulk/internal/pricing"
	"agrobulk/internal/repos"
)

// ParticipationLedger owns the per-member commitments against a bulk order.
// Every write re-checks capacity in the same statement that performs it, so
// concurrent callers can never push a bulk order past its target.
type ParticipationLedger struct {
	DB             *sqlx.DB
	BulkOrders     *repos.BulkOrderRepo
	Participations *repos.ParticipationRepo
	Members        Membership
	opts           Options
}

func NewParticipationLedger(db *sqlx.DB, bulk *repos.BulkOrderRepo, parts *repos.ParticipationRepo, members Membership, opts Options) *ParticipationLedger {
	return &ParticipationLedger{DB: db, BulkOrders: bulk, Participations: parts, Members: members, opts: opts.withDefaults()}
}

// openFor loads the bulk order and checks that memberID may change its
// participations right now.
func (l *ParticipationLedger) openFor(ctx context.Context, bulkOrderID, memberID string) (domain.BulkOrder, error) {
	b, err := l.BulkOrders.Get(ctx, bulkOrderID)
	if err != nil {
		return domain.BulkOrder{}, notFound(err, "bulk order")
	}
	ok, err := l.Members.IsActiveMember(ctx, b.GroupID, memberID)
	if err != nil {
		return domain.BulkOrder{}, fmt.Errorf("membership lookup: %w", err)
	}
	if !ok {
		return domain.BulkOrder{}, ErrNotMember
	}
	if b.Status != domain.BulkCollecting {
		return domain.BulkOrder{}, stateErr("bulk order is %s", b.Status)
	}
	if !l.opts.Now().Before(b.Deadline.Time) {
		return domain.BulkOrder{}, ErrDeadlinePassed
	}
	return b, nil
}

// rejected explains why a conditional write on bulk order id matched nothing.
// It runs inside the same transaction as the write.
func rejected(ctx context.Context, bulk *repos.BulkOrderRepo, parts *repos.ParticipationRepo, id, excludeID string, requested int) error {
	b, err := bulk.Get(ctx, id)
	if err != nil {
		return notFound(err, "bulk order")
	}
	if b.Status != domain.BulkCollecting {
		return stateErr("bulk order is %s", b.Status)
	}
	t, err := parts.Totals(ctx, id, excludeID)
	if err != nil {
		return err
	}
	return &CapacityError{Requested: requested, Remaining: max(b.TargetQuantity-t.Quantity, 0)}
}

// Add pledges quantity units of the bulk order for memberID.
func (l *ParticipationLedger) Add(ctx context.Context, bulkOrderID, memberID string, quantity int) (p domain.Participation, err error) {
	ctx, end := begin(ctx, "participation.add", attribute.String("bulk_order.id", bulkOrderID))
	defer end(&err)

	if quantity <= 0 {
		return domain.Participation{}, invalid("quantity", "must be greater than zero")
	}
	b, err := l.openFor(ctx, bulkOrderID, memberID)
	if err != nil {
		return domain.Participation{}, err
	}

	now := l.opts.now()
	p = domain.Participation{
		ID:            uuid.NewString(),
		BulkOrderID:   b.ID,
		MemberID:      memberID,
		Quantity:      quantity,
		UnitPrice:     b.UnitPrice,
		Amount:        pricing.Amount(b.UnitPrice, quantity),
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = repos.InTx(ctx, l.DB, func(tx *sqlx.Tx) error {
		bulk, parts := l.BulkOrders.WithTx(tx), l.Participations.WithTx(tx)
		if _, err := parts.ByMember(ctx, b.ID, memberID); err == nil {
			return ErrDuplicateParticipation
		} else if !errors.Is(err, repos.ErrNotFound) {
			return err
		}
		ok, err := parts.Insert(ctx, p)
		if err != nil {
			if repos.IsUniqueViolation(err) {
				return ErrDuplicateParticipation
			}
			return fmt.Errorf("insert participation: %w", err)
		}
		if !ok {
			return rejected(ctx, bulk, parts, b.ID, "", quantity)
		}
		return nil
	})
	if err != nil {
		return domain.Participation{}, err
	}

	l.opts.Log.Info("participation added",
		zap.String("bulk_order_id", b.ID), zap.String("member_id", memberID), zap.Int("quantity", quantity))
	l.opts.publish(ctx, events.Event{Type: events.ParticipationAdded, AggregateID: b.ID, ActorID: memberID, Data: p})
	return p, nil
}

// owned loads participation id and checks that memberID owns it and may still
// change it.
func (l *ParticipationLedger) owned(ctx context.Context, id, memberID string) (domain.Participation, domain.BulkOrder, error) {
	p, err := l.Participations.Get(ctx, id)
	if err != nil {
		return domain.Participation{}, domain.BulkOrder{}, notFound(err, "participation")
	}
	b, err := l.openFor(ctx, p.BulkOrderID, memberID)
	if err != nil {
		return domain.Participation{}, domain.BulkOrder{}, err
	}
	if p.MemberID != memberID {
		return domain.Participation{}, domain.BulkOrder{}, ErrNotOwner
	}
	return p, b, nil
}

// Update changes the pledged quantity. Capacity is checked against every other
// participation on the bulk order.
func (l *ParticipationLedger) Update(ctx context.Context, participationID, memberID string, quantity int) (p domain.Participation, err error) {
	ctx, end := begin(ctx, "participation.update", attribute.String("participation.id", participationID))
	defer end(&err)

	if quantity <= 0 {
		return domain.Participation{}, invalid("quantity", "must be greater than zero")
	}
	p, b, err := l.owned(ctx, participationID, memberID)
	if err != nil {
		return domain.Participation{}, err
	}

	p.Quantity = quantity
	p.Amount = pricing.Amount(p.UnitPrice, quantity)
	p.UpdatedAt = l.opts.now()
	err = repos.InTx(ctx, l.DB, func(tx *sqlx.Tx) error {
		bulk, parts := l.BulkOrders.WithTx(tx), l.Participations.WithTx(tx)
		ok, err := parts.UpdateQuantity(ctx, p)
		if err != nil {
			return fmt.Errorf("update participation: %w", err)
		}
		if !ok {
			if _, err := parts.Get(ctx, p.ID); err != nil {
				return notFound(err, "participation")
			}
			return rejected(ctx, bulk, parts, b.ID, p.ID, quantity)
		}
		return nil
	})
	if err != nil {
		return domain.Participation{}, err
	}

	l.opts.publish(ctx, events.Event{Type: events.ParticipationUpdated, AggregateID: b.ID, ActorID: memberID, Data: p})
	return p, nil
}

// Remove withdraws the member's participation.
func (l *ParticipationLedger) Remove(ctx context.Context, participationID, memberID string) (err error) {
	ctx, end := begin(ctx, "participation.remove", attribute.String("participation.id", participationID))
	defer end(&err)

	p, b, err := l.owned(ctx, participationID, memberID)
	if err != nil {
		return err
	}
	err = repos.InTx(ctx, l.DB, func(tx *sqlx.Tx) error {
		ok, err := l.Participations.WithTx(tx).Delete(ctx, p.ID, memberID)
		if err != nil {
			return fmt.Errorf("delete participation: %w", err)
		}
		if !ok {
			cur, err := l.BulkOrders.WithTx(tx).Get(ctx, b.ID)
			if err != nil {
				return notFound(err, "bulk order")
			}
			if cur.Status != domain.BulkCollecting {
				return stateErr("bulk order is %s", cur.Status)
			}
			return fmt.Errorf("%w: participation", ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.opts.publish(ctx, events.Event{Type: events.ParticipationRemoved, AggregateID: b.ID, ActorID: memberID,
		Data: map[string]any{"participation_id": p.ID, "quantity": p.Quantity}})
	return nil
}
