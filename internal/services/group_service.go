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
	"agrobulk/internal/repos"
)

// Membership answers the two group questions the order engine asks.
type Membership interface {
	IsActiveMember(ctx context.Context, groupID, userID string) (bool, error)
	IsAdmin(ctx context.Context, groupID, userID string) (bool, error)
}

// GroupService keeps the membership side of a buying group: who is an active
// member, who is the admin, and the member limit.
type GroupService struct {
	DB     *sqlx.DB
	Groups *repos.GroupRepo
	opts   Options
}

func NewGroupService(db *sqlx.DB, groups *repos.GroupRepo, opts Options) *GroupService {
	return &GroupService{DB: db, Groups: groups, opts: opts.withDefaults()}
}

// IsActiveMember satisfies the membership collaborator contract.
func (s *GroupService) IsActiveMember(ctx context.Context, groupID, userID string) (bool, error) {
	return s.Groups.IsActiveMember(ctx, groupID, userID)
}

// IsAdmin satisfies the membership collaborator contract.
func (s *GroupService) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	return s.Groups.IsAdmin(ctx, groupID, userID)
}

// Create registers a group whose creator becomes admin and first member.
func (s *GroupService) Create(ctx context.Context, creatorID, name string, memberLimit int) (g domain.Group, err error) {
	ctx, end := begin(ctx, "group.create")
	defer end(&err)

	name = strings.TrimSpace(name)
	switch {
	case creatorID == "":
		return domain.Group{}, invalid("creator", "is required")
	case name == "":
		return domain.Group{}, invalid("name", "is required")
	case memberLimit < 1:
		return domain.Group{}, invalid("member_limit", "must be at least 1")
	}

	now := s.opts.now()
	g = domain.Group{ID: uuid.NewString(), Name: name, AdminID: creatorID, MemberLimit: memberLimit, CreatedAt: now}
	err = repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		groups := s.Groups.WithTx(tx)
		if err := groups.Create(ctx, g); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		return groups.AddMember(ctx, g.ID, creatorID, now)
	})
	if err != nil {
		return domain.Group{}, err
	}
	s.opts.Log.Info("group created", zap.String("group_id", g.ID), zap.String("admin_id", creatorID))
	return g, nil
}

func (s *GroupService) Get(ctx context.Context, groupID string) (domain.Group, []domain.Membership, error) {
	g, err := s.Groups.Get(ctx, groupID)
	if err != nil {
		return domain.Group{}, nil, notFound(err, "group")
	}
	members, err := s.Groups.Members(ctx, groupID)
	if err != nil {
		return domain.Group{}, nil, err
	}
	return g, members, nil
}

// Join adds userID as an active member while the group has room.
func (s *GroupService) Join(ctx context.Context, groupID, userID string) (err error) {
	ctx, end := begin(ctx, "group.join", attribute.String("group.id", groupID))
	defer end(&err)

	if userID == "" {
		return invalid("user", "is required")
	}
	err = repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		groups := s.Groups.WithTx(tx)
		g, err := groups.Get(ctx, groupID)
		if err != nil {
			return notFound(err, "group")
		}
		member, err := groups.IsActiveMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}
		if err := groups.AddMember(ctx, groupID, userID, s.opts.now()); err != nil {
			if errors.Is(err, repos.ErrGroupFull) {
				return &CapacityError{Requested: 1, Remaining: 0}
			}
			if repos.IsUniqueViolation(err) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("join group %s (limit %d): %w", g.ID, g.MemberLimit, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.opts.publish(ctx, events.Event{Type: events.MembershipChanged, AggregateID: groupID, ActorID: userID,
		Data: map[string]string{"action": "join"}})
	return nil
}

// Leave removes userID from the group. The admin has to hand the role over first.
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) (err error) {
	ctx, end := begin(ctx, "group.leave", attribute.String("group.id", groupID))
	defer end(&err)

	err = repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		groups := s.Groups.WithTx(tx)
		g, err := groups.Get(ctx, groupID)
		if err != nil {
			return notFound(err, "group")
		}
		if g.AdminID == userID {
			return ErrAdminLeave
		}
		if err := groups.RemoveMember(ctx, groupID, userID); err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return ErrNotMember
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.opts.publish(ctx, events.Event{Type: events.MembershipChanged, AggregateID: groupID, ActorID: userID,
		Data: map[string]string{"action": "leave"}})
	return nil
}

// TransferAdmin hands the admin role from callerID to newAdminID, who must be
// an active member.
func (s *GroupService) TransferAdmin(ctx context.Context, groupID, callerID, newAdminID string) (err error) {
	ctx, end := begin(ctx, "group.transfer_admin", attribute.String("group.id", groupID))
	defer end(&err)

	return repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		groups := s.Groups.WithTx(tx)
		g, err := groups.Get(ctx, groupID)
		if err != nil {
			return notFound(err, "group")
		}
		if g.AdminID != callerID {
			return ErrNotAdmin
		}
		if err := groups.SetAdmin(ctx, groupID, newAdminID); err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return invalid("new_admin", "must be an active member")
			}
			return err
		}
		return nil
	})
}
