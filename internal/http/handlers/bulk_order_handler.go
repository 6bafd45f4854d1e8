package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	applog "agrobulk/internal/log"
	"agrobulk/internal/services"
)

type BulkOrderHandler struct {
	Bulk   *services.BulkOrderService
	Ledger *services.ParticipationLedger
}

type createBulkOrderReq struct {
	ProductID      string    `json:"product_id" validate:"required,resid"`
	TargetQuantity int       `json:"target_quantity" validate:"gt=0"`
	Deadline       time.Time `json:"deadline"`
}

// POST /groups/:id/bulk-orders
func (h *BulkOrderHandler) Create(c *fiber.Ctx) error {
	groupID, err := pathID(c, "id")
	if err != nil {
		return fail(c, "bulk_order.create", err)
	}
	var req createBulkOrderReq
	if err := bind(c, &req); err != nil {
		return fail(c, "bulk_order.create", err)
	}
	b, err := h.Bulk.Create(c.UserContext(), services.CreateBulkOrder{
		GroupID:        groupID,
		ProductID:      req.ProductID,
		CreatorID:      caller(c),
		TargetQuantity: req.TargetQuantity,
		Deadline:       req.Deadline,
	})
	if err != nil {
		return fail(c, "bulk_order.create", err)
	}
	applog.Audit(c, "bulk_order.create", map[string]any{"bulk_order_id": b.ID, "group_id": groupID})
	return c.Status(fiber.StatusCreated).JSON(b)
}

// GET /groups/:id/bulk-orders
func (h *BulkOrderHandler) List(c *fiber.Ctx) error {
	groupID, err := pathID(c, "id")
	if err != nil {
		return fail(c, "bulk_order.list", err)
	}
	list, err := h.Bulk.ListForGroup(c.UserContext(), groupID, caller(c))
	if err != nil {
		return fail(c, "bulk_order.list", err)
	}
	return c.JSON(fiber.Map{"bulk_orders": list})
}

// GET /bulk-orders/:id
func (h *BulkOrderHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "bulk_order.get", err)
	}
	b, err := h.Bulk.Get(c.UserContext(), id, caller(c))
	if err != nil {
		return fail(c, "bulk_order.get", err)
	}
	return c.JSON(b)
}

// POST /bulk-orders/:id/finalize
func (h *BulkOrderHandler) Finalize(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "bulk_order.finalize", err)
	}
	b, err := h.Bulk.Finalize(c.UserContext(), id, caller(c))
	if err != nil {
		return fail(c, "bulk_order.finalize", err)
	}
	applog.Audit(c, "bulk_order.finalize", map[string]any{
		"bulk_order_id": b.ID, "quantity": b.TargetQuantity, "total": b.TotalAmount.String(),
	})
	return c.JSON(b)
}

// POST /bulk-orders/:id/cancel
func (h *BulkOrderHandler) Cancel(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "bulk_order.cancel", err)
	}
	b, err := h.Bulk.Cancel(c.UserContext(), id, caller(c))
	if err != nil {
		return fail(c, "bulk_order.cancel", err)
	}
	applog.Audit(c, "bulk_order.cancel", map[string]any{"bulk_order_id": b.ID})
	return c.JSON(b)
}

type pledgeReq struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

// POST /bulk-orders/:id/participations
func (h *BulkOrderHandler) AddParticipation(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "participation.add", err)
	}
	var req pledgeReq
	if err := bind(c, &req); err != nil {
		return fail(c, "participation.add", err)
	}
	p, err := h.Ledger.Add(c.UserContext(), id, caller(c), req.Quantity)
	if err != nil {
		return fail(c, "participation.add", err)
	}
	applog.Audit(c, "participation.add", map[string]any{"bulk_order_id": id, "quantity": p.Quantity})
	return c.Status(fiber.StatusCreated).JSON(p)
}

// PATCH /participations/:id
func (h *BulkOrderHandler) UpdateParticipation(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "participation.update", err)
	}
	var req pledgeReq
	if err := bind(c, &req); err != nil {
		return fail(c, "participation.update", err)
	}
	p, err := h.Ledger.Update(c.UserContext(), id, caller(c), req.Quantity)
	if err != nil {
		return fail(c, "participation.update", err)
	}
	applog.Audit(c, "participation.update", map[string]any{"participation_id": id, "quantity": p.Quantity})
	return c.JSON(p)
}

// DELETE /participations/:id
func (h *BulkOrderHandler) RemoveParticipation(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "participation.remove", err)
	}
	if err := h.Ledger.Remove(c.UserContext(), id, caller(c)); err != nil {
		return fail(c, "participation.remove", err)
	}
	applog.Audit(c, "participation.remove", map[string]any{"participation_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
