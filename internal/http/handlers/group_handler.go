package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "agrobulk/internal/log"
	"agrobulk/internal/services"
)

type GroupHandler struct {
	Groups *services.GroupService
}

type createGroupReq struct {
	Name        string `json:"name" validate:"required,max=120"`
	MemberLimit int    `json:"member_limit" validate:"gte=1"`
}

// POST /groups
func (h *GroupHandler) Create(c *fiber.Ctx) error {
	var req createGroupReq
	if err := bind(c, &req); err != nil {
		return fail(c, "group.create", err)
	}
	g, err := h.Groups.Create(c.UserContext(), caller(c), req.Name, req.MemberLimit)
	if err != nil {
		return fail(c, "group.create", err)
	}
	applog.Audit(c, "group.create", map[string]any{"group_id": g.ID})
	return c.Status(fiber.StatusCreated).JSON(g)
}

// GET /groups/:id
func (h *GroupHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "group.get", err)
	}
	g, members, err := h.Groups.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, "group.get", err)
	}
	return c.JSON(fiber.Map{"group": g, "members": members})
}

// POST /groups/:id/join
func (h *GroupHandler) Join(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "group.join", err)
	}
	if err := h.Groups.Join(c.UserContext(), id, caller(c)); err != nil {
		return fail(c, "group.join", err)
	}
	applog.Audit(c, "group.join", map[string]any{"group_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /groups/:id/leave
func (h *GroupHandler) Leave(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "group.leave", err)
	}
	if err := h.Groups.Leave(c.UserContext(), id, caller(c)); err != nil {
		return fail(c, "group.leave", err)
	}
	applog.Audit(c, "group.leave", map[string]any{"group_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

type transferAdminReq struct {
	UserID string `json:"user_id" validate:"required,resid"`
}

// POST /groups/:id/admin
func (h *GroupHandler) TransferAdmin(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "group.admin", err)
	}
	var req transferAdminReq
	if err := bind(c, &req); err != nil {
		return fail(c, "group.admin", err)
	}
	if err := h.Groups.TransferAdmin(c.UserContext(), id, caller(c), req.UserID); err != nil {
		return fail(c, "group.admin", err)
	}
	applog.Audit(c, "group.admin", map[string]any{"group_id": id, "new_admin": req.UserID})
	return c.SendStatus(fiber.StatusNoContent)
}
