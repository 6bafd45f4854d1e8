package handlers

import (
	"github.com/gofiber/fiber/v2"

	"agrobulk/internal/domain"
	applog "agrobulk/internal/log"
	"agrobulk/internal/services"
)

type OrderHandler struct {
	Orders *services.OrderService
}

type createOrderReq struct {
	ProductID       string `json:"product_id" validate:"required,resid"`
	Quantity        int    `json:"quantity" validate:"gt=0"`
	DeliveryAddress string `json:"delivery_address" validate:"required,max=300"`
}

// POST /orders
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var req createOrderReq
	if err := bind(c, &req); err != nil {
		return fail(c, "order.create", err)
	}
	o, err := h.Orders.Create(c.UserContext(), services.CreateOrder{
		BuyerID:         caller(c),
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		return fail(c, "order.create", err)
	}
	applog.Audit(c, "order.create", map[string]any{"order_id": o.ID, "total": o.TotalAmount.String()})
	return c.Status(fiber.StatusCreated).JSON(o)
}

// GET /orders?as=seller
func (h *OrderHandler) List(c *fiber.Ctx) error {
	as := c.Query("as", "buyer")
	if as != "buyer" && as != "seller" {
		return fail(c, "order.list", &services.ValidationError{Field: "as", Reason: "must be buyer or seller"})
	}
	list, err := h.Orders.ListForUser(c.UserContext(), caller(c), as == "seller")
	if err != nil {
		return fail(c, "order.list", err)
	}
	return c.JSON(fiber.Map{"orders": list})
}

// GET /orders/:id
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "order", err)
	}
	o, err := h.Orders.Get(c.UserContext(), id, caller(c))
	if err != nil {
		return fail(c, "order", err)
	}
	return c.JSON(o)
}

type statusReq struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed shipped delivered cancelled"`
}

// PATCH /orders/:id/status
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "order.status", err)
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return fail(c, "order.status", err)
	}
	return h.transition(c, id, domain.OrderStatus(req.Status))
}

// POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "order.status", err)
	}
	return h.transition(c, id, domain.OrderCancelled)
}

func (h *OrderHandler) transition(c *fiber.Ctx, id string, next domain.OrderStatus) error {
	o, err := h.Orders.UpdateStatus(c.UserContext(), id, caller(c), next)
	if err != nil {
		return fail(c, "order.status", err)
	}
	applog.Audit(c, "order.status", map[string]any{"order_id": id, "status": string(next)})
	return c.JSON(o)
}

type paymentReq struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=pending paid refunded"`
}

// POST /orders/:id/payment
func (h *OrderHandler) RecordPayment(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "order.payment", err)
	}
	var req paymentReq
	if err := bind(c, &req); err != nil {
		return fail(c, "order.payment", err)
	}
	o, err := h.Orders.RecordPayment(c.UserContext(), id, caller(c), domain.PaymentStatus(req.PaymentStatus))
	if err != nil {
		return fail(c, "order.payment", err)
	}
	applog.Audit(c, "order.payment", map[string]any{"order_id": id, "payment_status": req.PaymentStatus})
	return c.JSON(o)
}
