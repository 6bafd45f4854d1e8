package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"agrobulk/internal/services"
	"agrobulk/internal/validate"
)

type CatalogHandler struct {
	Catalog *services.CatalogService
}

// GET /products/:id
func (h *CatalogHandler) Product(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "product", err)
	}
	p, err := h.Catalog.GetProduct(c.UserContext(), id)
	if err != nil {
		return fail(c, "product", err)
	}
	return c.JSON(p)
}

// GET /products/:id/quote?quantity=n
func (h *CatalogHandler) Quote(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "product.quote", err)
	}
	qty, err := strconv.Atoi(strings.TrimSpace(c.Query("quantity")))
	if err != nil {
		return fail(c, "product.quote", &services.ValidationError{Field: "quantity", Reason: "must be a whole number"})
	}
	q, err := h.Catalog.Quote(c.UserContext(), id, qty)
	if err != nil {
		return fail(c, "product.quote", err)
	}
	return c.JSON(fiber.Map{"quote": q, "total": q.Total()})
}

// GET /availability?productId=
func (h *CatalogHandler) Availability(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Query("productId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "ValidationError", "message": "missing productId",
		})
	}
	a, err := h.Catalog.CheckAvailability(c.UserContext(), id)
	if err != nil {
		return fail(c, "availability", err)
	}
	return c.JSON(a)
}
