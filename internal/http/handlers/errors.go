package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	applog "agrobulk/internal/log"
	"agrobulk/internal/services"
	"agrobulk/internal/validate"
)

var kindStatus = map[string]int{
	"NotFound":               fiber.StatusNotFound,
	"Forbidden":              fiber.StatusForbidden,
	"InvalidState":           fiber.StatusConflict,
	"InvalidTransition":      fiber.StatusConflict,
	"CapacityExceeded":       fiber.StatusConflict,
	"InsufficientStock":      fiber.StatusConflict,
	"DeadlinePassed":         fiber.StatusConflict,
	"DuplicateParticipation": fiber.StatusConflict,
	"NoParticipations":       fiber.StatusConflict,
	"ValidationError":        fiber.StatusBadRequest,
}

// fail writes err as a JSON error. Unexpected errors are logged and hidden.
func fail(c *fiber.Ctx, action string, err error) error {
	kind := services.Kind(err)
	status, known := kindStatus[kind]
	if !known {
		c.Status(fiber.StatusInternalServerError)
		applog.Error(c, action+".fail", err, nil)
		return c.JSON(fiber.Map{"error": "Internal", "message": "Something went wrong. Please try again."})
	}

	c.Status(status)
	if kind == "Forbidden" {
		applog.Security(c, "access.denied."+action, map[string]any{"reason": err.Error()})
	}
	body := fiber.Map{"error": kind, "message": err.Error()}
	var capErr *services.CapacityError
	if errors.As(err, &capErr) {
		body["remaining"] = capErr.Remaining
	}
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
	}
	return c.JSON(body)
}

// bind parses the JSON body into dst and validates it.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return &services.ValidationError{Field: "body", Reason: "must be a JSON object"}
	}
	if err := validate.Struct(dst); err != nil {
		var fe *validate.FieldError
		if errors.As(err, &fe) {
			return &services.ValidationError{Field: fe.Field, Reason: fe.Reason}
		}
		return err
	}
	return nil
}

// pathID reads and checks a path parameter.
func pathID(c *fiber.Ctx, name string) (string, error) {
	id, ok := validate.ID(c.Params(name))
	if !ok {
		return "", &services.ValidationError{Field: name, Reason: "must be a short identifier"}
	}
	return id, nil
}

// ErrorHandler is the app-level fallback for errors no handler mapped.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"error": "Request", "message": fe.Message})
	}
	applog.Error(c, "server.error", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "Internal",
		"message": "Something went wrong. Please try again.",
	})
}
