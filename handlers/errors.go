// handlers/errors.go
package handlers

import (
	"errors"
	"log"

	"pvp-duel-engine/models"

	"github.com/gofiber/fiber/v2"
)

// respondError maps engine errors to HTTP. Bodies carry machine codes only.
func respondError(c *fiber.Ctx, err error) error {
	var de *models.DuelError
	if !errors.As(err, &de) {
		log.Printf("❌ [DUEL] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal",
			"kind":  models.KindFatal,
		})
	}

	status := fiber.StatusInternalServerError
	body := fiber.Map{"error": de.Code, "kind": de.Kind}
	switch de.Kind {
	case models.KindValidation:
		status = fiber.StatusBadRequest
	case models.KindTransition:
		status = fiber.StatusConflict
		if errors.Is(err, models.ErrNotParticipant) || errors.Is(err, models.ErrNotTarget) {
			status = fiber.StatusForbidden
		}
	case models.KindConcurrency:
		status = fiber.StatusConflict
		body["retryable"] = true
	case models.KindNotFound:
		status = fiber.StatusNotFound
	default:
		log.Printf("❌ [DUEL] %s %s contract violation: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(body)
}
