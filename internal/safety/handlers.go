package safety

import (
	"errors"

	"github.com/jensenyang2004/Safii-sub000/internal/notify"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, eng *Engine, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		userID := localUserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user not resolved")
		}
		var req StartParams
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if len(req.ContactIDs) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "contact_ids required")
		}
		state, err := eng.Start(c.Context(), userID, req)
		if err != nil {
			return statusError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(state)
	})

	r.Post("/sessions/report", authMiddleware, func(c *fiber.Ctx) error {
		userID := localUserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user not resolved")
		}
		state, err := eng.ReportSafety(c.Context(), userID)
		if err != nil {
			return statusError(err)
		}
		return c.JSON(state)
	})

	r.Post("/sessions/stop", authMiddleware, func(c *fiber.Ctx) error {
		userID := localUserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user not resolved")
		}
		var req struct {
			Reason StopReason `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Reason == "" {
			req.Reason = StopUser
		}
		if err := eng.Stop(c.Context(), userID, req.Reason); err != nil {
			return statusError(err)
		}
		return c.JSON(fiber.Map{"phase": PhaseIdle})
	})

	r.Get("/sessions/state", authMiddleware, func(c *fiber.Ctx) error {
		userID := localUserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user not resolved")
		}
		state, err := eng.Reconcile(c.Context(), userID)
		if err != nil {
			return statusError(err)
		}
		return c.JSON(state)
	})

	r.Post("/notifications/fired", authMiddleware, func(c *fiber.Ctx) error {
		userID := localUserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user not resolved")
		}
		var payload notify.Payload
		if err := c.BodyParser(&payload); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		state, err := eng.HandleNotification(c.Context(), userID, payload)
		if err != nil {
			return statusError(err)
		}
		return c.JSON(state)
	})
}

func localUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrSessionActive), errors.Is(err, ErrEmergencyLocked):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrNoSession):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
