package contact

import (
	"errors"

	"github.com/jensenyang2004/Safii-sub000/internal/remote"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, records *remote.Repository, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		var req Contact
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.ContactID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "contact_id required")
		}
		req.UserID = userID
		added, err := svc.Add(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(added)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		contacts, err := svc.List(c.Context(), userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(contacts)
	})

	r.Delete("/:contactID", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if err := svc.Remove(c.Context(), userID, c.Params("contactID")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/token", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		var req struct {
			PushToken string `json:"push_token"`
		}
		if err := c.BodyParser(&req); err != nil || req.PushToken == "" {
			return fiber.NewError(fiber.StatusBadRequest, "push_token required")
		}
		if err := svc.SetPushToken(c.Context(), userID, req.PushToken); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	r.Post("/acknowledge", authMiddleware, func(c *fiber.Ctx) error {
		contactID, _ := c.Locals("user_id").(string)
		var req struct {
			RecordID string `json:"record_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.RecordID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "record_id required")
		}
		if err := records.Acknowledge(c.Context(), req.RecordID, contactID); err != nil {
			if errors.Is(err, remote.ErrUnknownContact) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"status": "acknowledged"})
	})
}
