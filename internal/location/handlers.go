package location

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		var req Fix
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.UserID = userID
		fix, err := svc.Record(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fix)
	})

	r.Get("/fixes/latest/:userID", authMiddleware, func(c *fiber.Ctx) error {
		fix, err := svc.Latest(c.Context(), c.Params("userID"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "no location fix")
		}
		return c.JSON(fix)
	})

	r.Get("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit"))
		fixes, err := svc.History(c.Context(), userID, limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fixes)
	})
}
