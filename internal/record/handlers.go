package record

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/result_save", func(c *fiber.Ctx) error {
		var req Result
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := Validate(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		saved, err := svc.Save(c.Context(), req)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(saved)
	})

	r.Get("/results/:userId", func(c *fiber.Ctx) error {
		results, err := svc.ListByUser(c.Context(), c.Params("userId"))
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		if results == nil {
			results = []SavedResult{}
		}
		return c.JSON(results)
	})
}

func statusFor(err error) int {
	if errors.Is(err, ErrNoDatabase) {
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
