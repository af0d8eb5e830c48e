package profile

import (
	"errors"

	"github.com/tsullivan13/skate-bounty-app/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		p, err := svc.Get(c.Context(), auth.UserID(c))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return c.JSON(nil)
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(p)
	})

	r.Put("/me/handle", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Handle string `json:"handle"`
		}
		if err := c.BodyParser(&body); err != nil || body.Handle == "" {
			return fiber.NewError(fiber.StatusBadRequest, "handle required")
		}
		p, err := svc.UpsertHandle(c.Context(), auth.UserID(c), body.Handle)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidHandle):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, ErrHandleTaken):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(p)
	})

	r.Post("/lookup", func(c *fiber.Ctx) error {
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		profiles, err := svc.Lookup(c.Context(), body.IDs)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(profiles)
	})
}
