package bounty

import (
	"errors"
	"time"

	"github.com/tsullivan13/skate-bounty-app/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, optionalAuth fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		b, err := svc.Create(c.Context(), auth.UserID(c), req)
		if err != nil {
			switch {
			case errors.Is(err, ErrTrickRequired), errors.Is(err, ErrRewardKind),
				errors.Is(err, ErrRewardAmount), errors.Is(err, ErrRewardText):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(b)
	})

	r.Get("/", optionalAuth, func(c *fiber.Ctx) error {
		filter := FeedFilter{
			Status: c.Query("status"),
			Query:  c.Query("q"),
		}
		if c.Query("mine") == "true" {
			userID := auth.UserID(c)
			if userID == "" {
				return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
			}
			filter.UserID = userID
		}
		bounties, err := svc.Feed(c.Context(), filter)
		if err != nil {
			if errors.Is(err, ErrInvalidStatus) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		now := time.Now()
		for i := range bounties {
			bounties[i].Status = bounties[i].DerivedStatus(now)
		}
		return c.JSON(bounties)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		b, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "bounty not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		b.Status = b.DerivedStatus(time.Now())
		return c.JSON(b)
	})

	r.Post("/:id/close", authMiddleware, func(c *fiber.Ctx) error {
		b, err := svc.Close(c.Context(), c.Params("id"), auth.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				return fiber.NewError(fiber.StatusNotFound, "bounty not found")
			case errors.Is(err, ErrNotOwner):
				return fiber.NewError(fiber.StatusForbidden, err.Error())
			case errors.Is(err, ErrAlreadyClosed):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(b)
	})
}
