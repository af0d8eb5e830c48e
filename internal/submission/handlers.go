package submission

import (
	"errors"

	"github.com/tsullivan13/skate-bounty-app/internal/auth"
	"github.com/tsullivan13/skate-bounty-app/internal/instagram"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

// RegisterBountyRoutes mounts the acceptance/submission surface under the
// bounty resource: accept, submit proof, list proofs, per-user status.
func RegisterBountyRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/:id/accept", authMiddleware, func(c *fiber.Ctx) error {
		a, err := svc.Accept(c.Context(), c.Params("id"), auth.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrAlreadyAccepted):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, pgx.ErrNoRows):
				return fiber.NewError(fiber.StatusNotFound, "bounty not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(a)
	})

	r.Post("/:id/submissions", authMiddleware, func(c *fiber.Ctx) error {
		var req SubmitInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sub, err := svc.SubmitProof(c.Context(), c.Params("id"), auth.UserID(c), req)
		if err != nil {
			switch {
			case errors.Is(err, instagram.ErrURLRequired),
				errors.Is(err, instagram.ErrNotInstagram),
				errors.Is(err, instagram.ErrNotPostURL),
				errors.Is(err, instagram.ErrMalformedURL),
				errors.Is(err, ErrInvalidPostedAt),
				errors.Is(err, ErrPostedAtRequired):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, ErrAcceptanceRequired),
				errors.Is(err, ErrAlreadySubmitted),
				errors.Is(err, ErrPostedBeforeBounty):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, pgx.ErrNoRows):
				return fiber.NewError(fiber.StatusNotFound, "bounty not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(sub)
	})

	r.Get("/:id/submissions", func(c *fiber.Ctx) error {
		list, err := svc.List(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(list)
	})

	r.Get("/:id/me", authMiddleware, func(c *fiber.Ctx) error {
		status, err := svc.Status(c.Context(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(status)
	})
}

// RegisterSubmissionRoutes mounts the vote surface and the caller's own
// submission list under the submission resource.
func RegisterSubmissionRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/mine", authMiddleware, func(c *fiber.Ctx) error {
		list, err := svc.ListByUser(c.Context(), auth.UserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(list)
	})

	r.Post("/:id/votes", authMiddleware, func(c *fiber.Ctx) error {
		tally, err := svc.Vote(c.Context(), c.Params("id"), auth.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrAlreadyVoted):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, pgx.ErrNoRows):
				return fiber.NewError(fiber.StatusNotFound, "submission not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(tally)
	})

	r.Delete("/:id/votes", authMiddleware, func(c *fiber.Ctx) error {
		tally, err := svc.Unvote(c.Context(), c.Params("id"), auth.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrNotVoted):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, pgx.ErrNoRows):
				return fiber.NewError(fiber.StatusNotFound, "submission not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(tally)
	})
}
