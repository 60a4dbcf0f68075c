package comment

import (
	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts comment CRUD under /activities/:slug/comments.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/:slug/comments", func(c *fiber.Ctx) error {
		comments, err := svc.List(c.UserContext(), c.Params("slug"))
		if err != nil {
			return err
		}
		return c.JSON(comments)
	})

	r.Get("/:slug/comments/:id", func(c *fiber.Ctx) error {
		comment, err := svc.Get(c.UserContext(), c.Params("slug"), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(comment)
	})

	r.Post("/:slug/comments", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return apperror.ValidationFailed("", "invalid payload")
		}
		comment, err := svc.Create(c.UserContext(), actor, c.Params("slug"), req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(comment)
	})

	r.Patch("/:slug/comments/:id", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		var req UpdateRequest
		if err := c.BodyParser(&req); err != nil {
			return apperror.ValidationFailed("", "invalid payload")
		}
		comment, err := svc.Update(c.UserContext(), actor, c.Params("slug"), c.Params("id"), req)
		if err != nil {
			return err
		}
		return c.JSON(comment)
	})

	r.Delete("/:slug/comments/:id", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), actor, c.Params("slug"), c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
