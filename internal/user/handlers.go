package user

import (
	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		users, err := svc.List(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(users)
	})

	// registered before /:id so "current-user" is not taken for an id
	r.Get("/current-user", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		u, err := svc.Current(c.UserContext(), actor)
		if err != nil {
			return err
		}
		return c.JSON(u)
	})

	r.Post("/", authMiddleware, auth.RequireAdmin, func(c *fiber.Ctx) error {
		var req CreateUserRequest
		if err := c.BodyParser(&req); err != nil {
			return apperror.ValidationFailed("", "invalid payload")
		}
		u, err := svc.Create(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(u)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		u, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(u)
	})

	r.Patch("/:id", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		var req UpdateUserRequest
		if err := c.BodyParser(&req); err != nil {
			return apperror.ValidationFailed("", "invalid payload")
		}
		u, err := svc.Update(c.UserContext(), actor, c.Params("id"), req)
		if err != nil {
			return err
		}
		return c.JSON(u)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), actor, c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/:id/profile", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		p, err := svc.GetProfile(c.UserContext(), actor, c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(p)
	})

	r.Put("/:id/profile", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		var req ProfileRequest
		if err := c.BodyParser(&req); err != nil {
			return apperror.ValidationFailed("", "invalid payload")
		}
		p, err := svc.PutProfile(c.UserContext(), actor, c.Params("id"), req)
		if err != nil {
			return err
		}
		return c.JSON(p)
	})

	r.Delete("/:id/profile", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		if err := svc.DeleteProfile(c.UserContext(), actor, c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
