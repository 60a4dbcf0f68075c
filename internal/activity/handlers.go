package activity

import (
	"encoding/json"
	"fmt"

	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		activities, err := svc.List(c.UserContext(), Filter{
			City:          c.Query("city"),
			State:         c.Query("state"),
			Country:       c.Query("country"),
			ClimbCategory: c.Query("category"),
		})
		if err != nil {
			return err
		}
		return c.JSON(activities)
	})

	r.Get("/:slug", func(c *fiber.Ctx) error {
		a, err := svc.Get(c.UserContext(), c.Params("slug"))
		if err != nil {
			return err
		}
		return c.JSON(a)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		p, err := DecodePayload(c.Body())
		if err != nil {
			return err
		}
		a, err := svc.Create(c.UserContext(), actor, p)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(a)
	})

	r.Patch("/:slug", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		a, err := svc.Update(c.UserContext(), actor, c.Params("slug"), c.Body())
		if err != nil {
			return err
		}
		return c.JSON(a)
	})

	r.Delete("/:slug", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), actor, c.Params("slug")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// RegisterUserRoutes mounts the per-user activity listing on the users group.
func RegisterUserRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/:id/my-activities", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		activities, err := svc.ListCreatedBy(c.UserContext(), actor, c.Params("id"), c.QueryBool("all"))
		if err != nil {
			return err
		}
		return c.JSON(activities)
	})
}

// RegisterAdminRoutes mounts bulk seeding; admins only.
func RegisterAdminRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/activities/seed", authMiddleware, auth.RequireAdmin, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		var req SeedRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return apperror.ValidationFailed("activities", "activities must be an array of activities")
		}
		raws := make([][]byte, len(req.Activities))
		for i, raw := range req.Activities {
			raws[i] = raw
		}
		n, err := svc.Seed(c.UserContext(), actor, raws)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": fmt.Sprintf("%d activities created successfully.", n),
			"count":   n,
		})
	})
}
