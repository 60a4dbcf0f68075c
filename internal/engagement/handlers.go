package engagement

import (
	"github.com/damygoes/EcoStride-REST-API/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// RegisterActivityRoutes mounts the "act on activity" entry point and the
// likes listing on the activities group.
func RegisterActivityRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/:slug", authMiddleware, func(c *fiber.Ctx) error {
		actor, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		kind, err := Intent(c.QueryBool("addToBucketList"), c.QueryBool("alreadyCompleted"), c.QueryBool("like"))
		if err != nil {
			return err
		}
		rec, err := svc.Add(c.UserContext(), actor, c.Params("slug"), kind)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	r.Get("/:slug/likes", func(c *fiber.Ctx) error {
		likes, err := svc.Likes(c.UserContext(), c.Params("slug"))
		if err != nil {
			return err
		}
		return c.JSON(likes)
	})
}

// RegisterUserRoutes mounts the per-user collections on the users group.
func RegisterUserRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	for _, kind := range Kinds {
		r.Get("/:id/"+string(kind), authMiddleware, func(c *fiber.Ctx) error {
			actor, err := auth.IdentityFrom(c)
			if err != nil {
				return err
			}
			activities, err := svc.ListForUser(c.UserContext(), actor, c.Params("id"), kind, c.QueryBool("all"))
			if err != nil {
				return err
			}
			return c.JSON(activities)
		})

		r.Delete("/:id/"+string(kind)+"/:slug", authMiddleware, func(c *fiber.Ctx) error {
			actor, err := auth.IdentityFrom(c)
			if err != nil {
				return err
			}
			if err := svc.Remove(c.UserContext(), actor, c.Params("id"), kind, c.Params("slug")); err != nil {
				return err
			}
			return c.SendStatus(fiber.StatusNoContent)
		})
	}
}
