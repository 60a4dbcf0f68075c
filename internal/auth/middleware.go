package auth

import (
	"errors"
	"strings"

	"github.com/damygoes/EcoStride-REST-API/internal/apperror"

	"github.com/gofiber/fiber/v2"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// Middleware validates the caller's access token and resolves their current
// role from the user store. The result is read back with IdentityFrom.
func Middleware(svc *Service, users UserStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := tokenFromRequest(c)
		if token == "" {
			return apperror.Unauthenticated("missing access token")
		}

		claims, err := svc.ValidateAccessToken(c.UserContext(), token)
		if err != nil {
			return apperror.Unauthenticated(err.Error())
		}

		role, err := users.RoleOf(c.UserContext(), claims.UserID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.Unauthenticated("user no longer exists")
			}
			return err
		}

		SetIdentity(c, Identity{UserID: claims.UserID, Role: role})
		c.Locals(localClaims, claims)
		return c.Next()
	}
}

func tokenFromRequest(c *fiber.Ctx) string {
	if token := bearerFromHeader(c.Get(fiber.HeaderAuthorization)); token != "" {
		return token
	}
	return c.Cookies(accessCookie)
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
