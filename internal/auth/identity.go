package auth

import (
	"github.com/damygoes/EcoStride-REST-API/internal/apperror"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID = "user_id"
	localRole   = "role"
	localClaims = "claims"
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanModify reports whether the caller owns the resource or is an admin.
func (i Identity) CanModify(ownerID string) bool {
	return i.IsAdmin() || (i.UserID != "" && i.UserID == ownerID)
}

// Authorize returns a Forbidden error unless the caller may modify a
// resource owned by ownerID.
func Authorize(actor Identity, ownerID string) error {
	if !actor.CanModify(ownerID) {
		return apperror.Forbidden("you are not allowed to modify this resource")
	}
	return nil
}

// SetIdentity stores the resolved caller on the request.
func SetIdentity(c *fiber.Ctx, id Identity) {
	c.Locals(localUserID, id.UserID)
	c.Locals(localRole, id.Role)
}

// IdentityFrom reads the identity stored by Middleware.
func IdentityFrom(c *fiber.Ctx) (Identity, error) {
	userID, _ := c.Locals(localUserID).(string)
	if userID == "" {
		return Identity{}, apperror.Unauthenticated("authentication required")
	}
	role, _ := c.Locals(localRole).(string)
	return Identity{UserID: userID, Role: role}, nil
}

// RequireAdmin rejects callers without the ADMIN role. It must run after Middleware.
func RequireAdmin(c *fiber.Ctx) error {
	id, err := IdentityFrom(c)
	if err != nil {
		return err
	}
	if !id.IsAdmin() {
		return apperror.Forbidden("admin role required")
	}
	return c.Next()
}
