package auth

import (
	"time"

	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const stateCookie = "oauthState"

// CookieOptions controls how tokens are handed to browsers.
type CookieOptions struct {
	Secure      bool
	RedirectURI string
}

type handler struct {
	svc      *Service
	provider Provider
	users    UserStore
	cookies  CookieOptions
	log      *logger.Logger
}

func RegisterRoutes(r fiber.Router, svc *Service, provider Provider, users UserStore, cookies CookieOptions, log *logger.Logger) {
	h := &handler{svc: svc, provider: provider, users: users, cookies: cookies, log: log}
	authMiddleware := Middleware(svc, users)

	r.Get("/google", h.googleLogin)
	r.Get("/google/callback", h.googleCallback)
	r.Post("/refresh", h.refresh)
	r.Get("/jwt/verify", authMiddleware, h.verify)
	r.Post("/logout", authMiddleware, h.logout)
}

func (h *handler) googleLogin(c *fiber.Ctx) error {
	state := uuid.NewString()
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(h.provider.AuthURL(state), fiber.StatusTemporaryRedirect)
}

func (h *handler) googleCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" || state != c.Cookies(stateCookie) {
		return apperror.Unauthenticated("invalid oauth state")
	}
	code := c.Query("code")
	if code == "" {
		return apperror.Unauthenticated("missing authorization code")
	}

	profile, err := h.provider.Exchange(c.UserContext(), code)
	if err != nil {
		h.log.Warn("google exchange failed", "error", err)
		return apperror.Unauthenticated("identity verification failed")
	}

	userID, err := h.users.UpsertGoogleUser(c.UserContext(), profile)
	if err != nil {
		return err
	}

	tokens, err := h.svc.GenerateTokens(c.UserContext(), userID)
	if err != nil {
		return apperror.Internal("could not issue tokens", err)
	}

	h.log.Info("user signed in", "user_id", userID)
	c.ClearCookie(stateCookie)
	h.setTokenCookies(c, tokens)
	return c.Redirect(h.cookies.RedirectURI, fiber.StatusFound)
}

func (h *handler) refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperror.ValidationFailed("refreshToken", "invalid payload")
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken = c.Cookies(refreshCookie)
	}
	if req.RefreshToken == "" {
		return apperror.ValidationFailed("refreshToken", "refreshToken is required")
	}

	tokens, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return apperror.Unauthenticated(err.Error())
	}
	h.setTokenCookies(c, tokens)
	return c.JSON(tokens)
}

func (h *handler) verify(c *fiber.Ctx) error {
	id, err := IdentityFrom(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"userId": id.UserID, "role": id.Role})
}

func (h *handler) logout(c *fiber.Ctx) error {
	claims, _ := c.Locals(localClaims).(*Claims)
	if err := h.svc.Logout(c.UserContext(), claims, c.Cookies(refreshCookie)); err != nil {
		return apperror.Internal("logout failed", err)
	}
	c.ClearCookie(accessCookie, refreshCookie)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handler) setTokenCookies(c *fiber.Ctx, tokens TokenResponse) {
	now := time.Now()
	c.Cookie(&fiber.Cookie{
		Name:     accessCookie,
		Value:    tokens.AccessToken,
		Expires:  now.Add(accessTokenTTL),
		HTTPOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookie,
		Value:    tokens.RefreshToken,
		Expires:  now.Add(refreshTokenTTL),
		HTTPOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
