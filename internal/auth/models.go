package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// GoogleUser is the subset of the userinfo response used to provision accounts.
type GoogleUser struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

// UserStore resolves and provisions the accounts behind a token.
type UserStore interface {
	RoleOf(ctx context.Context, userID string) (string, error)
	UpsertGoogleUser(ctx context.Context, u GoogleUser) (string, error)
}

// Provider is an external identity provider using the authorization code flow.
type Provider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (GoogleUser, error)
}
