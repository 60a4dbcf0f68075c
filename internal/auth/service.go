package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/damygoes/EcoStride-REST-API/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour

	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var errTokenInvalid = errors.New("token invalid")

type Service struct {
	secret      []byte
	db          db.Querier
	revocations *Revocations
}

func NewService(secret string, q db.Querier, revocations *Revocations) *Service {
	return &Service{
		secret:      []byte(secret),
		db:          q,
		revocations: revocations,
	}
}

// GenerateTokens issues an access/refresh pair. The refresh token's jti is
// persisted so it can be rotated and revoked.
func (s *Service) GenerateTokens(ctx context.Context, userID string) (TokenResponse, error) {
	access, _, err := s.signToken(userID, tokenAccess, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, refreshID, err := s.signToken(userID, tokenRefresh, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, expires_at)
		VALUES ($1,$2,$3)
	`, refreshID, userID, time.Now().Add(refreshTokenTTL)); err != nil {
		return TokenResponse{}, fmt.Errorf("save refresh token: %w", err)
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateAccessToken checks signature, expiry, type and revocation.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parseToken(token, tokenAccess)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, errors.New("token revoked")
	}
	return claims, nil
}

// Refresh consumes a refresh token and returns a new pair.
func (s *Service) Refresh(ctx context.Context, token string) (TokenResponse, error) {
	claims, err := s.parseToken(token, tokenRefresh)
	if err != nil {
		return TokenResponse{}, err
	}

	var userID string
	var expiresAt time.Time
	err = s.db.QueryRow(ctx, `
		SELECT user_id, expires_at
		FROM refresh_tokens
		WHERE id = $1 AND revoked_at IS NULL
	`, claims.ID).Scan(&userID, &expiresAt)
	if err != nil || userID != claims.UserID || time.Now().After(expiresAt) {
		return TokenResponse{}, errors.New("refresh token invalid")
	}

	if err := s.revokeRefresh(ctx, claims.ID); err != nil {
		return TokenResponse{}, err
	}
	return s.GenerateTokens(ctx, userID)
}

// Logout revokes the access token until it expires and, when given, the
// refresh token.
func (s *Service) Logout(ctx context.Context, access *Claims, refreshToken string) error {
	if access != nil && access.ExpiresAt != nil {
		if err := s.revocations.Revoke(ctx, access.ID, access.ExpiresAt.Time); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.parseToken(refreshToken, tokenRefresh)
	if err != nil {
		// already unusable
		return nil
	}
	return s.revokeRefresh(ctx, claims.ID)
}

func (s *Service) revokeRefresh(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, id); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *Service) signToken(userID, tokenType string, ttl time.Duration) (string, string, error) {
	jti := uuid.NewString()
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// parseToken accepts only tokens of the given type, so a refresh token can
// never authenticate a request.
func (s *Service) parseToken(token, tokenType string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" || claims.TokenType != tokenType {
		return nil, errTokenInvalid
	}
	return claims, nil
}
