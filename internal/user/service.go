package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"
	"github.com/damygoes/EcoStride-REST-API/internal/db"
	"github.com/damygoes/EcoStride-REST-API/internal/logger"
	"github.com/damygoes/EcoStride-REST-API/internal/shared/validation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const selectUser = `
	SELECT u.id, u.email, u.first_name, u.last_name, u.avatar, u.role, u.created_at, u.updated_at,
	       p.bio, p.age, p.ftp, p.bike_weight, p.body_weight, p.created_at, p.updated_at
	FROM users u
	LEFT JOIN user_profiles p ON p.user_id = u.id`

type Service struct {
	db       db.Pool
	log      *logger.Logger
	validate *validator.Validate
}

func NewService(pool db.Pool, log *logger.Logger) *Service {
	return &Service{db: pool, log: log, validate: validation.New()}
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx, selectUser+` ORDER BY u.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id))
	if missing(err) {
		return User{}, apperror.NotFound("user", id)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Service) Current(ctx context.Context, actor auth.Identity) (User, error) {
	return s.Get(ctx, actor.UserID)
}

// Create inserts a user directly, bypassing the OAuth flow.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(s.validate, req); err != nil {
		return User{}, err
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}

	u := User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Avatar:    req.Avatar,
		Role:      req.Role,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, first_name, last_name, avatar, role)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.FirstName, u.LastName, u.Avatar, u.Role).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return User{}, apperror.Conflict("user", u.Email)
	}
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Identity, id string, req UpdateUserRequest) (User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := auth.Authorize(actor, u.ID); err != nil {
		return User{}, err
	}
	if err := validation.Struct(s.validate, req); err != nil {
		return User{}, err
	}
	if req.Role != nil && *req.Role != u.Role && !actor.IsAdmin() {
		return User{}, apperror.Forbidden("only admins can change roles")
	}

	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if req.Avatar != nil {
		u.Avatar = *req.Avatar
	}
	if req.Role != nil {
		u.Role = *req.Role
	}

	err = s.db.QueryRow(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, avatar = $5, role = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, u.ID, u.Email, u.FirstName, u.LastName, u.Avatar, u.Role).Scan(&u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return User{}, apperror.Conflict("user", u.Email)
	}
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// userCascade removes everything that exists only for the user. Replies to
// the user's comments go with them; the user's own replies are unlinked
// from their parents first.
var userCascade = []struct {
	name string
	sql  string
}{
	{"reply links", `
		UPDATE comments c
		SET reply_ids = ARRAY(
			SELECT rid FROM unnest(c.reply_ids) AS rid
			WHERE rid NOT IN (SELECT id::text FROM replies WHERE user_id = $1)
		)
		WHERE c.id IN (SELECT parent_id FROM replies WHERE user_id = $1)`},
	{"replies", `DELETE FROM replies WHERE user_id = $1 OR parent_id IN (SELECT id FROM comments WHERE user_id = $1)`},
	{"comments", `DELETE FROM comments WHERE user_id = $1`},
	{"bucket list", `DELETE FROM bucket_list WHERE user_id = $1`},
	{"done activities", `DELETE FROM done_activities WHERE user_id = $1`},
	{"likes", `DELETE FROM likes WHERE user_id = $1`},
	{"refresh tokens", `DELETE FROM refresh_tokens WHERE user_id = $1`},
	{"profile", `DELETE FROM user_profiles WHERE user_id = $1`},
	{"user", `DELETE FROM users WHERE id = $1`},
}

// Delete removes a user and every record owned by them in one transaction.
// Users who still own activities must hand them over or delete them first.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id string) error {
	if err := auth.Authorize(actor, id); err != nil {
		return err
	}
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		var exists, ownsActivities bool
		if err := q.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM users WHERE id = $1),
			       EXISTS(SELECT 1 FROM activities WHERE created_by = $1)
		`, id).Scan(&exists, &ownsActivities); err != nil {
			if db.IsInvalidText(err) {
				return apperror.NotFound("user", id)
			}
			return fmt.Errorf("lookup user: %w", err)
		}
		if !exists {
			return apperror.NotFound("user", id)
		}
		if ownsActivities {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: "user still owns activities"}
		}
		for _, step := range userCascade {
			if _, err := q.Exec(ctx, step.sql, id); err != nil {
				return apperror.Internal("could not delete user", fmt.Errorf("delete %s: %w", step.name, err))
			}
		}
		return nil
	})
	if err != nil {
		if !apperror.Typed(err) {
			return apperror.Internal("could not delete user", err)
		}
		if errors.Is(err, apperror.ErrInternal) {
			s.log.Error("user cascade failed", "user_id", id, "error", err)
		}
		return err
	}
	s.log.Info("user deleted", "user_id", id, "by", actor.UserID)
	return nil
}

// RoleOf returns the current role of a user.
func (s *Service) RoleOf(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if missing(err) {
		return "", apperror.NotFound("user", userID)
	}
	if err != nil {
		return "", fmt.Errorf("lookup role: %w", err)
	}
	return role, nil
}

// UpsertGoogleUser provisions a USER account on first sign-in and links the
// Google subject to an existing account with the same email.
func (s *Service) UpsertGoogleUser(ctx context.Context, g auth.GoogleUser) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (id, google_id, email, first_name, last_name, avatar, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (email) DO UPDATE
		SET google_id = EXCLUDED.google_id, avatar = EXCLUDED.avatar, updated_at = now()
		RETURNING id
	`, uuid.NewString(), g.Sub, strings.ToLower(g.Email), g.GivenName, g.FamilyName, g.Picture, auth.RoleUser).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert google user: %w", err)
	}
	return id, nil
}

func (s *Service) GetProfile(ctx context.Context, actor auth.Identity, userID string) (Profile, error) {
	if err := auth.Authorize(actor, userID); err != nil {
		return Profile{}, err
	}
	var p Profile
	err := s.db.QueryRow(ctx, `
		SELECT bio, age, ftp, bike_weight, body_weight, created_at, updated_at
		FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&p.Bio, &p.Age, &p.FTP, &p.BikeWeight, &p.BodyWeight, &p.CreatedAt, &p.UpdatedAt)
	if missing(err) {
		return Profile{}, apperror.NotFound("profile", userID)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// PutProfile creates or replaces the user's profile.
func (s *Service) PutProfile(ctx context.Context, actor auth.Identity, userID string, req ProfileRequest) (Profile, error) {
	if err := auth.Authorize(actor, userID); err != nil {
		return Profile{}, err
	}
	if err := validation.Struct(s.validate, req); err != nil {
		return Profile{}, err
	}
	if _, err := s.RoleOf(ctx, userID); err != nil {
		return Profile{}, err
	}

	p := Profile{Bio: req.Bio, Age: req.Age, FTP: req.FTP, BikeWeight: req.BikeWeight, BodyWeight: req.BodyWeight}
	err := s.db.QueryRow(ctx, `
		INSERT INTO user_profiles (user_id, bio, age, ftp, bike_weight, body_weight)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id) DO UPDATE
		SET bio = EXCLUDED.bio, age = EXCLUDED.age, ftp = EXCLUDED.ftp,
		    bike_weight = EXCLUDED.bike_weight, body_weight = EXCLUDED.body_weight, updated_at = now()
		RETURNING created_at, updated_at
	`, userID, p.Bio, p.Age, p.FTP, p.BikeWeight, p.BodyWeight).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("put profile: %w", err)
	}
	return p, nil
}

func (s *Service) DeleteProfile(ctx context.Context, actor auth.Identity, userID string) error {
	if err := auth.Authorize(actor, userID); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID)
	if db.IsInvalidText(err) {
		return apperror.NotFound("profile", userID)
	}
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("profile", userID)
	}
	return nil
}

// missing treats ids that are not valid uuids like ids with no row.
func missing(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || db.IsInvalidText(err)
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var (
		bio                            pgtype.Text
		age                            pgtype.Int4
		ftp, bikeWeight, bodyWeight    pgtype.Float8
		profileCreated, profileUpdated pgtype.Timestamptz
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Avatar, &u.Role, &u.CreatedAt, &u.UpdatedAt,
		&bio, &age, &ftp, &bikeWeight, &bodyWeight, &profileCreated, &profileUpdated); err != nil {
		return User{}, err
	}
	if profileCreated.Valid {
		u.Profile = &Profile{
			Bio:        bio.String,
			Age:        int(age.Int32),
			FTP:        ftp.Float64,
			BikeWeight: bikeWeight.Float64,
			BodyWeight: bodyWeight.Float64,
			CreatedAt:  profileCreated.Time,
			UpdatedAt:  profileUpdated.Time,
		}
	}
	return u, nil
}
