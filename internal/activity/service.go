package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"
	"github.com/damygoes/EcoStride-REST-API/internal/db"
	"github.com/damygoes/EcoStride-REST-API/internal/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Service struct {
	db       db.Pool
	log      *logger.Logger
	validate *validator.Validate
}

func NewService(pool db.Pool, log *logger.Logger) *Service {
	return &Service{db: pool, log: log, validate: newValidator()}
}

// List returns activities matching every non-empty filter field.
func (s *Service) List(ctx context.Context, f Filter) ([]Activity, error) {
	activities, err := queryActivities(ctx, s.db, selectActivity+`
		WHERE ($1 = '' OR ad.city = $1)
		  AND ($2 = '' OR ad.state = $2)
		  AND ($3 = '' OR ad.country = $3)
		  AND ($4 = '' OR a.climb_category = $4)
		ORDER BY a.created_at DESC`, f.City, f.State, f.Country, f.ClimbCategory)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

func (s *Service) Get(ctx context.Context, slug string) (Activity, error) {
	return getBySlug(ctx, s.db, slug, false)
}

// ListByIDs hydrates activities referenced by other records.
func (s *Service) ListByIDs(ctx context.Context, ids []string) ([]Activity, error) {
	if len(ids) == 0 {
		return []Activity{}, nil
	}
	activities, err := queryActivities(ctx, s.db, selectActivity+`
		WHERE a.id::text = ANY($1)
		ORDER BY a.created_at DESC`, ids)
	if err != nil {
		return nil, fmt.Errorf("list activities by id: %w", err)
	}
	return activities, nil
}

// ListCreatedBy returns the activities a user created. Admins may pass
// all to list every activity.
func (s *Service) ListCreatedBy(ctx context.Context, actor auth.Identity, userID string, all bool) ([]Activity, error) {
	if all && actor.IsAdmin() {
		return s.List(ctx, Filter{})
	}
	if err := auth.Authorize(actor, userID); err != nil {
		return nil, err
	}
	activities, err := queryActivities(ctx, s.db, selectActivity+`
		WHERE a.created_by::text = $1
		ORDER BY a.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list created activities: %w", err)
	}
	return activities, nil
}

// Create validates p and stores it with its location rows in one transaction.
func (s *Service) Create(ctx context.Context, actor auth.Identity, p Payload) (Activity, error) {
	if err := s.Validate(p); err != nil {
		return Activity{}, err
	}
	a := newActivity(actor, p)
	if err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		return insertActivity(ctx, q, &a)
	}); err != nil {
		return Activity{}, s.storeError("create", err)
	}
	s.log.Info("activity created", "slug", a.Slug, "created_by", a.CreatedBy, "admin", a.IsCreatedByAdmin)
	return a, nil
}

// Seed creates many activities at once; one invalid or duplicate entry
// rejects the whole batch.
func (s *Service) Seed(ctx context.Context, actor auth.Identity, raws [][]byte) (int, error) {
	if len(raws) == 0 {
		return 0, apperror.ValidationFailed("activities", "activities must not be empty")
	}
	batch := make([]Activity, 0, len(raws))
	for i, raw := range raws {
		p, err := DecodePayload(raw)
		if err == nil {
			err = s.Validate(p)
		}
		if err != nil {
			return 0, indexed(i, err)
		}
		batch = append(batch, newActivity(actor, p))
	}

	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		for i := range batch {
			if err := insertActivity(ctx, q, &batch[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.storeError("seed", err)
	}
	s.log.Info("activities seeded", "count", len(batch), "by", actor.UserID)
	return len(batch), nil
}

// Update applies a patch to the activity at slug. The caller must own the
// activity or be an admin; that is checked before the payload is read.
func (s *Service) Update(ctx context.Context, actor auth.Identity, slug string, raw []byte) (Activity, error) {
	var updated Activity
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		current, err := getBySlug(ctx, q, slug, true)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, current.CreatedBy); err != nil {
			return err
		}

		patch, err := DecodePatch(raw)
		if err != nil {
			return err
		}
		merged := patch.Apply(payloadOf(current))
		if err := s.Validate(merged); err != nil {
			return err
		}

		next := fromPayload(merged)
		next.ID = current.ID
		next.Slug = current.Slug
		next.CreatedBy = current.CreatedBy
		next.IsCreatedByAdmin = current.IsCreatedByAdmin
		next.CreatedAt = current.CreatedAt
		if merged.Name != current.Name {
			next.Slug = Slugify(merged.Name)
			if err := ensureUnique(ctx, q, next.Slug, next.Name, current.ID); err != nil {
				return err
			}
		}

		if err := updateActivity(ctx, q, &next); err != nil {
			return err
		}
		if next.Slug != current.Slug {
			if err := repointComments(ctx, q, current.Slug, next.Slug); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return Activity{}, s.storeError("update", err)
	}
	if updated.Slug != slug {
		s.log.Info("activity renamed", "old_slug", slug, "slug", updated.Slug)
	}
	return updated, nil
}

// Delete removes the activity and every record depending on it. Either all
// of them go or none do.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, slug string) error {
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		var id, createdBy string
		err := q.QueryRow(ctx, `
			SELECT id::text, created_by::text FROM activities WHERE slug = $1 FOR UPDATE
		`, slug).Scan(&id, &createdBy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperror.NotFound("activity", slug)
			}
			return fmt.Errorf("lookup activity: %w", err)
		}
		if err := auth.Authorize(actor, createdBy); err != nil {
			return err
		}

		for _, step := range activityCascade {
			arg := id
			if step.bySlug {
				arg = slug
			}
			if _, err := q.Exec(ctx, step.sql, arg); err != nil {
				return apperror.Internal("could not delete activity", fmt.Errorf("delete %s: %w", step.name, err))
			}
		}
		return nil
	})
	if err != nil {
		return s.storeError("delete", err)
	}
	s.log.Info("activity deleted", "slug", slug, "by", actor.UserID)
	return nil
}

// storeError passes typed errors through and turns everything else into
// an internal error.
func (s *Service) storeError(op string, err error) error {
	if apperror.Typed(err) {
		if apperror.Status(err) >= 500 {
			s.log.Error("activity "+op+" failed", "error", err)
		}
		return err
	}
	s.log.Error("activity "+op+" failed", "error", err)
	return apperror.Internal("could not "+op+" activity", err)
}

func newActivity(actor auth.Identity, p Payload) Activity {
	a := fromPayload(p)
	a.ID = uuid.NewString()
	a.Slug = Slugify(p.Name)
	a.CreatedBy = actor.UserID
	a.IsCreatedByAdmin = actor.IsAdmin()
	return a
}

func fromPayload(p Payload) Activity {
	a := Activity{
		Name:            p.Name,
		Description:     p.Description,
		MinimumGrade:    p.MinimumGrade,
		MaximumGrade:    p.MaximumGrade,
		TimeToComplete:  p.TimeToComplete,
		DifficultyLevel: p.DifficultyLevel,
		ActivityType:    p.ActivityType,
		RouteType:       p.RouteType,
		ClimbCategory:   p.ClimbCategory,
		Photos:          p.Photos,
		Tags:            p.Tags,
		Address:         p.Address,
	}
	if p.Distance != nil {
		a.Distance = *p.Distance
	}
	if p.ElevationGain != nil {
		a.ElevationGain = *p.ElevationGain
	}
	if p.AverageGrade != nil {
		a.AverageGrade = *p.AverageGrade
	}
	if c := p.StartCoordinate; c != nil && c.Latitude != nil && c.Longitude != nil {
		a.StartCoordinate = &Coordinate{Latitude: *c.Latitude, Longitude: *c.Longitude}
	}
	if c := p.EndCoordinate; c != nil && c.Latitude != nil && c.Longitude != nil {
		a.EndCoordinate = &Coordinate{Latitude: *c.Latitude, Longitude: *c.Longitude}
	}
	a.fillDerived()
	return a
}

func indexed(i int, err error) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return err
	}
	field := fmt.Sprintf("activities[%d]", i)
	if appErr.Field != "" {
		field += "." + appErr.Field
	}
	return apperror.ValidationFailed(field, fmt.Sprintf("%s: %s", field, appErr.Message))
}
