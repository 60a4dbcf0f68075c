package engagement

import (
	"context"
	"errors"
	"fmt"

	"github.com/damygoes/EcoStride-REST-API/internal/activity"
	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"
	"github.com/damygoes/EcoStride-REST-API/internal/db"
	"github.com/damygoes/EcoStride-REST-API/internal/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ActivityLister hydrates activity ids into full activities.
type ActivityLister interface {
	ListByIDs(ctx context.Context, ids []string) ([]activity.Activity, error)
}

type Service struct {
	db         db.Querier
	activities ActivityLister
	log        *logger.Logger
}

func NewService(q db.Querier, activities ActivityLister, log *logger.Logger) *Service {
	return &Service{db: q, activities: activities, log: log}
}

// Intent picks the collection an "act on activity" call targets. Exactly one
// flag must be set.
func Intent(addToBucketList, alreadyCompleted, like bool) (Kind, error) {
	var kinds []Kind
	if addToBucketList {
		kinds = append(kinds, BucketList)
	}
	if alreadyCompleted {
		kinds = append(kinds, Done)
	}
	if like {
		kinds = append(kinds, Like)
	}
	if len(kinds) != 1 {
		return "", apperror.ValidationFailed("", "exactly one of addToBucketList, alreadyCompleted or like must be true")
	}
	return kinds[0], nil
}

func (s *Service) activityID(ctx context.Context, slug string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `SELECT id::text FROM activities WHERE slug = $1`, slug).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperror.NotFound("activity", slug)
	}
	if err != nil {
		return "", apperror.Internal("could not load activity", err)
	}
	return id, nil
}

// Add records the caller's engagement with the activity at slug. A second
// record for the same user and activity is a conflict.
func (s *Service) Add(ctx context.Context, actor auth.Identity, slug string, kind Kind) (Record, error) {
	spec, ok := specs[kind]
	if !ok {
		return Record{}, apperror.ValidationFailed("", "unknown engagement "+string(kind))
	}
	activityID, err := s.activityID(ctx, slug)
	if err != nil {
		return Record{}, err
	}

	rec := Record{ID: uuid.NewString(), UserID: actor.UserID, ActivityID: activityID, Kind: kind}
	err = s.db.QueryRow(ctx, `
		INSERT INTO `+spec.table+` (id, user_id, activity_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, activity_id) DO NOTHING
		RETURNING `+spec.column, rec.ID, rec.UserID, rec.ActivityID).Scan(&rec.At)
	if errors.Is(err, pgx.ErrNoRows) || db.IsUniqueViolation(err) {
		s.log.Warn("duplicate engagement", "kind", kind, "user_id", actor.UserID, "slug", slug)
		return Record{}, apperror.Conflict(spec.label, slug)
	}
	if db.IsForeignKeyViolation(err) {
		// activity deleted after the lookup
		return Record{}, apperror.NotFound("activity", slug)
	}
	if err != nil {
		return Record{}, apperror.Internal("could not save "+spec.label, err)
	}
	s.log.Info("engagement added", "kind", kind, "user_id", actor.UserID, "slug", slug)
	return rec, nil
}

// Remove deletes userID's record for the activity at slug.
func (s *Service) Remove(ctx context.Context, actor auth.Identity, userID string, kind Kind, slug string) error {
	spec, ok := specs[kind]
	if !ok {
		return apperror.NotFound("engagement list", string(kind))
	}
	if err := auth.Authorize(actor, userID); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM `+spec.table+`
		WHERE user_id::text = $1
		  AND activity_id = (SELECT id FROM activities WHERE slug = $2)
	`, userID, slug)
	if err != nil {
		return apperror.Internal("could not remove "+spec.label, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(spec.label, slug)
	}
	return nil
}

// ListForUser returns the activities in one of userID's collections, newest
// first. Admins may pass all to list every user's records.
func (s *Service) ListForUser(ctx context.Context, actor auth.Identity, userID string, kind Kind, all bool) ([]activity.Activity, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, apperror.NotFound("engagement list", string(kind))
	}

	var (
		rows pgx.Rows
		err  error
	)
	if all && actor.IsAdmin() {
		rows, err = s.db.Query(ctx, `
			SELECT activity_id::text FROM `+spec.table+`
			GROUP BY activity_id
			ORDER BY max(`+spec.column+`) DESC`)
	} else {
		if err := auth.Authorize(actor, userID); err != nil {
			return nil, err
		}
		rows, err = s.db.Query(ctx, `
			SELECT activity_id::text FROM `+spec.table+`
			WHERE user_id::text = $1
			ORDER BY `+spec.column+` DESC`, userID)
	}
	if err != nil {
		return nil, apperror.Internal("could not list "+string(kind), err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperror.Internal("could not list "+string(kind), err)
	}

	activities, err := s.activities.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperror.Internal("could not load activities", err)
	}
	return inOrder(ids, activities), nil
}

// Likes lists who liked the activity at slug.
func (s *Service) Likes(ctx context.Context, slug string) ([]Record, error) {
	activityID, err := s.activityID(ctx, slug)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id::text, user_id::text, activity_id::text, liked_at
		FROM likes WHERE activity_id::text = $1
		ORDER BY liked_at DESC
	`, activityID)
	if err != nil {
		return nil, apperror.Internal("could not list likes", err)
	}
	defer rows.Close()

	likes := []Record{}
	for rows.Next() {
		r := Record{Kind: Like}
		if err := rows.Scan(&r.ID, &r.UserID, &r.ActivityID, &r.At); err != nil {
			return nil, apperror.Internal("could not list likes", fmt.Errorf("scan like: %w", err))
		}
		likes = append(likes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal("could not list likes", err)
	}
	return likes, nil
}

// inOrder arranges activities in the order of ids.
func inOrder(ids []string, activities []activity.Activity) []activity.Activity {
	byID := make(map[string]activity.Activity, len(activities))
	for _, a := range activities {
		byID[a.ID] = a
	}
	out := make([]activity.Activity, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}
