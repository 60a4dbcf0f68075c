package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/db"
	"github.com/damygoes/EcoStride-REST-API/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const selectActivity = `
	SELECT a.id, a.slug, a.name, a.description, a.distance, a.elevation_gain,
	       a.minimum_grade, a.maximum_grade, a.average_grade, a.time_to_complete,
	       a.difficulty_level, a.activity_type, a.route_type, a.climb_category,
	       a.photos, a.tags, a.created_by, a.is_created_by_admin, a.created_at, a.updated_at,
	       ad.city, ad.state, ad.country,
	       sc.latitude, sc.longitude, ec.latitude, ec.longitude
	FROM activities a
	LEFT JOIN addresses ad ON ad.activity_id = a.id
	LEFT JOIN start_coordinates sc ON sc.activity_id = a.id
	LEFT JOIN end_coordinates ec ON ec.activity_id = a.id`

func scanActivity(row pgx.Row) (Activity, error) {
	var a Activity
	var (
		minGrade, maxGrade, timeToComplete pgtype.Float8
		climb                              pgtype.Text
		city, state, country               pgtype.Text
		startLat, startLng, endLat, endLng pgtype.Float8
	)
	err := row.Scan(
		&a.ID, &a.Slug, &a.Name, &a.Description, &a.Distance, &a.ElevationGain,
		&minGrade, &maxGrade, &a.AverageGrade, &timeToComplete,
		&a.DifficultyLevel, &a.ActivityType, &a.RouteType, &climb,
		&a.Photos, &a.Tags, &a.CreatedBy, &a.IsCreatedByAdmin, &a.CreatedAt, &a.UpdatedAt,
		&city, &state, &country,
		&startLat, &startLng, &endLat, &endLng,
	)
	if err != nil {
		return Activity{}, err
	}
	a.MinimumGrade = floatPtr(minGrade)
	a.MaximumGrade = floatPtr(maxGrade)
	a.TimeToComplete = floatPtr(timeToComplete)
	if climb.Valid {
		a.ClimbCategory = &climb.String
	}
	if city.Valid {
		a.Address = &Address{City: city.String, State: state.String, Country: country.String}
	}
	if startLat.Valid && startLng.Valid {
		a.StartCoordinate = &Coordinate{Latitude: startLat.Float64, Longitude: startLng.Float64}
	}
	if endLat.Valid && endLng.Valid {
		a.EndCoordinate = &Coordinate{Latitude: endLat.Float64, Longitude: endLng.Float64}
	}
	a.fillDerived()
	return a, nil
}

func (a *Activity) fillDerived() {
	if a.Photos == nil {
		a.Photos = []string{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	a.StartToEndKm = nil
	if a.StartCoordinate != nil && a.EndCoordinate != nil {
		km := geo.HaversineKm(a.StartCoordinate.Latitude, a.StartCoordinate.Longitude,
			a.EndCoordinate.Latitude, a.EndCoordinate.Longitude)
		a.StartToEndKm = &km
	}
}

func floatPtr(v pgtype.Float8) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func queryActivities(ctx context.Context, q db.Querier, sql string, args ...any) ([]Activity, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func getBySlug(ctx context.Context, q db.Querier, slug string, forUpdate bool) (Activity, error) {
	sql := selectActivity + ` WHERE a.slug = $1`
	if forUpdate {
		sql += ` FOR UPDATE OF a`
	}
	a, err := scanActivity(q.QueryRow(ctx, sql, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return Activity{}, apperror.NotFound("activity", slug)
	}
	if err != nil {
		return Activity{}, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

// ensureUnique rejects a slug or name already used by another activity.
func ensureUnique(ctx context.Context, q db.Querier, slug, name, excludeID string) error {
	var taken bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM activities
			WHERE (slug = $1 OR name = $2) AND id::text <> $3
		)
	`, slug, name, excludeID).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check slug: %w", err)
	}
	if taken {
		return apperror.Conflict("activity", slug)
	}
	return nil
}

func insertActivity(ctx context.Context, q db.Querier, a *Activity) error {
	if err := ensureUnique(ctx, q, a.Slug, a.Name, ""); err != nil {
		return err
	}
	err := q.QueryRow(ctx, `
		INSERT INTO activities (
			id, slug, name, description, distance, elevation_gain,
			minimum_grade, maximum_grade, average_grade, time_to_complete,
			difficulty_level, activity_type, route_type, climb_category,
			photos, tags, created_by, is_created_by_admin
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at
	`, a.ID, a.Slug, a.Name, a.Description, a.Distance, a.ElevationGain,
		a.MinimumGrade, a.MaximumGrade, a.AverageGrade, a.TimeToComplete,
		a.DifficultyLevel, a.ActivityType, a.RouteType, a.ClimbCategory,
		a.Photos, a.Tags, a.CreatedBy, a.IsCreatedByAdmin,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperror.Conflict("activity", a.Slug)
	}
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return writeLocation(ctx, q, a)
}

func updateActivity(ctx context.Context, q db.Querier, a *Activity) error {
	err := q.QueryRow(ctx, `
		UPDATE activities
		SET slug = $2, name = $3, description = $4, distance = $5, elevation_gain = $6,
		    minimum_grade = $7, maximum_grade = $8, average_grade = $9, time_to_complete = $10,
		    difficulty_level = $11, activity_type = $12, route_type = $13, climb_category = $14,
		    photos = $15, tags = $16, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.Slug, a.Name, a.Description, a.Distance, a.ElevationGain,
		a.MinimumGrade, a.MaximumGrade, a.AverageGrade, a.TimeToComplete,
		a.DifficultyLevel, a.ActivityType, a.RouteType, a.ClimbCategory,
		a.Photos, a.Tags,
	).Scan(&a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperror.Conflict("activity", a.Slug)
	}
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return writeLocation(ctx, q, a)
}

// writeLocation creates the address and coordinate rows of an activity or
// updates them in place; each activity has at most one of each.
func writeLocation(ctx context.Context, q db.Querier, a *Activity) error {
	if a.Address != nil {
		if _, err := q.Exec(ctx, `
			INSERT INTO addresses (id, activity_id, city, state, country)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (activity_id) DO UPDATE
			SET city = EXCLUDED.city, state = EXCLUDED.state, country = EXCLUDED.country
		`, uuid.NewString(), a.ID, a.Address.City, a.Address.State, a.Address.Country); err != nil {
			return fmt.Errorf("write address: %w", err)
		}
	}
	for _, c := range []struct {
		table string
		point *Coordinate
	}{
		{"start_coordinates", a.StartCoordinate},
		{"end_coordinates", a.EndCoordinate},
	} {
		if c.point == nil {
			continue
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO `+c.table+` (id, activity_id, latitude, longitude)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (activity_id) DO UPDATE
			SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude
		`, uuid.NewString(), a.ID, c.point.Latitude, c.point.Longitude); err != nil {
			return fmt.Errorf("write %s: %w", c.table, err)
		}
	}
	return nil
}

// repointComments moves comments and replies to a renamed activity's slug.
func repointComments(ctx context.Context, q db.Querier, oldSlug, newSlug string) error {
	if _, err := q.Exec(ctx, `UPDATE comments SET activity_slug = $2 WHERE activity_slug = $1`, oldSlug, newSlug); err != nil {
		return fmt.Errorf("repoint comments: %w", err)
	}
	if _, err := q.Exec(ctx, `UPDATE replies SET activity_slug = $2 WHERE activity_slug = $1`, oldSlug, newSlug); err != nil {
		return fmt.Errorf("repoint replies: %w", err)
	}
	return nil
}

type cascadeStep struct {
	name   string
	sql    string
	bySlug bool
}

// activityCascade lists every record that exists only for an activity, in
// deletion order. The activity row itself goes last.
var activityCascade = []cascadeStep{
	{name: "address", sql: `DELETE FROM addresses WHERE activity_id = $1`},
	{name: "start coordinate", sql: `DELETE FROM start_coordinates WHERE activity_id = $1`},
	{name: "end coordinate", sql: `DELETE FROM end_coordinates WHERE activity_id = $1`},
	{name: "replies", sql: `DELETE FROM replies WHERE activity_slug = $1`, bySlug: true},
	{name: "comments", sql: `DELETE FROM comments WHERE activity_slug = $1`, bySlug: true},
	{name: "bucket list", sql: `DELETE FROM bucket_list WHERE activity_id = $1`},
	{name: "done activities", sql: `DELETE FROM done_activities WHERE activity_id = $1`},
	{name: "likes", sql: `DELETE FROM likes WHERE activity_id = $1`},
	{name: "activity", sql: `DELETE FROM activities WHERE id = $1`},
}
