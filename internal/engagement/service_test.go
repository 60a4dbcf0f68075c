package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/damygoes/EcoStride-REST-API/internal/activity"
	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"
	"github.com/damygoes/EcoStride-REST-API/internal/logger"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivities struct {
	byID map[string]activity.Activity
	err  error
	got  []string
}

func (f *fakeActivities) ListByIDs(_ context.Context, ids []string) ([]activity.Activity, error) {
	f.got = ids
	if f.err != nil {
		return nil, f.err
	}
	out := []activity.Activity{}
	for _, id := range ids {
		if a, ok := f.byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

var (
	userA = auth.Identity{UserID: "user-a", Role: auth.RoleUser}
	userB = auth.Identity{UserID: "user-b", Role: auth.RoleUser}
	admin = auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}
)

func newMockService(t *testing.T) (*Service, pgxmock.PgxPoolIface, *fakeActivities) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	acts := &fakeActivities{byID: map[string]activity.Activity{
		"act-1": {ID: "act-1", Slug: "paris-run"},
		"act-2": {ID: "act-2", Slug: "col-du-galibier"},
	}}
	return NewService(mock, acts, logger.Nop()), mock, acts
}

func expectActivityID(mock pgxmock.PgxPoolIface, slug, id string) {
	rows := pgxmock.NewRows([]string{"id"})
	if id != "" {
		rows.AddRow(id)
	}
	mock.ExpectQuery(`SELECT id::text FROM activities WHERE slug = \$1`).WithArgs(slug).WillReturnRows(rows)
}

func TestIntent(t *testing.T) {
	cases := []struct {
		bucket, done, like bool
		want               Kind
		ok                 bool
	}{
		{bucket: true, want: BucketList, ok: true},
		{done: true, want: Done, ok: true},
		{like: true, want: Like, ok: true},
		{},
		{bucket: true, like: true},
		{bucket: true, done: true, like: true},
	}
	for _, tc := range cases {
		got, err := Intent(tc.bucket, tc.done, tc.like)
		if !tc.ok {
			assert.ErrorIs(t, err, apperror.ErrValidation)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestAddBucketListTwiceConflicts(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	expectActivityID(mock, "paris-run", "act-1")
	mock.ExpectQuery(`INSERT INTO bucket_list .* ON CONFLICT \(user_id, activity_id\) DO NOTHING RETURNING added_at`).
		WithArgs(pgxmock.AnyArg(), "user-a", "act-1").
		WillReturnRows(pgxmock.NewRows([]string{"added_at"}).AddRow(now))

	rec, err := svc.Add(context.Background(), userA, "paris-run", BucketList)
	require.NoError(t, err)
	assert.Equal(t, "act-1", rec.ActivityID)
	assert.Equal(t, now, rec.At)

	expectActivityID(mock, "paris-run", "act-1")
	mock.ExpectQuery(`INSERT INTO bucket_list`).
		WithArgs(pgxmock.AnyArg(), "user-a", "act-1").
		WillReturnRows(pgxmock.NewRows([]string{"added_at"}))

	_, err = svc.Add(context.Background(), userA, "paris-run", BucketList)
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddUsesKindTable(t *testing.T) {
	for kind, spec := range specs {
		t.Run(string(kind), func(t *testing.T) {
			svc, mock, _ := newMockService(t)
			expectActivityID(mock, "paris-run", "act-1")
			mock.ExpectQuery(`INSERT INTO `+spec.table+` .* RETURNING `+spec.column).
				WithArgs(pgxmock.AnyArg(), "user-b", "act-1").
				WillReturnRows(pgxmock.NewRows([]string{spec.column}).AddRow(time.Now()))

			rec, err := svc.Add(context.Background(), userB, "paris-run", kind)
			require.NoError(t, err)

			raw, err := json.Marshal(rec)
			require.NoError(t, err)
			assert.Contains(t, string(raw), `"`+spec.jsonName+`"`)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddMissingActivity(t *testing.T) {
	svc, mock, _ := newMockService(t)
	expectActivityID(mock, "nope", "")

	_, err := svc.Add(context.Background(), userA, "nope", Like)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddActivityDeletedConcurrently(t *testing.T) {
	svc, mock, _ := newMockService(t)
	expectActivityID(mock, "paris-run", "act-1")
	mock.ExpectQuery(`INSERT INTO done_activities`).WithArgs(pgxmock.AnyArg(), "user-a", "act-1").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "done_activities_activity_id_fkey"})

	_, err := svc.Add(context.Background(), userA, "paris-run", Done)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddStoreFailure(t *testing.T) {
	svc, mock, _ := newMockService(t)
	expectActivityID(mock, "paris-run", "act-1")
	mock.ExpectQuery(`INSERT INTO likes`).WithArgs(pgxmock.AnyArg(), "user-a", "act-1").
		WillReturnError(errors.New("connection refused"))

	_, err := svc.Add(context.Background(), userA, "paris-run", Like)
	assert.ErrorIs(t, err, apperror.ErrInternal)
}

func TestRemove(t *testing.T) {
	svc, mock, _ := newMockService(t)

	err := svc.Remove(context.Background(), userB, "user-a", Done, "paris-run")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	mock.ExpectExec(`DELETE FROM done_activities`).WithArgs("user-a", "paris-run").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, svc.Remove(context.Background(), userA, "user-a", Done, "paris-run"))

	mock.ExpectExec(`DELETE FROM likes`).WithArgs("user-a", "paris-run").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	err = svc.Remove(context.Background(), admin, "user-a", Like, "paris-run")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForUser(t *testing.T) {
	svc, mock, acts := newMockService(t)

	_, err := svc.ListForUser(context.Background(), userB, "user-a", BucketList, false)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	// a non-admin asking for everything still only sees their own
	mock.ExpectQuery(`FROM bucket_list WHERE user_id::text = \$1 ORDER BY added_at DESC`).
		WithArgs("user-a").
		WillReturnRows(pgxmock.NewRows([]string{"activity_id"}).AddRow("act-2").AddRow("act-1"))
	list, err := svc.ListForUser(context.Background(), userA, "user-a", BucketList, true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "col-du-galibier", list[0].Slug)
	assert.Equal(t, []string{"act-2", "act-1"}, acts.got)

	mock.ExpectQuery(`FROM likes WHERE user_id::text = \$1`).
		WithArgs("user-a").
		WillReturnRows(pgxmock.NewRows([]string{"activity_id"}))
	list, err = svc.ListForUser(context.Background(), userA, "user-a", Like, false)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForUserAdminAll(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectQuery(`SELECT activity_id::text FROM done_activities GROUP BY activity_id`).
		WillReturnRows(pgxmock.NewRows([]string{"activity_id"}).AddRow("act-1"))
	list, err := svc.ListForUser(context.Background(), admin, "user-a", Done, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForUserHydrationFailure(t *testing.T) {
	svc, mock, acts := newMockService(t)
	acts.err = errors.New("boom")

	mock.ExpectQuery(`FROM likes`).WithArgs("user-a").
		WillReturnRows(pgxmock.NewRows([]string{"activity_id"}).AddRow("act-1"))
	_, err := svc.ListForUser(context.Background(), userA, "user-a", Like, false)
	assert.ErrorIs(t, err, apperror.ErrInternal)
}

func TestLikes(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	expectActivityID(mock, "paris-run", "act-1")
	mock.ExpectQuery(`FROM likes WHERE activity_id::text = \$1`).WithArgs("act-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "activity_id", "liked_at"}).
			AddRow("like-1", "user-a", "act-1", now).
			AddRow("like-2", "user-b", "act-1", now.Add(-time.Hour)))

	likes, err := svc.Likes(context.Background(), "paris-run")
	require.NoError(t, err)
	require.Len(t, likes, 2)
	assert.Equal(t, "user-a", likes[0].UserID)

	expectActivityID(mock, "gone", "")
	_, err = svc.Likes(context.Background(), "gone")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
