package comment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"
	"github.com/damygoes/EcoStride-REST-API/internal/logger"
	"github.com/damygoes/EcoStride-REST-API/internal/stream"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	commentColumns = []string{"id", "activity_slug", "user_id", "text", "reply_ids", "created_at", "updated_at", "first_name", "last_name", "avatar"}
	replyColumns   = []string{"id", "activity_slug", "user_id", "parent_id", "text", "created_at", "updated_at", "first_name", "last_name", "avatar"}

	author1 = auth.Identity{UserID: "user-a", Role: auth.RoleUser}
	other   = auth.Identity{UserID: "user-b", Role: auth.RoleUser}
	admin   = auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []stream.Event
	slugs  []string
}

func (p *recordingPublisher) Publish(slug string, ev stream.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slugs = append(p.slugs, slug)
	p.events = append(p.events, ev)
}

func newMockService(t *testing.T) (*Service, pgxmock.PgxPoolIface, *recordingPublisher) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	pub := &recordingPublisher{}
	return NewService(mock, pub, logger.Nop()), mock, pub
}

func expectActivity(mock pgxmock.PgxPoolIface, slug string, exists bool) {
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM activities WHERE slug = \$1\)`).
		WithArgs(slug).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))
}

// expectLockActivity matches the row lock taken before a comment or reply
// is written.
func expectLockActivity(mock pgxmock.PgxPoolIface, slug string, exists bool) {
	rows := pgxmock.NewRows([]string{"?column?"})
	if exists {
		rows.AddRow(1)
	}
	mock.ExpectQuery(`SELECT 1 FROM activities WHERE slug = \$1 FOR SHARE`).
		WithArgs(slug).
		WillReturnRows(rows)
}

func TestCreateComment(t *testing.T) {
	svc, mock, pub := newMockService(t)
	now := time.Now()

	mock.ExpectBegin()
	expectLockActivity(mock, "paris-run", true)
	mock.ExpectQuery(`INSERT INTO comments`).
		WithArgs(pgxmock.AnyArg(), "paris-run", "user-a", "Great route").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	c, err := svc.Create(context.Background(), author1, "paris-run", CreateRequest{Text: "  Great route "})
	require.NoError(t, err)
	assert.Equal(t, "Great route", c.Text)
	assert.False(t, c.IsReply())
	require.Len(t, pub.events, 1)
	assert.Equal(t, stream.EventCommentCreated, pub.events[0].Type)
	assert.Equal(t, "paris-run", pub.slugs[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCommentValidation(t *testing.T) {
	svc, mock, pub := newMockService(t)

	_, err := svc.Create(context.Background(), author1, "paris-run", CreateRequest{Text: "   "})
	require.ErrorIs(t, err, apperror.ErrValidation)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "text", appErr.Field)

	_, err = svc.Create(context.Background(), author1, "paris-run", CreateRequest{Text: strings.Repeat("x", 2001)})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCommentUnknownActivity(t *testing.T) {
	svc, mock, pub := newMockService(t)
	mock.ExpectBegin()
	expectLockActivity(mock, "nope", false)
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), author1, "nope", CreateRequest{Text: "hi"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An activity deleted while the comment was being written must not leave
// the comment behind: the insert runs under the activity lock and its
// failure rolls the transaction back.
func TestCreateCommentRollsBackWhenInsertFails(t *testing.T) {
	svc, mock, pub := newMockService(t)
	mock.ExpectBegin()
	expectLockActivity(mock, "paris-run", true)
	mock.ExpectQuery(`INSERT INTO comments`).
		WithArgs(pgxmock.AnyArg(), "paris-run", "user-a", "hi").
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), author1, "paris-run", CreateRequest{Text: "hi"})
	assert.ErrorIs(t, err, apperror.ErrInternal)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReplyLinksParent(t *testing.T) {
	svc, mock, pub := newMockService(t)
	now := time.Now()
	parent := "comment-1"

	mock.ExpectBegin()
	expectLockActivity(mock, "paris-run", true)
	mock.ExpectQuery(`SELECT activity_slug FROM comments WHERE id::text = \$1 FOR UPDATE`).
		WithArgs(parent).
		WillReturnRows(pgxmock.NewRows([]string{"activity_slug"}).AddRow("paris-run"))
	mock.ExpectQuery(`INSERT INTO replies`).
		WithArgs(pgxmock.AnyArg(), "paris-run", "user-b", parent, "Agreed").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`UPDATE comments SET reply_ids = array_append\(reply_ids, \$2\)`).
		WithArgs(parent, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	r, err := svc.Create(context.Background(), other, "paris-run", CreateRequest{Text: "Agreed", ParentID: &parent})
	require.NoError(t, err)
	require.True(t, r.IsReply())
	assert.Equal(t, parent, *r.ParentID)
	require.Len(t, pub.events, 1)
	assert.Equal(t, stream.EventReplyCreated, pub.events[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReplyMissingParent(t *testing.T) {
	svc, mock, pub := newMockService(t)
	parent := "does-not-exist"

	mock.ExpectBegin()
	expectLockActivity(mock, "paris-run", true)
	mock.ExpectQuery(`FROM comments WHERE id::text = \$1 FOR UPDATE`).
		WithArgs(parent).
		WillReturnRows(pgxmock.NewRows([]string{"activity_slug"}))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), other, "paris-run", CreateRequest{Text: "Agreed", ParentID: &parent})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet(), "no reply may be persisted")
}

func TestCreateReplyParentOnOtherActivity(t *testing.T) {
	svc, mock, _ := newMockService(t)
	parent := "comment-9"

	mock.ExpectBegin()
	expectLockActivity(mock, "paris-run", true)
	mock.ExpectQuery(`FROM comments WHERE id::text = \$1 FOR UPDATE`).
		WithArgs(parent).
		WillReturnRows(pgxmock.NewRows([]string{"activity_slug"}).AddRow("col-du-galibier"))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), other, "paris-run", CreateRequest{Text: "Agreed", ParentID: &parent})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateReplyLinkFailureRollsBack(t *testing.T) {
	svc, mock, pub := newMockService(t)
	parent := "comment-1"

	mock.ExpectBegin()
	expectLockActivity(mock, "paris-run", true)
	mock.ExpectQuery(`FROM comments WHERE id::text = \$1 FOR UPDATE`).
		WithArgs(parent).
		WillReturnRows(pgxmock.NewRows([]string{"activity_slug"}).AddRow("paris-run"))
	mock.ExpectQuery(`INSERT INTO replies`).WithArgs(pgxmock.AnyArg(), "paris-run", "user-b", parent, "Agreed").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectExec(`array_append`).WithArgs(parent, pgxmock.AnyArg()).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), other, "paris-run", CreateRequest{Text: "Agreed", ParentID: &parent})
	assert.ErrorIs(t, err, apperror.ErrInternal)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListComments(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	expectActivity(mock, "paris-run", true)
	mock.ExpectQuery(`FROM comments c LEFT JOIN users u ON u.id = c.user_id WHERE c.activity_slug = \$1`).
		WithArgs("paris-run").
		WillReturnRows(pgxmock.NewRows(commentColumns).
			AddRow("c1", "paris-run", "user-a", "first", []string{"r1"}, now, now, "Ada", "L", "").
			AddRow("c2", "paris-run", "gone-user", "second", nil, now, now, nil, nil, nil))
	mock.ExpectQuery(`FROM replies r LEFT JOIN users u ON u.id = r.user_id WHERE r.parent_id::text = ANY\(\$1\)`).
		WithArgs([]string{"c1", "c2"}).
		WillReturnRows(pgxmock.NewRows(replyColumns).
			AddRow("r1", "paris-run", "user-b", "c1", "reply", now, now, "Bo", "", ""))

	comments, err := svc.List(context.Background(), "paris-run")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.Len(t, comments[0].Replies, 1)
	assert.Equal(t, "Bo", comments[0].Replies[0].Author.FirstName)
	assert.Equal(t, "Ada", comments[0].Author.FirstName)
	assert.Nil(t, comments[1].Author)
	assert.Empty(t, comments[1].Replies)
	assert.Equal(t, []string{}, comments[1].ReplyIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCommentsEmpty(t *testing.T) {
	svc, mock, _ := newMockService(t)

	expectActivity(mock, "quiet-run", true)
	mock.ExpectQuery(`WHERE c.activity_slug = \$1`).WithArgs("quiet-run").WillReturnRows(pgxmock.NewRows(commentColumns))
	comments, err := svc.List(context.Background(), "quiet-run")
	require.NoError(t, err)
	assert.NotNil(t, comments)
	assert.Empty(t, comments)

	expectActivity(mock, "nope", false)
	_, err = svc.List(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetComment(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE c.id::text = \$1 AND c.activity_slug = \$2`).
		WithArgs("c1", "paris-run").
		WillReturnRows(pgxmock.NewRows(commentColumns).AddRow("c1", "paris-run", "user-a", "first", []string{}, now, now, "Ada", "L", ""))
	mock.ExpectQuery(`FROM replies r`).WithArgs([]string{"c1"}).WillReturnRows(pgxmock.NewRows(replyColumns))

	c, err := svc.Get(context.Background(), "paris-run", "c1")
	require.NoError(t, err)
	assert.Equal(t, "first", c.Text)

	mock.ExpectQuery(`WHERE c.id::text = \$1`).WithArgs("c404", "paris-run").WillReturnRows(pgxmock.NewRows(commentColumns))
	_, err = svc.Get(context.Background(), "paris-run", "c404")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectLocateComment(mock pgxmock.PgxPoolIface, id, slug, owner string) {
	mock.ExpectQuery(`SELECT user_id::text FROM comments WHERE id::text = \$1 AND activity_slug = \$2 FOR UPDATE`).
		WithArgs(id, slug).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(owner))
}

func expectLocateReply(mock pgxmock.PgxPoolIface, id, slug, owner, parent string) {
	mock.ExpectQuery(`FROM comments WHERE id::text = \$1 AND activity_slug = \$2 FOR UPDATE`).
		WithArgs(id, slug).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery(`SELECT user_id::text, parent_id::text FROM replies WHERE id::text = \$1`).
		WithArgs(id, slug).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "parent_id"}).AddRow(owner, parent))
}

func TestUpdateComment(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectBegin()
	expectLocateComment(mock, "c1", "paris-run", "user-a")
	mock.ExpectRollback()
	_, err := svc.Update(context.Background(), other, "paris-run", "c1", UpdateRequest{Text: "edited"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	mock.ExpectBegin()
	expectLocateComment(mock, "c1", "paris-run", "user-a")
	mock.ExpectQuery(`UPDATE comments SET text = \$2`).
		WithArgs("c1", "edited").
		WillReturnRows(pgxmock.NewRows(commentColumns).AddRow("c1", "paris-run", "user-a", "edited", []string{}, now, now, "Ada", "L", ""))
	mock.ExpectCommit()
	c, err := svc.Update(context.Background(), author1, "paris-run", "c1", UpdateRequest{Text: "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", c.Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReplyByAdmin(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectBegin()
	expectLocateReply(mock, "r1", "paris-run", "user-b", "c1")
	mock.ExpectQuery(`UPDATE replies SET text = \$2`).
		WithArgs("r1", "moderated").
		WillReturnRows(pgxmock.NewRows(replyColumns).AddRow("r1", "paris-run", "user-b", "c1", "moderated", now, now, "Bo", "", ""))
	mock.ExpectCommit()

	r, err := svc.Update(context.Background(), admin, "paris-run", "r1", UpdateRequest{Text: "moderated"})
	require.NoError(t, err)
	require.True(t, r.IsReply())
	assert.Equal(t, "c1", *r.ParentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCommentNotFoundAndInvalid(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM comments WHERE id::text = \$1`).WithArgs("x", "paris-run").WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery(`FROM replies WHERE id::text = \$1`).WithArgs("x", "paris-run").WillReturnRows(pgxmock.NewRows([]string{"user_id", "parent_id"}))
	mock.ExpectRollback()
	_, err := svc.Update(context.Background(), author1, "paris-run", "x", UpdateRequest{Text: "edited"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	mock.ExpectBegin()
	expectLocateComment(mock, "c1", "paris-run", "user-a")
	mock.ExpectRollback()
	_, err = svc.Update(context.Background(), author1, "paris-run", "c1", UpdateRequest{Text: ""})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCommentCascadesReplies(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectBegin()
	expectLocateComment(mock, "c1", "paris-run", "user-a")
	mock.ExpectExec(`DELETE FROM replies WHERE parent_id::text = \$1`).WithArgs("c1").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM comments WHERE id::text = \$1`).WithArgs("c1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), author1, "paris-run", "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReplyUnlinksParent(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectBegin()
	expectLocateReply(mock, "r1", "paris-run", "user-b", "c1")
	mock.ExpectExec(`DELETE FROM replies WHERE id::text = \$1`).WithArgs("r1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`UPDATE comments SET reply_ids = array_remove\(reply_ids, \$2\)`).WithArgs("c1", "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), other, "paris-run", "r1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCommentGuards(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectBegin()
	expectLocateComment(mock, "c1", "paris-run", "user-a")
	mock.ExpectRollback()
	assert.ErrorIs(t, svc.Delete(context.Background(), other, "paris-run", "c1"), apperror.ErrForbidden)

	mock.ExpectBegin()
	expectLocateComment(mock, "c1", "paris-run", "user-a")
	mock.ExpectExec(`DELETE FROM replies WHERE parent_id::text = \$1`).WithArgs("c1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM comments`).WithArgs("c1").WillReturnError(errors.New("io timeout"))
	mock.ExpectRollback()
	assert.ErrorIs(t, svc.Delete(context.Background(), admin, "paris-run", "c1"), apperror.ErrInternal)
	assert.NoError(t, mock.ExpectationsWereMet())
}
