package comment

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
	"github.com/damygoes/EcoStride-REST-API/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Publisher receives an event for every comment or reply created.
type Publisher interface {
	Publish(slug string, ev stream.Event)
}

type Service struct {
	db        db.Pool
	publisher Publisher
	log       *logger.Logger
	validate  *validator.Validate
}

// NewService builds the comment service. publisher may be nil.
func NewService(pool db.Pool, publisher Publisher, log *logger.Logger) *Service {
	return &Service{db: pool, publisher: publisher, log: log, validate: validation.New()}
}

const selectComment = `
	SELECT c.id::text, c.activity_slug, c.user_id::text, c.text, c.reply_ids, c.created_at, c.updated_at,
	       u.first_name, u.last_name, u.avatar
	FROM comments c
	LEFT JOIN users u ON u.id = c.user_id`

const selectReply = `
	SELECT r.id::text, r.activity_slug, r.user_id::text, r.parent_id::text, r.text, r.created_at, r.updated_at,
	       u.first_name, u.last_name, u.avatar
	FROM replies r
	LEFT JOIN users u ON u.id = r.user_id`

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	var first, last, avatar pgtype.Text
	if err := row.Scan(&c.ID, &c.ActivitySlug, &c.UserID, &c.Text, &c.ReplyIDs, &c.CreatedAt, &c.UpdatedAt,
		&first, &last, &avatar); err != nil {
		return Comment{}, err
	}
	c.Author = author(c.UserID, first, last, avatar)
	if c.ReplyIDs == nil {
		c.ReplyIDs = []string{}
	}
	return c, nil
}

func scanReply(row pgx.Row) (Comment, error) {
	var r Comment
	var parentID string
	var first, last, avatar pgtype.Text
	if err := row.Scan(&r.ID, &r.ActivitySlug, &r.UserID, &parentID, &r.Text, &r.CreatedAt, &r.UpdatedAt,
		&first, &last, &avatar); err != nil {
		return Comment{}, err
	}
	r.ParentID = &parentID
	r.Author = author(r.UserID, first, last, avatar)
	return r, nil
}

// author is nil when the writer's account no longer exists.
func author(userID string, first, last, avatar pgtype.Text) *Author {
	if !first.Valid {
		return nil
	}
	return &Author{ID: userID, FirstName: first.String, LastName: last.String, Avatar: avatar.String}
}

func ensureActivity(ctx context.Context, q db.Querier, slug string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM activities WHERE slug = $1)`, slug).Scan(&exists); err != nil {
		return fmt.Errorf("check activity: %w", err)
	}
	if !exists {
		return apperror.NotFound("activity", slug)
	}
	return nil
}

// lockActivity holds the activity row until the transaction ends so a
// concurrent activity delete cannot strand the new comment.
func lockActivity(ctx context.Context, q db.Querier, slug string) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM activities WHERE slug = $1 FOR SHARE`, slug).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("activity", slug)
	}
	if err != nil {
		return fmt.Errorf("lock activity: %w", err)
	}
	return nil
}

// List returns the comments of an activity, newest first, each with its
// replies in the order they were written.
func (s *Service) List(ctx context.Context, slug string) ([]Comment, error) {
	if err := ensureActivity(ctx, s.db, slug); err != nil {
		return nil, s.storeError("list", err)
	}
	rows, err := s.db.Query(ctx, selectComment+`
		WHERE c.activity_slug = $1
		ORDER BY c.created_at DESC`, slug)
	if err != nil {
		return nil, s.storeError("list", err)
	}
	defer rows.Close()

	comments := []Comment{}
	var ids []string
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, s.storeError("list", err)
		}
		ids = append(ids, c.ID)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storeError("list", err)
	}

	replies, err := s.loadReplies(ctx, ids)
	if err != nil {
		return nil, s.storeError("list", err)
	}
	for i := range comments {
		comments[i].Replies = replies[comments[i].ID]
	}
	return comments, nil
}

// Get returns one comment of the activity with its replies.
func (s *Service) Get(ctx context.Context, slug, id string) (Comment, error) {
	c, err := scanComment(s.db.QueryRow(ctx, selectComment+`
		WHERE c.id::text = $1 AND c.activity_slug = $2`, id, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, apperror.NotFound("comment", id)
	}
	if err != nil {
		return Comment{}, s.storeError("get", err)
	}
	replies, err := s.loadReplies(ctx, []string{c.ID})
	if err != nil {
		return Comment{}, s.storeError("get", err)
	}
	c.Replies = replies[c.ID]
	return c, nil
}

func (s *Service) loadReplies(ctx context.Context, parentIDs []string) (map[string][]Comment, error) {
	if len(parentIDs) == 0 {
		return map[string][]Comment{}, nil
	}
	rows, err := s.db.Query(ctx, selectReply+`
		WHERE r.parent_id::text = ANY($1)
		ORDER BY r.created_at`, parentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	replies := map[string][]Comment{}
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		replies[*r.ParentID] = append(replies[*r.ParentID], r)
	}
	return replies, rows.Err()
}

// Create adds a comment to the activity at slug, or a reply when
// req.ParentID names one of its comments.
func (s *Service) Create(ctx context.Context, actor auth.Identity, slug string, req CreateRequest) (Comment, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := validation.Struct(s.validate, req); err != nil {
		return Comment{}, err
	}
	if req.ParentID != nil {
		return s.createReply(ctx, actor, slug, *req.ParentID, req.Text)
	}

	c := Comment{
		ID:           uuid.NewString(),
		ActivitySlug: slug,
		UserID:       actor.UserID,
		Text:         req.Text,
		ReplyIDs:     []string{},
	}
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		if err := lockActivity(ctx, q, slug); err != nil {
			return err
		}
		if err := q.QueryRow(ctx, `
			INSERT INTO comments (id, activity_slug, user_id, text)
			VALUES ($1,$2,$3,$4)
			RETURNING created_at, updated_at
		`, c.ID, c.ActivitySlug, c.UserID, c.Text).Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return Comment{}, s.storeError("create", err)
	}
	s.publish(slug, stream.EventCommentCreated, c)
	return c, nil
}

// createReply stores the reply and links it from its parent in one transaction.
func (s *Service) createReply(ctx context.Context, actor auth.Identity, slug, parentID, text string) (Comment, error) {
	r := Comment{
		ID:           uuid.NewString(),
		ActivitySlug: slug,
		UserID:       actor.UserID,
		ParentID:     &parentID,
		Text:         text,
	}
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		if err := lockActivity(ctx, q, slug); err != nil {
			return err
		}
		var parentSlug string
		err := q.QueryRow(ctx, `SELECT activity_slug FROM comments WHERE id::text = $1 FOR UPDATE`, parentID).Scan(&parentSlug)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && parentSlug != slug) {
			return apperror.NotFound("comment", parentID)
		}
		if err != nil {
			return fmt.Errorf("lock parent comment: %w", err)
		}

		if err := q.QueryRow(ctx, `
			INSERT INTO replies (id, activity_slug, user_id, parent_id, text)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING created_at, updated_at
		`, r.ID, r.ActivitySlug, r.UserID, parentID, r.Text).Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
			return fmt.Errorf("insert reply: %w", err)
		}
		if _, err := q.Exec(ctx, `
			UPDATE comments SET reply_ids = array_append(reply_ids, $2) WHERE id::text = $1
		`, parentID, r.ID); err != nil {
			return fmt.Errorf("link reply: %w", err)
		}
		return nil
	})
	if err != nil {
		return Comment{}, s.storeError("create", err)
	}
	s.publish(slug, stream.EventReplyCreated, r)
	return r, nil
}

// target is the comment or reply an update or delete acts on.
type target struct {
	ownerID  string
	parentID string
}

func (t target) isReply() bool { return t.parentID != "" }

func locate(ctx context.Context, q db.Querier, slug, id string) (target, error) {
	var t target
	err := q.QueryRow(ctx, `
		SELECT user_id::text FROM comments WHERE id::text = $1 AND activity_slug = $2 FOR UPDATE
	`, id, slug).Scan(&t.ownerID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return target{}, fmt.Errorf("lookup comment: %w", err)
	}

	err = q.QueryRow(ctx, `
		SELECT user_id::text, parent_id::text FROM replies WHERE id::text = $1 AND activity_slug = $2 FOR UPDATE
	`, id, slug).Scan(&t.ownerID, &t.parentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return target{}, apperror.NotFound("comment", id)
	}
	if err != nil {
		return target{}, fmt.Errorf("lookup reply: %w", err)
	}
	return t, nil
}

// Update replaces the text of a comment or reply. Only its author or an
// admin may do so.
func (s *Service) Update(ctx context.Context, actor auth.Identity, slug, id string, req UpdateRequest) (Comment, error) {
	var updated Comment
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		t, err := locate(ctx, q, slug, id)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, t.ownerID); err != nil {
			return err
		}
		req.Text = strings.TrimSpace(req.Text)
		if err := validation.Struct(s.validate, req); err != nil {
			return err
		}

		if t.isReply() {
			updated, err = scanReply(q.QueryRow(ctx, `
				WITH r AS (
					UPDATE replies SET text = $2, updated_at = now() WHERE id::text = $1
					RETURNING id, activity_slug, user_id, parent_id, text, created_at, updated_at
				)`+strings.Replace(selectReply, "FROM replies r", "FROM r", 1), id, req.Text))
		} else {
			updated, err = scanComment(q.QueryRow(ctx, `
				WITH c AS (
					UPDATE comments SET text = $2, updated_at = now() WHERE id::text = $1
					RETURNING id, activity_slug, user_id, text, reply_ids, created_at, updated_at
				)`+strings.Replace(selectComment, "FROM comments c", "FROM c", 1), id, req.Text))
		}
		if err != nil {
			return fmt.Errorf("update comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return Comment{}, s.storeError("update", err)
	}
	return updated, nil
}

// Delete removes a comment together with its replies, or a single reply
// along with its id in the parent's reply list.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, slug, id string) error {
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		t, err := locate(ctx, q, slug, id)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, t.ownerID); err != nil {
			return err
		}

		if t.isReply() {
			if _, err := q.Exec(ctx, `DELETE FROM replies WHERE id::text = $1`, id); err != nil {
				return fmt.Errorf("delete reply: %w", err)
			}
			if _, err := q.Exec(ctx, `
				UPDATE comments SET reply_ids = array_remove(reply_ids, $2) WHERE id::text = $1
			`, t.parentID, id); err != nil {
				return fmt.Errorf("unlink reply: %w", err)
			}
			return nil
		}

		if _, err := q.Exec(ctx, `DELETE FROM replies WHERE parent_id::text = $1`, id); err != nil {
			return fmt.Errorf("delete replies: %w", err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM comments WHERE id::text = $1`, id); err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.storeError("delete", err)
	}
	s.log.Info("comment deleted", "id", id, "slug", slug, "by", actor.UserID)
	return nil
}

func (s *Service) publish(slug, eventType string, c Comment) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(slug, stream.Event{Type: eventType, Data: c})
}

func (s *Service) storeError(op string, err error) error {
	if apperror.Typed(err) {
		return err
	}
	s.log.Error("comment "+op+" failed", "error", err)
	return apperror.Internal("could not "+op+" comment", err)
}
