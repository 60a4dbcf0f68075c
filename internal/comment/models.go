package comment

import "time"

// Author is the public part of the user who wrote a comment or reply.
type Author struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar"`
}

// Comment is either a top-level comment on an activity or, when ParentID is
// set, a reply to one. Replies do not have replies of their own.
type Comment struct {
	ID           string    `json:"id"`
	ActivitySlug string    `json:"activitySlug"`
	UserID       string    `json:"userId"`
	ParentID     *string   `json:"parentId,omitempty"`
	Text         string    `json:"text"`
	Author       *Author   `json:"author,omitempty"`
	ReplyIDs     []string  `json:"replyIds,omitempty"`
	Replies      []Comment `json:"replies,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (c Comment) IsReply() bool {
	return c.ParentID != nil
}

type CreateRequest struct {
	Text     string  `json:"text" validate:"required,max=2000"`
	ParentID *string `json:"parentId" validate:"omitempty,min=1"`
}

type UpdateRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}
