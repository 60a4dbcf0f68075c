package engagement

import (
	"encoding/json"
	"time"
)

// Kind names an engagement collection. The value is also its URL segment
// under /users/{id}.
type Kind string

const (
	BucketList Kind = "bucket-list"
	Done       Kind = "done-activities"
	Like       Kind = "liked-activities"
)

var Kinds = []Kind{BucketList, Done, Like}

type kindSpec struct {
	table    string
	column   string
	jsonName string
	label    string
}

var specs = map[Kind]kindSpec{
	BucketList: {table: "bucket_list", column: "added_at", jsonName: "addedAt", label: "bucket list entry"},
	Done:       {table: "done_activities", column: "done_at", jsonName: "doneAt", label: "done activity"},
	Like:       {table: "likes", column: "liked_at", jsonName: "likedAt", label: "like"},
}

// Record marks that a user put an activity on their bucket list, completed
// it or liked it.
type Record struct {
	ID         string
	UserID     string
	ActivityID string
	Kind       Kind
	At         time.Time
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":                   r.ID,
		"userId":               r.UserID,
		"activityId":           r.ActivityID,
		specs[r.Kind].jsonName: r.At,
	})
}
