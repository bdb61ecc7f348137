package models

import (
	"sort"
	"time"
)

// Comment is attached to a post and owned by its author. Comments are never
// edited.
type Comment struct {
	ID        ID        `json:"id,omitempty"`
	Content   string    `json:"content"`
	PostID    ID        `json:"postId"`
	UserID    ID        `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// OwnedBy reports whether userID may delete the comment.
func (c Comment) OwnedBy(userID ID) bool {
	return !userID.IsZero() && c.UserID == userID
}

// SortNewestFirst orders comments by CreatedAt descending. Equal timestamps
// keep their relative order.
func SortNewestFirst(comments []Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
}
