package models

import "time"

// Post is a blog post owned by the user referenced by UserID.
//
// CreatedAt is stamped once on create and carried unchanged through every
// update; UpdatedAt is stamped on each update.
type Post struct {
	ID        ID         `json:"id,omitempty"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	ImageURL  string     `json:"imageUrl"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	UserID    ID         `json:"userId"`
}

// OwnedBy reports whether userID may edit or delete the post.
func (p Post) OwnedBy(userID ID) bool {
	return !userID.IsZero() && p.UserID == userID
}
