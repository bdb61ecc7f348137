package models

import "time"

// User is a store account. Password holds a bcrypt hash as written at signup.
type User struct {
	ID        ID        `json:"id,omitempty"`
	Email     string    `json:"email"`
	Password  string    `json:"password,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public returns a copy of u without the password hash, suitable for keeping
// in the session.
func (u User) Public() User {
	u.Password = ""
	return u
}
