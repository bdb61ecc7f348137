package models

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SignupInput is the signup form.
type SignupInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Name     string `validate:"required"`
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// PostInput is the create/edit post form. An empty ImageURL is replaced by a
// placeholder on create.
type PostInput struct {
	Title    string `validate:"required"`
	Content  string `validate:"required"`
	ImageURL string `validate:"omitempty,url"`
}

// UpdatePostInput addresses the post being edited.
type UpdatePostInput struct {
	ID ID `validate:"required"`
	PostInput
}

// CommentInput is the new-comment form.
type CommentInput struct {
	PostID  ID     `validate:"required"`
	Content string `validate:"required"`
}

// Validate checks v against its struct tags. Field failures are reported as
// a single error wrapping common.ErrValidation.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), describeTag(fe.Tag())))
	}
	return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(msgs, ", "))
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "email":
		return "not a valid email"
	case "url":
		return "not a valid URL"
	default:
		return "invalid (" + tag + ")"
	}
}

// PlaceholderImageURL returns a random stock image used when a post is
// created without one.
func PlaceholderImageURL() string {
	return fmt.Sprintf("https://picsum.photos/800/400?random=%d", rand.IntN(1000))
}
