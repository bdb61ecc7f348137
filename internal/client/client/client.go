package client

import (
	"context"

	"github.com/dmitrijs2005/gophblog/internal/client/models"
)

// Client is the remote blog store: one method per (entity, operation) pair,
// each a single round trip. Failures are *RequestError values.
type Client interface {
	ListPosts(ctx context.Context, ownerID models.ID) ([]models.Post, error)
	GetPost(ctx context.Context, id models.ID) (models.Post, error)
	CreatePost(ctx context.Context, post models.Post) (models.Post, error)
	UpdatePost(ctx context.Context, post models.Post) (models.Post, error)
	DeletePost(ctx context.Context, id models.ID) error

	ListComments(ctx context.Context, postID models.ID) ([]models.Comment, error)
	CreateComment(ctx context.Context, comment models.Comment) (models.Comment, error)
	DeleteComment(ctx context.Context, id models.ID) error

	FindUserByEmail(ctx context.Context, email string) ([]models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	Ping(ctx context.Context) error
	Close() error
}
