package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophblog/internal/client/client"
	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/client/mutation"
	"github.com/dmitrijs2005/gophblog/internal/client/query"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
)

// CommentService reads and writes the comments of a post.
type CommentService interface {
	List(ctx context.Context, postID models.ID) ([]models.Comment, error)
	Create(ctx context.Context, in models.CommentInput) (models.Comment, error)
	Delete(ctx context.Context, postID, commentID models.ID) error
	// Owned reads the comments of postID from the store, bypassing the
	// cache, and returns commentID if the current user wrote it.
	Owned(ctx context.Context, postID, commentID models.ID) (models.Comment, error)
	Pending() bool
}

type commentRef struct {
	owner     models.ID
	postID    models.ID
	commentID models.ID
}

type commentService struct {
	client   client.Client
	cache    *query.Cache
	sessions SessionManager

	create *mutation.Mutation[models.Comment, models.Comment]
	remove *mutation.Mutation[commentRef, struct{}]
}

func NewCommentService(c client.Client, cache *query.Cache, sessions SessionManager, log logging.Logger) CommentService {
	s := &commentService{client: c, cache: cache, sessions: sessions}

	s.create = mutation.New(cache, mutation.Options[models.Comment, models.Comment]{
		Name:    "create comment",
		Fn:      c.CreateComment,
		Affects: func(in models.Comment) []query.Key { return []query.Key{query.CommentsKey(in.PostID)} },
		Logger:  log,
	})
	s.remove = mutation.New(cache, mutation.Options[commentRef, struct{}]{
		Name:    "delete comment",
		Fn:      s.deleteComment,
		Affects: func(in commentRef) []query.Key { return []query.Key{query.CommentsKey(in.postID)} },
		Logger:  log,
	})
	return s
}

// List returns the comments of postID, newest first.
func (s *commentService) List(ctx context.Context, postID models.ID) ([]models.Comment, error) {
	if _, err := s.sessions.RequireUser(); err != nil {
		return nil, err
	}
	return s.list(ctx, postID)
}

func (s *commentService) list(ctx context.Context, postID models.ID) ([]models.Comment, error) {
	return query.Fetch(ctx, s.cache, query.Query[[]models.Comment]{
		Key:     query.CommentsKey(postID),
		Enabled: !postID.IsZero(),
		Fn: func(ctx context.Context) ([]models.Comment, error) {
			return s.client.ListComments(ctx, postID)
		},
	})
}

func (s *commentService) Pending() bool {
	return s.create.State().IsPending() || s.remove.State().IsPending()
}

func (s *commentService) Create(ctx context.Context, in models.CommentInput) (models.Comment, error) {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return models.Comment{}, err
	}
	if err := models.Validate(in); err != nil {
		return models.Comment{}, err
	}

	return s.create.Execute(ctx, models.Comment{
		Content: in.Content,
		PostID:  in.PostID,
		UserID:  user.ID,
	})
}

// Delete removes a comment of postID written by the current user.
func (s *commentService) Delete(ctx context.Context, postID, commentID models.ID) error {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return err
	}
	if postID.IsZero() || commentID.IsZero() {
		return fmt.Errorf("%w: post and comment ids are required", common.ErrValidation)
	}

	_, err = s.remove.Execute(ctx, commentRef{owner: user.ID, postID: postID, commentID: commentID})
	return err
}

func (s *commentService) Owned(ctx context.Context, postID, commentID models.ID) (models.Comment, error) {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return models.Comment{}, err
	}
	return s.owned(ctx, commentRef{owner: user.ID, postID: postID, commentID: commentID})
}

// owned always asks the store. A cached list may predate comments written
// from another session.
func (s *commentService) owned(ctx context.Context, ref commentRef) (models.Comment, error) {
	comments, err := s.client.ListComments(ctx, ref.postID)
	if err != nil {
		return models.Comment{}, err
	}

	for _, c := range comments {
		if c.ID != ref.commentID {
			continue
		}
		if !c.OwnedBy(ref.owner) {
			return models.Comment{}, fmt.Errorf("comment %s: %w", ref.commentID, common.ErrForbidden)
		}
		return c, nil
	}
	return models.Comment{}, fmt.Errorf("comment %s: %w", ref.commentID, client.ErrNotFound)
}

func (s *commentService) deleteComment(ctx context.Context, ref commentRef) (struct{}, error) {
	if _, err := s.owned(ctx, ref); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, s.client.DeleteComment(ctx, ref.commentID)
}
