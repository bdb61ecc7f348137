package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophblog/internal/client/client"
	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/client/mutation"
	"github.com/dmitrijs2005/gophblog/internal/client/query"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
)

// PostService reads and writes the current user's posts.
type PostService interface {
	List(ctx context.Context) ([]models.Post, error)
	Get(ctx context.Context, id models.ID) (models.Post, error)
	Create(ctx context.Context, in models.PostInput) (models.Post, error)
	Update(ctx context.Context, in models.UpdatePostInput) (models.Post, error)
	Delete(ctx context.Context, id models.ID) error
	// Refetch reloads the posts list regardless of freshness.
	Refetch(ctx context.Context) error
	// Watch calls fn on every change of the current user's posts list.
	Watch(fn func(query.Snapshot)) (unsubscribe func(), err error)
	// Pending reports whether a write is in flight.
	Pending() bool
}

// postWrite carries a write together with the user it is made for, so the
// affected list key is known before the store answers.
type postWrite struct {
	owner models.ID
	post  models.Post
}

type postService struct {
	client   client.Client
	cache    *query.Cache
	sessions SessionManager
	retries  int

	create *mutation.Mutation[postWrite, models.Post]
	update *mutation.Mutation[postWrite, models.Post]
	remove *mutation.Mutation[postWrite, struct{}]
}

// NewPostService wires the post reads and writes. listRetries is how many
// times a transient failure of the posts list is retried.
func NewPostService(c client.Client, cache *query.Cache, sessions SessionManager, listRetries int, log logging.Logger) PostService {
	s := &postService{client: c, cache: cache, sessions: sessions, retries: listRetries}

	listOnly := func(w postWrite) []query.Key {
		return []query.Key{query.PostsKey(w.owner)}
	}
	listAndItem := func(w postWrite) []query.Key {
		return []query.Key{query.PostsKey(w.owner), query.PostKey(w.post.ID)}
	}

	s.create = mutation.New(cache, mutation.Options[postWrite, models.Post]{
		Name:    "create post",
		Fn:      s.createPost,
		Affects: listOnly,
		Logger:  log,
	})
	s.update = mutation.New(cache, mutation.Options[postWrite, models.Post]{
		Name:    "update post",
		Fn:      s.updatePost,
		Affects: listAndItem,
		Logger:  log,
	})
	s.remove = mutation.New(cache, mutation.Options[postWrite, struct{}]{
		Name:    "delete post",
		Fn:      s.deletePost,
		Affects: listAndItem,
		Logger:  log,
	})
	return s
}

func (s *postService) List(ctx context.Context) ([]models.Post, error) {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return nil, err
	}
	return query.Fetch(ctx, s.cache, s.listQuery(user.ID))
}

func (s *postService) listQuery(owner models.ID) query.Query[[]models.Post] {
	return query.Query[[]models.Post]{
		Key:     query.PostsKey(owner),
		Enabled: !owner.IsZero(),
		Retries: s.retries,
		Fn: func(ctx context.Context) ([]models.Post, error) {
			return s.client.ListPosts(ctx, owner)
		},
	}
}

func (s *postService) Get(ctx context.Context, id models.ID) (models.Post, error) {
	if _, err := s.sessions.RequireUser(); err != nil {
		return models.Post{}, err
	}
	return query.Fetch(ctx, s.cache, query.Query[models.Post]{
		Key:     query.PostKey(id),
		Enabled: !id.IsZero(),
		Fn: func(ctx context.Context) (models.Post, error) {
			return s.client.GetPost(ctx, id)
		},
	})
}

func (s *postService) Refetch(ctx context.Context) error {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return err
	}
	err = s.cache.Refetch(ctx, query.PostsKey(user.ID))
	if errors.Is(err, query.ErrUnknownKey) {
		_, err = s.List(ctx)
	}
	return err
}

func (s *postService) Watch(fn func(query.Snapshot)) (func(), error) {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return nil, err
	}
	return s.cache.Subscribe(query.PostsKey(user.ID), fn), nil
}

func (s *postService) Pending() bool {
	return s.create.State().IsPending() ||
		s.update.State().IsPending() ||
		s.remove.State().IsPending()
}

func (s *postService) Create(ctx context.Context, in models.PostInput) (models.Post, error) {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return models.Post{}, err
	}
	if err := models.Validate(in); err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		Title:    in.Title,
		Content:  in.Content,
		ImageURL: in.ImageURL,
		UserID:   user.ID,
	}
	if post.ImageURL == "" {
		post.ImageURL = models.PlaceholderImageURL()
	}
	return s.create.Execute(ctx, postWrite{owner: user.ID, post: post})
}

func (s *postService) createPost(ctx context.Context, w postWrite) (models.Post, error) {
	return s.client.CreatePost(ctx, w.post)
}

// Update replaces title, content and image of a post the current user owns.
// An empty ImageURL keeps the current image.
func (s *postService) Update(ctx context.Context, in models.UpdatePostInput) (models.Post, error) {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return models.Post{}, err
	}
	if err := models.Validate(in); err != nil {
		return models.Post{}, err
	}

	return s.update.Execute(ctx, postWrite{owner: user.ID, post: models.Post{
		ID:       in.ID,
		Title:    in.Title,
		Content:  in.Content,
		ImageURL: in.ImageURL,
	}})
}

func (s *postService) updatePost(ctx context.Context, w postWrite) (models.Post, error) {
	current, err := s.owned(ctx, w.owner, w.post.ID)
	if err != nil {
		return models.Post{}, err
	}

	next := w.post
	next.UserID = current.UserID
	next.CreatedAt = current.CreatedAt
	if next.ImageURL == "" {
		next.ImageURL = current.ImageURL
	}
	return s.client.UpdatePost(ctx, next)
}

func (s *postService) Delete(ctx context.Context, id models.ID) error {
	user, err := s.sessions.RequireUser()
	if err != nil {
		return err
	}
	if id.IsZero() {
		return fmt.Errorf("%w: id is required", common.ErrValidation)
	}
	_, err = s.remove.Execute(ctx, postWrite{owner: user.ID, post: models.Post{ID: id}})
	return err
}

func (s *postService) deletePost(ctx context.Context, w postWrite) (struct{}, error) {
	if _, err := s.owned(ctx, w.owner, w.post.ID); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, s.client.DeletePost(ctx, w.post.ID)
}

// owned loads the stored post and checks that owner may change it.
func (s *postService) owned(ctx context.Context, owner, id models.ID) (models.Post, error) {
	current, err := s.client.GetPost(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if !current.OwnedBy(owner) {
		return models.Post{}, fmt.Errorf("post %s: %w", id, common.ErrForbidden)
	}
	return current, nil
}
