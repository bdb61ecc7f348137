package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/client/query"
	"github.com/dmitrijs2005/gophblog/internal/common"
)

// List prints the current user's posts.
func (a *App) List(ctx context.Context) error {
	posts, err := a.posts.List(ctx)
	if err != nil {
		return a.readFailed(err, a.reloadList)
	}
	a.watchPosts(len(posts))
	renderPostList(a.out, posts, a.now())
	return nil
}

// reloadList forces the posts list past the cache and prints it.
func (a *App) reloadList(ctx context.Context) error {
	if err := a.posts.Refetch(ctx); err != nil {
		return a.readFailed(err, a.reloadList)
	}
	return a.List(ctx)
}

// watchPosts keeps the post count in the prompt current. While subscribed,
// the cache also reloads the list in the background after every write.
func (a *App) watchPosts(n int) {
	a.mu.Lock()
	a.postCount = n
	watching := a.unwatch != nil
	a.mu.Unlock()
	if watching {
		return
	}

	unwatch, err := a.posts.Watch(a.onPosts)
	if err != nil {
		return
	}
	a.mu.Lock()
	if a.unwatch == nil {
		a.unwatch, unwatch = unwatch, nil
	}
	a.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

func (a *App) onPosts(s query.Snapshot) {
	posts, ok := query.Data[[]models.Post](s)

	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case s.Status == query.StatusIdle:
		a.postCount = -1
	case ok && s.Status == query.StatusSuccess:
		a.postCount = len(posts)
	}
}

// stopWatching drops the subscription made for the previous user.
func (a *App) stopWatching() {
	a.mu.Lock()
	unwatch := a.unwatch
	a.unwatch = nil
	a.postCount = -1
	a.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}

// Show prints a post with its comments. Edit and delete actions are offered
// to the owner only.
func (a *App) Show(ctx context.Context, id models.ID) error {
	again := func(ctx context.Context) error { return a.Show(ctx, id) }

	post, err := a.posts.Get(ctx, id)
	if err != nil {
		return a.readFailed(err, again)
	}
	comments, err := a.comments.List(ctx, id)
	if err != nil {
		return a.readFailed(err, again)
	}

	user, _ := a.sessions.CurrentUser()
	now := a.now()
	renderPost(a.out, post, now)
	fmt.Fprintln(a.out)
	renderComments(a.out, comments, user.ID, now)
	if post.OwnedBy(user.ID) {
		fmt.Fprintf(a.out, "\nActions: edit %s, delete %s\n", post.ID, post.ID)
	}
	return nil
}

// New prompts for a post and creates it.
func (a *App) New(ctx context.Context) error {
	if _, err := a.sessions.RequireUser(); err != nil {
		return err
	}
	if err := ensureIdle(a.posts.Pending, "new post"); err != nil {
		return err
	}

	title, err := getSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	content, err := getMultiline(a.reader, "Content", a.out)
	if err != nil {
		return err
	}
	image, err := a.promptImage(ctx, "Image URL or @file (empty for a random picture)")
	if err != nil {
		return err
	}

	post, err := a.posts.Create(ctx, models.PostInput{Title: title, Content: content, ImageURL: image})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Post %s created.\n", post.ID)
	return nil
}

// Edit prompts for new values of the user's own post. Empty answers keep the
// current values.
func (a *App) Edit(ctx context.Context, id models.ID) error {
	post, err := a.ownPost(ctx, id, "edit post")
	if err != nil {
		return err
	}

	title, err := getSimpleText(a.reader, fmt.Sprintf("Title [%s]", post.Title), a.out)
	if err != nil {
		return err
	}
	if title == "" {
		title = post.Title
	}
	content, err := getMultiline(a.reader, "Content (empty keeps the current text)", a.out)
	if err != nil {
		return err
	}
	if content == "" {
		content = post.Content
	}
	image, err := a.promptImage(ctx, fmt.Sprintf("Image URL or @file [%s]", post.ImageURL))
	if err != nil {
		return err
	}

	updated, err := a.posts.Update(ctx, models.UpdatePostInput{
		ID:        post.ID,
		PostInput: models.PostInput{Title: title, Content: content, ImageURL: image},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Post %s updated.\n", updated.ID)
	return nil
}

// Delete removes the user's own post after confirmation.
func (a *App) Delete(ctx context.Context, id models.ID) error {
	post, err := a.ownPost(ctx, id, "delete post")
	if err != nil {
		return err
	}

	ok, err := confirm(a.reader, fmt.Sprintf("Are you sure you want to delete post %q?", post.Title), a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}

	if err := a.posts.Delete(ctx, post.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Post %s deleted.\n", post.ID)
	return nil
}

func (a *App) ownPost(ctx context.Context, id models.ID, action string) (models.Post, error) {
	user, err := a.sessions.RequireUser()
	if err != nil {
		return models.Post{}, err
	}
	if err := ensureIdle(a.posts.Pending, action); err != nil {
		return models.Post{}, err
	}
	post, err := a.posts.Get(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if !post.OwnedBy(user.ID) {
		return models.Post{}, fmt.Errorf("post %s: %w", id, common.ErrForbidden)
	}
	return post, nil
}

// promptImage reads an image URL. A value starting with "@" is uploaded and
// replaced by the public URL of the upload.
func (a *App) promptImage(ctx context.Context, prompt string) (string, error) {
	value, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return "", err
	}
	return a.images.Resolve(ctx, value)
}
