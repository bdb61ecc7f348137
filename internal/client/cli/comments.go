package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophblog/internal/client/models"
)

// Comments prints the comments of a post, newest first.
func (a *App) Comments(ctx context.Context, postID models.ID) error {
	comments, err := a.comments.List(ctx, postID)
	if err != nil {
		return a.readFailed(err, func(ctx context.Context) error { return a.Comments(ctx, postID) })
	}
	user, _ := a.sessions.CurrentUser()
	renderComments(a.out, comments, user.ID, a.now())
	return nil
}

// Comment prompts for a comment and adds it to the post.
func (a *App) Comment(ctx context.Context, postID models.ID) error {
	if _, err := a.sessions.RequireUser(); err != nil {
		return err
	}
	if err := ensureIdle(a.comments.Pending, "new comment"); err != nil {
		return err
	}

	content, err := getMultiline(a.reader, "Comment", a.out)
	if err != nil {
		return err
	}

	c, err := a.comments.Create(ctx, models.CommentInput{PostID: postID, Content: content})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Comment %s added.\n", c.ID)
	return nil
}

// Uncomment deletes one of the user's comments after confirmation.
func (a *App) Uncomment(ctx context.Context, postID, commentID models.ID) error {
	if err := ensureIdle(a.comments.Pending, "delete comment"); err != nil {
		return err
	}
	if _, err := a.comments.Owned(ctx, postID, commentID); err != nil {
		return err
	}

	ok, err := confirm(a.reader, fmt.Sprintf("Are you sure you want to delete comment %s?", commentID), a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}

	if err := a.comments.Delete(ctx, postID, commentID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Comment %s deleted.\n", commentID)
	return nil
}
