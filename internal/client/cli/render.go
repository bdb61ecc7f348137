package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const defaultWidth = 80

// terminalWidth is a test seam for the output width.
var terminalWidth = func() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// clamp cuts s to fit width display cells, marking the cut with an ellipsis.
func clamp(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func renderPostList(w io.Writer, posts []models.Post, now time.Time) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "No posts yet. Type 'new' to write one.")
		return
	}

	width := terminalWidth()
	for _, p := range posts {
		head := fmt.Sprintf("[%s] %s", p.ID, p.Title)
		fmt.Fprintf(w, "%s  (%s)\n", clamp(head, width-20), ago(p.CreatedAt, now))
		fmt.Fprintf(w, "    %s\n", clamp(p.Content, width-4))
	}
}

func renderPost(w io.Writer, p models.Post, now time.Time) {
	fmt.Fprintf(w, "[%s] %s\n", p.ID, p.Title)
	created := fmt.Sprintf("Created %s", ago(p.CreatedAt, now))
	if p.UpdatedAt != nil {
		created += fmt.Sprintf(", edited %s", ago(*p.UpdatedAt, now))
	}
	fmt.Fprintln(w, created)
	if p.ImageURL != "" {
		fmt.Fprintf(w, "Image: %s\n", p.ImageURL)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, p.Content)
}

func renderComments(w io.Writer, comments []models.Comment, currentUser models.ID, now time.Time) {
	if len(comments) == 0 {
		fmt.Fprintln(w, "No comments.")
		return
	}

	fmt.Fprintf(w, "Comments (%d):\n", len(comments))
	width := terminalWidth()
	for _, c := range comments {
		mark := ""
		if c.OwnedBy(currentUser) {
			mark = " (you)"
		}
		fmt.Fprintf(w, "  [%s]%s %s\n", c.ID, mark, ago(c.CreatedAt, now))
		fmt.Fprintf(w, "    %s\n", clamp(c.Content, width-4))
	}
}
