package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophblog/internal/client/client"
	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/client/mutation"
	"github.com/dmitrijs2005/gophblog/internal/client/query"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Signup(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, id models.ID) error
	New(ctx context.Context) error
	Edit(ctx context.Context, id models.ID) error
	Delete(ctx context.Context, id models.ID) error
	Comments(ctx context.Context, postID models.ID) error
	Comment(ctx context.Context, postID models.ID) error
	Uncomment(ctx context.Context, postID, commentID models.ID) error
	Retry(ctx context.Context) error
}

// readError marks a failed read that the retry command can repeat.
type readError struct {
	err error
}

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

type usageError string

func (e usageError) Error() string { return "usage: " + string(e) }

const (
	helpAnonymous = "Available commands: signup, login, exit"
	helpUser      = "Available commands: (l)ist, show <id>, new, edit <id>, delete <id>, " +
		"comments <post>, comment <post>, uncomment <post> <comment>, retry, logout, exit"
)

// runREPL reads commands line by line from reader and dispatches them to a.
// The prompt shows the current status (from statusFn). The loop exits on EOF
// or when the user types "exit" or "quit".
//
// Errors returned by command handlers are reported to the user and never end
// the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("blog %s> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}

		if err := dispatch(logging.ContextWith(ctx, "command", cmd), a, cmd, args); err != nil {
			printlnFn(describeError(err))
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			printlnFn(helpUser)
		} else {
			printlnFn(helpAnonymous)
		}
		return nil

	case "signup":
		return a.Signup(ctx)

	case "login":
		return a.Login(ctx)

	case "logout":
		return a.Logout(ctx)

	case "l", "list":
		return a.List(ctx)

	case "new":
		return a.New(ctx)

	case "retry":
		return a.Retry(ctx)

	case "show", "edit", "delete", "comments", "comment":
		if len(args) != 1 {
			return usageError(cmd + " <id>")
		}
		id := models.ID(args[0])
		switch cmd {
		case "show":
			return a.Show(ctx, id)
		case "edit":
			return a.Edit(ctx, id)
		case "delete":
			return a.Delete(ctx, id)
		case "comments":
			return a.Comments(ctx, id)
		default:
			return a.Comment(ctx, id)
		}

	case "uncomment":
		if len(args) != 2 {
			return usageError("uncomment <post id> <comment id>")
		}
		return a.Uncomment(ctx, models.ID(args[0]), models.ID(args[1]))

	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}

// describeError turns a command failure into a message for the user.
func describeError(err error) string {
	var (
		usage usageError
		read  *readError
	)

	msg := "Error: " + err.Error()
	switch {
	case errors.As(err, &usage):
		return usage.Error()
	case errors.Is(err, common.ErrNotAuthenticated):
		return "You are not logged in. Type 'login' or 'signup'."
	case errors.Is(err, common.ErrForbidden):
		return "You can only change your own posts and comments."
	case errors.Is(err, common.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, common.ErrEmailTaken):
		return "An account with this email already exists."
	case errors.Is(err, mutation.ErrPending):
		return "Still saving the previous change, try again in a moment."
	case errors.Is(err, client.ErrNotFound):
		msg = "Not found."
	case errors.Is(err, query.ErrDisabled):
		msg = "Nothing to load."
	case errors.Is(err, client.ErrUnavailable):
		msg = "The blog server is unreachable."
	}

	if errors.As(err, &read) {
		msg += " (type 'retry' to try again)"
	}
	return msg
}
