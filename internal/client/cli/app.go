package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/client"
	"github.com/dmitrijs2005/gophblog/internal/client/config"
	"github.com/dmitrijs2005/gophblog/internal/client/images"
	"github.com/dmitrijs2005/gophblog/internal/client/mutation"
	"github.com/dmitrijs2005/gophblog/internal/client/query"
	"github.com/dmitrijs2005/gophblog/internal/client/services"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dustin/go-humanize/english"
	"go.uber.org/multierr"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const pingTimeout = 3 * time.Second

type App struct {
	config   *config.Config
	log      logging.Logger
	db       *sql.DB
	cache    *query.Cache
	sessions services.SessionManager
	posts    services.PostService
	comments services.CommentService
	images   *images.Uploader

	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time

	mu    sync.Mutex
	mode  Mode
	retry func(ctx context.Context) error

	// postCount is -1 until the watched posts list has loaded.
	postCount int
	unwatch   func()
}

// NewApp opens the local database, connects the store client and wires the
// services. The returned App reads commands from stdin.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	api, err := client.NewHTTPClient(c.BaseURL,
		client.WithTimeout(c.RequestTimeout),
		client.WithLogger(log.With("component", "store")),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	uploader, err := images.NewUploader(ctx, c.S3, log.With("component", "images"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return newApp(c, log, db, api, uploader, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, log logging.Logger, db *sql.DB, api client.Client, uploader *images.Uploader, in io.Reader, out io.Writer) *App {
	cache := query.NewCache(
		query.WithStaleTime(c.StaleTime),
		query.WithLogger(log.With("component", "query")),
	)
	sessions := services.NewSessionManager(api, db, cache, c.SessionTTL, log.With("component", "session"))

	return &App{
		config:    c,
		log:       log,
		db:        db,
		cache:     cache,
		sessions:  sessions,
		posts:     services.NewPostService(api, cache, sessions, c.PostsRetries, log.With("component", "posts")),
		comments:  services.NewCommentService(api, cache, sessions, log.With("component", "comments")),
		images:    uploader,
		reader:    bufio.NewReader(in),
		out:       out,
		now:       time.Now,
		postCount: -1,
	}
}

// Run restores the session, asks for a login when there is none, starts the
// online status watcher and serves commands until exit or EOF.
func (a *App) Run(ctx context.Context) error {
	fmt.Fprintln(a.out, "Welcome to gophblog (type 'help' for commands)")

	if err := a.sessions.Hydrate(ctx); err != nil {
		a.log.Warn(ctx, "session restore failed", "error", err)
	}
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Please log in (or type 'signup' at the prompt).")
		if err := a.Login(ctx); err != nil {
			printlnFn(describeError(err))
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(watchCtx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
	return a.Close(ctx)
}

// Close waits for background refetches and releases the store client and
// the local database.
func (a *App) Close(ctx context.Context) error {
	a.stopWatching()
	a.cache.Wait()
	return multierr.Combine(
		a.sessions.Close(ctx),
		a.db.Close(),
	)
}

func (a *App) isLoggedIn() bool {
	return a.sessions.State() == services.Authenticated
}

func (a *App) getMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		fmt.Fprintf(a.out, "Switched to %s mode\n", mode)
	}
}

func (a *App) getStatus() string {
	var parts []string
	if u, ok := a.sessions.CurrentUser(); ok {
		parts = append(parts, u.Email)
		a.mu.Lock()
		n := a.postCount
		a.mu.Unlock()
		if n >= 0 {
			parts = append(parts, english.Plural(n, "post", ""))
		}
	}
	if m := a.getMode(); m != "" {
		parts = append(parts, string(m))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// StartOnlineStatusWatcher pings the store every interval and flips the
// prompt between online and offline until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := a.sessions.Ping(pingCtx)
	cancel()

	if err != nil {
		a.log.Debug(ctx, "store ping failed", "error", err)
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

func (a *App) setRetry(fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retry = fn
}

// readFailed remembers how to repeat a failed read for the retry command.
func (a *App) readFailed(err error, again func(ctx context.Context) error) error {
	a.setRetry(again)
	return &readError{err: err}
}

// ensureIdle refuses to start a write while the previous one of the same
// kind is still saving.
func ensureIdle(pending func() bool, what string) error {
	if pending() {
		return fmt.Errorf("%s: %w", what, mutation.ErrPending)
	}
	return nil
}

// Retry repeats the last read that failed.
func (a *App) Retry(ctx context.Context) error {
	a.mu.Lock()
	again := a.retry
	a.retry = nil
	a.mu.Unlock()

	if again == nil {
		fmt.Fprintln(a.out, "Nothing to retry.")
		return nil
	}
	return again(ctx)
}
