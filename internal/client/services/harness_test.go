package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/client"
	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/client/query"
	"github.com/dmitrijs2005/gophblog/internal/client/storetest"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// tickClock advances one second on every read so records created in a row
// get distinct, increasing timestamps.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	srv      *storetest.Server
	client   *client.HTTPClient
	db       *sql.DB
	cache    *query.Cache
	sessions *sessionManager
	posts    PostService
	comments CommentService
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSessionManager(c client.Client, db *sql.DB, cache *query.Cache) *sessionManager {
	s := NewSessionManager(c, db, cache, time.Hour, logging.NopLogger{}).(*sessionManager)
	s.bcryptCost = bcrypt.MinCost
	return s
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := storetest.NewServer(t)
	clock := &tickClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	c, err := client.NewHTTPClient(srv.URL, client.WithClock(clock.Now))
	require.NoError(t, err)

	cache := query.NewCache(query.WithBackoff(time.Millisecond))
	t.Cleanup(cache.Wait)

	db := openDB(t)
	sessions := newSessionManager(c, db, cache)
	require.NoError(t, sessions.Hydrate(context.Background()))

	return &harness{
		srv:      srv,
		client:   c,
		db:       db,
		cache:    cache,
		sessions: sessions,
		posts:    NewPostService(c, cache, sessions, 2, logging.NopLogger{}),
		comments: NewCommentService(c, cache, sessions, logging.NopLogger{}),
	}
}

// signup registers and signs in a user.
func (h *harness) signup(t *testing.T, email string) models.User {
	t.Helper()
	u, err := h.sessions.Signup(context.Background(), models.SignupInput{
		Email: email, Password: "secret", Name: "Test " + email,
	})
	require.NoError(t, err)
	return u
}
