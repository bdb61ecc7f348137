package client

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/client/storetest"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T) (*HTTPClient, *storetest.Server) {
	t.Helper()
	srv := storetest.NewServer(t)
	c, err := NewHTTPClient(srv.URL+"/", WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return c, srv
}

func TestNewHTTPClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewHTTPClient("localhost:3002")
	require.Error(t, err)

	_, err = NewHTTPClient("/api")
	require.Error(t, err)
}

func TestListPosts_FiltersByOwner(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	srv.Seed("posts", models.Post{Title: "a1", UserID: "1"})
	srv.Seed("posts", models.Post{Title: "b1", UserID: "2"})
	srv.Seed("posts", models.Post{Title: "a2", UserID: "1"})

	posts, err := c.ListPosts(ctx, "1")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, p := range posts {
		assert.Equal(t, models.ID("1"), p.UserID)
	}

	posts, err = c.ListPosts(ctx, "3")
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

func TestCreatePost_AssignsIDAndStampsCreatedAt(t *testing.T) {
	c, srv := newTestClient(t)

	created, err := c.CreatePost(context.Background(), models.Post{
		ID: "ignored", Title: "T", Content: "C", ImageURL: "U", UserID: "1",
	})
	require.NoError(t, err)

	assert.False(t, created.ID.IsZero())
	assert.NotEqual(t, models.ID("ignored"), created.ID)
	assert.True(t, fixedNow.Equal(created.CreatedAt))
	assert.Nil(t, created.UpdatedAt)
	assert.Equal(t, models.ID("1"), created.UserID)

	rec := srv.Records("posts")[0]
	assert.Equal(t, "T", rec["title"])
	assert.Equal(t, "U", rec["imageUrl"])
	assert.Equal(t, "1", rec["userId"])
}

func TestUpdatePost_KeepsCreatedAtAndStampsUpdatedAt(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	original := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	id := srv.Seed("posts", models.Post{Title: "old", UserID: "1", CreatedAt: original})

	updated, err := c.UpdatePost(ctx, models.Post{
		ID: models.ID(id), Title: "new", Content: "C", UserID: "1", CreatedAt: original,
	})
	require.NoError(t, err)

	assert.Equal(t, "new", updated.Title)
	assert.True(t, original.Equal(updated.CreatedAt), "createdAt must survive an edit")
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, fixedNow.Equal(*updated.UpdatedAt))
	assert.Equal(t, 1, srv.Requests(http.MethodPut, "/posts/"+id))
}

func TestGetPost_NotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.GetPost(context.Background(), "404")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrNetwork)

	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "get post", re.Op)
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
}

func TestGetPost_EmptyBodyIsNotFound(t *testing.T) {
	for _, body := range []string{"", "null", "{}"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)

		c, err := NewHTTPClient(srv.URL)
		require.NoError(t, err)

		_, err = c.GetPost(context.Background(), "1")
		assert.ErrorIs(t, err, ErrNotFound, "body %q", body)
	}
}

func TestDeletePost(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	id := srv.Seed("posts", models.Post{Title: "x", UserID: "1"})
	require.NoError(t, c.DeletePost(ctx, models.ID(id)))
	assert.Empty(t, srv.Records("posts"))

	err := c.DeletePost(ctx, models.ID(id))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListComments_NewestFirstEvenWhenStoreIgnoresSort(t *testing.T) {
	c, srv := newTestClient(t)
	srv.IgnoreSort = true

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{2 * time.Hour, 0, 3 * time.Hour, time.Hour} {
		srv.Seed("comments", models.Comment{Content: offset.String(), PostID: "9", UserID: "1", CreatedAt: base.Add(offset)})
	}
	srv.Seed("comments", models.Comment{Content: "other post", PostID: "8", CreatedAt: base})

	comments, err := c.ListComments(context.Background(), "9")
	require.NoError(t, err)
	require.Len(t, comments, 4)
	for i := 1; i < len(comments); i++ {
		assert.True(t, comments[i-1].CreatedAt.After(comments[i].CreatedAt))
	}
}

func TestCreateComment_StampsCreatedAt(t *testing.T) {
	c, _ := newTestClient(t)

	created, err := c.CreateComment(context.Background(), models.Comment{Content: "hi", PostID: "1", UserID: "2"})
	require.NoError(t, err)
	assert.False(t, created.ID.IsZero())
	assert.True(t, fixedNow.Equal(created.CreatedAt))
	assert.Equal(t, models.ID("1"), created.PostID)
}

func TestDeleteComment(t *testing.T) {
	c, srv := newTestClient(t)

	id := srv.Seed("comments", models.Comment{Content: "x", PostID: "1", UserID: "1"})
	require.NoError(t, c.DeleteComment(context.Background(), models.ID(id)))
	assert.Empty(t, srv.Records("comments"))
}

func TestUsers_FindAndCreate(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	users, err := c.FindUserByEmail(ctx, "a+b@x.com")
	require.NoError(t, err)
	assert.Empty(t, users)

	created, err := c.CreateUser(ctx, models.User{Email: "a+b@x.com", Password: "hash", Name: "A"})
	require.NoError(t, err)
	assert.False(t, created.ID.IsZero())
	assert.True(t, fixedNow.Equal(created.CreatedAt))

	users, err = c.FindUserByEmail(ctx, "a+b@x.com")
	require.NoError(t, err)
	require.Len(t, users, 1, "email must be query-escaped")
	assert.Equal(t, created.ID, users[0].ID)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{status: http.StatusNotFound, want: ErrNotFound},
		{status: http.StatusUnauthorized, want: ErrUnauthorized},
		{status: http.StatusForbidden, want: ErrUnauthorized},
		{status: http.StatusBadRequest, want: ErrRejected},
		{status: http.StatusConflict, want: ErrRejected},
		{status: http.StatusInternalServerError, want: ErrServer},
		{status: http.StatusServiceUnavailable, want: ErrServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, srv := newTestClient(t)
			srv.FailNext(http.MethodGet, "/posts", tt.status, 1)

			_, err := c.ListPosts(context.Background(), "1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrNetwork)
			assert.Equal(t, tt.want == ErrServer, IsTransient(err))
		})
	}
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url)
	require.NoError(t, err)

	err = c.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, IsTransient(err))
}

func TestTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.ListPosts(context.Background(), "1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMalformedBodyIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)

	_, err = c.ListComments(context.Background(), "1")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRequestsCarryRequestID(t *testing.T) {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(common.RequestIDHeaderName)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)

	_, err = c.ListPosts(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, <-seen, 36)
}

func TestRequestLogCarriesRequestIDAndCallerContext(t *testing.T) {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(common.RequestIDHeaderName)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	c, err := NewHTTPClient(srv.URL, WithLogger(log))
	require.NoError(t, err)

	ctx := logging.ContextWith(context.Background(), "command", "list")
	_, err = c.ListPosts(ctx, "1")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "request_id="+<-seen)
	assert.Contains(t, out, "command=list")
	assert.Contains(t, out, "status=200")
}

func TestRequestError_Message(t *testing.T) {
	err := &RequestError{Op: "delete post", StatusCode: 500, Kind: ErrServer, Cause: errors.New("body: boom")}
	assert.Equal(t, "delete post: server error (status 500): body: boom", err.Error())
}
