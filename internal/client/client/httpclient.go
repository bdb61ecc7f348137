package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/google/uuid"
)

// maxErrorBody caps how much of a failed response body is kept in the error.
const maxErrorBody = 512

// HTTPClient talks to a json-server style REST store over HTTP.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	log        logging.Logger
	now        func() time.Time
}

var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithTimeout bounds every request. Zero disables the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) { h.timeout = d }
}

func WithLogger(l logging.Logger) Option {
	return func(h *HTTPClient) { h.log = l }
}

// WithClock overrides the clock used to stamp createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(h *HTTPClient) { h.now = now }
}

// NewHTTPClient builds a client for the store rooted at baseURL,
// e.g. "http://localhost:3002".
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &HTTPClient{
		baseURL:    u,
		httpClient: http.DefaultClient,
		log:        logging.NopLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request describes one store call.
type request struct {
	op     string
	method string
	path   []string
	query  url.Values
	body   any
	out    any
	// single marks reads where an empty or null body means "not found".
	single bool
}

func (c *HTTPClient) endpoint(path []string, query url.Values) string {
	u := *c.baseURL
	escaped := make([]string, len(path))
	for i, p := range path {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = u.Path + "/" + strings.Join(escaped, "/")
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *HTTPClient) do(ctx context.Context, r request) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return &RequestError{Op: r.op, Kind: ErrRejected, Cause: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return &RequestError{Op: r.op, Kind: ErrRejected, Cause: err}
	}

	requestID := uuid.NewString()
	req.Header.Set(common.RequestIDHeaderName, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ctx = logging.ContextWith(ctx, "op", r.op, "request_id", requestID)
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug(ctx, "store request failed", "method", r.method, "url", req.URL.String(), "error", err)
		return &RequestError{Op: r.op, Kind: ErrUnavailable, Cause: err}
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "store request", "method", r.method, "url", req.URL.String(),
		"status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := &RequestError{Op: r.op, StatusCode: resp.StatusCode, Kind: kindForStatus(resp.StatusCode)}
		if s := strings.TrimSpace(string(snippet)); s != "" && s != "{}" {
			e.Cause = fmt.Errorf("body: %s", s)
		}
		return e
	}

	if r.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Op: r.op, StatusCode: resp.StatusCode, Kind: ErrUnavailable, Cause: err}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || (r.single && bytes.Equal(trimmed, []byte("{}"))) {
		if r.single {
			return &RequestError{Op: r.op, StatusCode: resp.StatusCode, Kind: ErrNotFound}
		}
		return nil
	}

	if err := json.Unmarshal(trimmed, r.out); err != nil {
		return &RequestError{Op: r.op, StatusCode: resp.StatusCode, Kind: ErrDecode, Cause: err}
	}
	return nil
}

func (c *HTTPClient) ListPosts(ctx context.Context, ownerID models.ID) ([]models.Post, error) {
	posts := []models.Post{}
	err := c.do(ctx, request{
		op:     "list posts",
		method: http.MethodGet,
		path:   []string{"posts"},
		query:  url.Values{"userId": {ownerID.String()}},
		out:    &posts,
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *HTTPClient) GetPost(ctx context.Context, id models.ID) (models.Post, error) {
	var post models.Post
	err := c.do(ctx, request{
		op:     "get post",
		method: http.MethodGet,
		path:   []string{"posts", id.String()},
		out:    &post,
		single: true,
	})
	if err != nil {
		return models.Post{}, err
	}
	if post.ID.IsZero() {
		return models.Post{}, &RequestError{Op: "get post", Kind: ErrNotFound}
	}
	return post, nil
}

// CreatePost stores a new post. The store assigns the id; createdAt is
// stamped here.
func (c *HTTPClient) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	post.ID = ""
	post.CreatedAt = c.now().UTC()
	post.UpdatedAt = nil

	var created models.Post
	err := c.do(ctx, request{
		op:     "create post",
		method: http.MethodPost,
		path:   []string{"posts"},
		body:   post,
		out:    &created,
	})
	if err != nil {
		return models.Post{}, err
	}
	return created, nil
}

// UpdatePost replaces the post addressed by post.ID. CreatedAt is sent as
// given so the original creation time survives; updatedAt is stamped here.
func (c *HTTPClient) UpdatePost(ctx context.Context, post models.Post) (models.Post, error) {
	now := c.now().UTC()
	post.UpdatedAt = &now

	var updated models.Post
	err := c.do(ctx, request{
		op:     "update post",
		method: http.MethodPut,
		path:   []string{"posts", post.ID.String()},
		body:   post,
		out:    &updated,
	})
	if err != nil {
		return models.Post{}, err
	}
	return updated, nil
}

func (c *HTTPClient) DeletePost(ctx context.Context, id models.ID) error {
	return c.do(ctx, request{
		op:     "delete post",
		method: http.MethodDelete,
		path:   []string{"posts", id.String()},
	})
}

// ListComments returns the comments of a post, newest first. The order is
// requested from the store and enforced again locally.
func (c *HTTPClient) ListComments(ctx context.Context, postID models.ID) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := c.do(ctx, request{
		op:     "list comments",
		method: http.MethodGet,
		path:   []string{"comments"},
		query: url.Values{
			"postId": {postID.String()},
			"_sort":  {"createdAt"},
			"_order": {"desc"},
		},
		out: &comments,
	})
	if err != nil {
		return nil, err
	}
	models.SortNewestFirst(comments)
	return comments, nil
}

func (c *HTTPClient) CreateComment(ctx context.Context, comment models.Comment) (models.Comment, error) {
	comment.ID = ""
	comment.CreatedAt = c.now().UTC()

	var created models.Comment
	err := c.do(ctx, request{
		op:     "create comment",
		method: http.MethodPost,
		path:   []string{"comments"},
		body:   comment,
		out:    &created,
	})
	if err != nil {
		return models.Comment{}, err
	}
	return created, nil
}

func (c *HTTPClient) DeleteComment(ctx context.Context, id models.ID) error {
	return c.do(ctx, request{
		op:     "delete comment",
		method: http.MethodDelete,
		path:   []string{"comments", id.String()},
	})
}

func (c *HTTPClient) FindUserByEmail(ctx context.Context, email string) ([]models.User, error) {
	users := []models.User{}
	err := c.do(ctx, request{
		op:     "find user",
		method: http.MethodGet,
		path:   []string{"users"},
		query:  url.Values{"email": {email}},
		out:    &users,
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	user.ID = ""
	user.CreatedAt = c.now().UTC()

	var created models.User
	err := c.do(ctx, request{
		op:     "create user",
		method: http.MethodPost,
		path:   []string{"users"},
		body:   user,
		out:    &created,
	})
	if err != nil {
		return models.User{}, err
	}
	return created, nil
}

// Ping checks that the store answers at all.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, request{
		op:     "ping",
		method: http.MethodGet,
		path:   []string{"posts"},
		query:  url.Values{"_limit": {"1"}},
	})
}

func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
