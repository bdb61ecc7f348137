package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/client"
	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/client/query"
	"github.com/dmitrijs2005/gophblog/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"golang.org/x/crypto/bcrypt"
)

type SessionState int

const (
	Hydrating SessionState = iota
	Anonymous
	Authenticated
)

func (s SessionState) String() string {
	switch s {
	case Hydrating:
		return "hydrating"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

const sessionKeySize = 32

// SessionManager owns the signed-in user.
//
// Contract:
//   - Hydrate: restore the persisted session once at startup.
//   - Login / Signup: authenticate against the store and persist the session.
//   - Logout: forget the user and its session, and clear cached reads.
//   - RequireUser: the current user, or common.ErrNotAuthenticated.
//   - Ping / Close: store liveness and cleanup.
type SessionManager interface {
	Hydrate(ctx context.Context) error
	Login(ctx context.Context, in models.LoginInput) (models.User, error)
	Signup(ctx context.Context, in models.SignupInput) (models.User, error)
	Logout(ctx context.Context) error

	State() SessionState
	CurrentUser() (models.User, bool)
	RequireUser() (models.User, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type sessionManager struct {
	client client.Client
	db     *sql.DB
	cache  *query.Cache
	ttl    time.Duration
	log    logging.Logger

	now        func() time.Time
	bcryptCost int

	hydrateOnce sync.Once
	hydrateErr  error

	mu    sync.RWMutex
	state SessionState
	user  models.User
}

// NewSessionManager builds a SessionManager in the Hydrating state. Sessions
// written by it expire after ttl.
func NewSessionManager(c client.Client, db *sql.DB, cache *query.Cache, ttl time.Duration, log logging.Logger) SessionManager {
	return &sessionManager{
		client:     c,
		db:         db,
		cache:      cache,
		ttl:        ttl,
		log:        log,
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
		state:      Hydrating,
	}
}

func (s *sessionManager) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *sessionManager) CurrentUser() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.state == Authenticated
}

func (s *sessionManager) RequireUser() (models.User, error) {
	u, ok := s.CurrentUser()
	if !ok {
		return models.User{}, common.ErrNotAuthenticated
	}
	return u, nil
}

// setUser signs u in. Reads cached for a different user are dropped.
func (s *sessionManager) setUser(u models.User) {
	s.mu.Lock()
	switched := s.state == Authenticated && s.user.ID != u.ID
	s.user = u.Public()
	s.state = Authenticated
	s.mu.Unlock()

	if switched {
		s.cache.Clear()
	}
}

func (s *sessionManager) setAnonymous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = models.User{}
	s.state = Anonymous
}

// Hydrate restores the persisted session. Only the first call does any work;
// later calls return its result. A session that fails verification is
// removed and leaves the manager Anonymous.
func (s *sessionManager) Hydrate(ctx context.Context) error {
	s.hydrateOnce.Do(func() {
		s.hydrateErr = s.hydrate(ctx)
	})
	return s.hydrateErr
}

func (s *sessionManager) hydrate(ctx context.Context) error {
	repo := metadata.NewSQLiteRepository(s.db)

	token, err := repo.Get(ctx, common.MetadataKeySession)
	if errors.Is(err, metadata.ErrNotFound) {
		s.setAnonymous()
		return nil
	}
	if err != nil {
		s.setAnonymous()
		return fmt.Errorf("read session: %w", err)
	}

	key, err := repo.Get(ctx, common.MetadataKeySessionKey)
	if err != nil && !errors.Is(err, metadata.ErrNotFound) {
		s.setAnonymous()
		return fmt.Errorf("read session key: %w", err)
	}

	user, err := parseToken(string(token), key, s.now())
	if err != nil {
		s.log.Warn(ctx, "discarding saved session", "error", err)
		s.setAnonymous()
		if derr := repo.Delete(ctx, common.MetadataKeySession); derr != nil {
			return fmt.Errorf("delete session: %w", derr)
		}
		return nil
	}

	s.setUser(user)
	s.log.Info(ctx, "session restored", "user_id", user.ID.String())
	return nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// missingUserHash is compared against when no account matches, so unknown
// emails cost the same as wrong passwords.
func missingUserHash(cost int) []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword(common.GenerateRandByteArray(16), cost)
	})
	return dummyHash
}

func (s *sessionManager) Login(ctx context.Context, in models.LoginInput) (models.User, error) {
	if err := models.Validate(in); err != nil {
		return models.User{}, err
	}

	users, err := s.client.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return models.User{}, fmt.Errorf("login: %w", err)
	}

	var (
		found *models.User
		hash  = missingUserHash(s.bcryptCost)
	)
	for i := range users {
		if users[i].Email == in.Email {
			found = &users[i]
			hash = []byte(found.Password)
			break
		}
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(in.Password)); err != nil || found == nil {
		return models.User{}, common.ErrInvalidCredentials
	}

	user := found.Public()
	s.persist(ctx, user)
	s.setUser(user)
	s.log.Info(ctx, "logged in", "user_id", user.ID.String())
	return user, nil
}

func (s *sessionManager) Signup(ctx context.Context, in models.SignupInput) (models.User, error) {
	if err := models.Validate(in); err != nil {
		return models.User{}, err
	}

	existing, err := s.client.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return models.User{}, fmt.Errorf("signup: %w", err)
	}
	for _, u := range existing {
		if u.Email == in.Email {
			return models.User{}, common.ErrEmailTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.client.CreateUser(ctx, models.User{
		Email:    in.Email,
		Password: string(hash),
		Name:     in.Name,
	})
	if err != nil {
		return models.User{}, fmt.Errorf("signup: %w", err)
	}

	user := created.Public()
	s.persist(ctx, user)
	s.setUser(user)
	s.log.Info(ctx, "signed up", "user_id", user.ID.String())
	return user, nil
}

// persist writes the session token, creating the signing key on first use.
// Failures are logged only: the user stays signed in for this run.
func (s *sessionManager) persist(ctx context.Context, u models.User) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)

		key, err := repo.Get(ctx, common.MetadataKeySessionKey)
		if errors.Is(err, metadata.ErrNotFound) {
			key = common.GenerateRandByteArray(sessionKeySize)
			err = repo.Set(ctx, common.MetadataKeySessionKey, key)
		}
		if err != nil {
			return err
		}

		token, err := issueToken(u, key, s.now(), s.ttl)
		if err != nil {
			return err
		}
		return repo.Set(ctx, common.MetadataKeySession, []byte(token))
	})
	if err != nil {
		s.log.Warn(ctx, "session not saved", "error", err)
	}
}

// Logout signs out, removes the persisted session together with its signing
// key and drops every cached read.
func (s *sessionManager) Logout(ctx context.Context) error {
	s.setAnonymous()
	s.cache.Clear()

	repo := metadata.NewSQLiteRepository(s.db)
	keys, err := repo.Keys(ctx, common.MetadataKeySession)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	for _, k := range keys {
		if err := repo.Delete(ctx, k); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
	}
	s.log.Info(ctx, "logged out")
	return nil
}

func (s *sessionManager) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *sessionManager) Close(ctx context.Context) error {
	return s.client.Close()
}
