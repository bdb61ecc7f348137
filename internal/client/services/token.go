package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the persisted session: the standard claims plus the public
// part of the signed-in user. Subject holds the user id.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func issueToken(u models.User, key []byte, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	})

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// parseToken verifies a session token and returns the user it carries.
// Expired tokens yield common.ErrTokenExpired, anything else that fails
// verification common.ErrInvalidToken.
func parseToken(tokenString string, key []byte, now time.Time) (models.User, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.User{}, common.ErrTokenExpired
	case err != nil:
		return models.User{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	case !token.Valid || claims.Subject == "":
		return models.User{}, common.ErrInvalidToken
	}

	return models.User{
		ID:        models.ID(claims.Subject),
		Email:     claims.Email,
		Name:      claims.Name,
		CreatedAt: claims.CreatedAt,
	}, nil
}
