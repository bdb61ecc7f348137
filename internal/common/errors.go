// Package common defines shared constants, sentinel errors and small helpers
// used across the gophblog client. Callers should use errors.Is to match the
// error values.
package common

import "errors"

var (
	// Input errors.
	ErrValidation = errors.New("validation error")

	// Auth errors. ErrInvalidCredentials is returned for both an unknown email
	// and a wrong password so callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already exists")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("not the owner")

	// Session token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
