package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophblog/internal/client/models"
	"github.com/dmitrijs2005/gophblog/internal/common"
)

// getSimpleText, getPassword, getMultiline and confirm are indirections used
// to facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getMultiline  = GetMultiline
	confirm       = Confirm
)

// Signup prompts for email, name and password, creates the account and
// signs the user in.
func (a *App) Signup(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.sessions.Signup(ctx, models.SignupInput{
		Email:    email,
		Password: string(password),
		Name:     name,
	})
	if err != nil {
		return err
	}

	a.stopWatching()
	a.setRetry(nil)
	fmt.Fprintf(a.out, "Welcome, %s!\n", u.Name)
	return nil
}

// Login prompts for credentials and signs the user in. A failed login leaves
// the session anonymous.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.sessions.Login(ctx, models.LoginInput{Email: email, Password: string(password)})
	if err != nil {
		return err
	}

	a.stopWatching()
	a.setRetry(nil)
	fmt.Fprintf(a.out, "Logged in as %s.\n", u.Email)
	return nil
}

// Logout forgets the session and everything cached for it.
func (a *App) Logout(ctx context.Context) error {
	if err := a.sessions.Logout(ctx); err != nil {
		return err
	}
	a.stopWatching()
	a.setRetry(nil)
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}
