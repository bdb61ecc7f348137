// Package services holds the application services the CLI drives: the
// SessionManager, which owns the signed-in user and its persisted session,
// and the post and comment services, which read through the query cache and
// write through mutations.
//
// Every post and comment operation first asks the SessionManager for the
// current user, so nothing reaches the store while the session is still
// being restored or after logout.
package services
