// Package client contains the remote-store side of the gophblog client.
//
// # Overview
//
// The package provides:
//  1. The Client interface: one call per (entity, operation) pair against the
//     json-server style store (users, posts, comments) plus Ping.
//  2. HTTPClient, the net/http implementation. It stamps createdAt/updatedAt
//     with the client clock, tags every request with an X-Request-ID and
//     classifies failures.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring the
//     SQLite database that backs the session store.
//
// # Error Handling
//
// Every store failure is a *RequestError. It matches ErrNetwork with
// errors.Is, plus exactly one of ErrUnavailable (request did not complete),
// ErrNotFound, ErrUnauthorized, ErrRejected (other 4xx), ErrServer (5xx) or
// ErrDecode. IsTransient reports the kinds worth retrying.
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. All calls honor context
// cancellation; WithTimeout adds a per-request deadline.
package client
