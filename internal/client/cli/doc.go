// Package cli provides the interactive blog command-line client.
//
// It wires configuration, the local session database, the store client, the
// query cache and the post and comment services behind a small REPL. Typical
// flow: restore the saved session or prompt for credentials, start a
// background connectivity watcher, and execute user commands.
//
// Key features:
//   - Signup / Login / Logout
//   - List, show, create, edit and delete own posts
//   - List, add and delete comments
//   - Retry of the last failed read
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
