// Package models defines the blog entities exchanged with the store and the
// validated input forms used to create and change them.
package models
