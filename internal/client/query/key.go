package query

import "github.com/dmitrijs2005/gophblog/internal/client/models"

// Kinds of cached reads.
const (
	KindPosts    = "posts"
	KindPost     = "post"
	KindComments = "comments"
)

// Key identifies a cached read. Scope narrows the kind to one owner, post or
// similar; an empty Scope used as a prefix matches the whole kind.
type Key struct {
	Kind  string
	Scope string
}

func (k Key) String() string {
	if k.Scope == "" {
		return k.Kind
	}
	return k.Kind + "/" + k.Scope
}

// Matches reports whether k falls under prefix. An empty prefix Kind matches
// every key; an empty prefix Scope matches every key of that kind.
func (k Key) Matches(prefix Key) bool {
	if prefix.Kind == "" {
		return true
	}
	if prefix.Kind != k.Kind {
		return false
	}
	return prefix.Scope == "" || prefix.Scope == k.Scope
}

// PostsKey is the posts list of one owner.
func PostsKey(owner models.ID) Key { return Key{Kind: KindPosts, Scope: owner.String()} }

// PostKey is a single post.
func PostKey(id models.ID) Key { return Key{Kind: KindPost, Scope: id.String()} }

// CommentsKey is the comment list of one post.
func CommentsKey(postID models.ID) Key { return Key{Kind: KindComments, Scope: postID.String()} }
