// Package model defines domain entities shared by the data-access layer.
package model

// TransportMode selects how store operations reach the backing store.
// It is decided once per process and cached afterwards.
type TransportMode int

const (
	// ModeUnknown means no routing decision has been made yet.
	ModeUnknown TransportMode = iota
	// ModeDirect routes operations over a persistent connection to the store.
	ModeDirect
	// ModeProxy routes every operation as a stateless HTTP request to the relay.
	ModeProxy
)

// String returns a human-readable mode name for logs and CLI output.
func (m TransportMode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// Article is a blog post as stored under /articles/<key>.
type Article struct {
	ID       string   `json:"id"`       // logical id, unique
	Title    string   `json:"title"`
	Content  string   `json:"content"`  // raw markdown, rendered elsewhere
	Category string   `json:"category"`
	Date     int64    `json:"date"`     // unix ms
	Images   []string `json:"images,omitempty"` // ordered image references
	Tags     []string `json:"tags,omitempty"`
}

// Comment is a single comment in a flat per-article collection.
// Nesting is reconstructed from ParentID; "" marks a root comment.
type Comment struct {
	ID        string `json:"id"`                 // client-generated unique id
	ArticleID string `json:"articleId"`          // owning article
	ParentID  string `json:"parentId,omitempty"` // "" for root, else another comment's ID
	Name      string `json:"name"`               // display name of the author
	Text      string `json:"text"`
	Date      int64  `json:"date"` // unix ms
	// Key is the store-assigned key the comment lives under. It addresses
	// deletion and is distinct from the logical ID.
	Key string `json:"-"`
}

// IsRoot reports whether the comment starts a thread.
func (c Comment) IsRoot() bool { return c.ParentID == "" }
