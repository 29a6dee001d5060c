// Package comments rebuilds nesting from the flat per-blog comment
// collection and computes cascading deletions.
package comments

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/Kazama-Suichiku/blogstore/internal/model"
)

// DefaultMaxNestingLevel is the depth, measured from a root comment, at
// which new replies stop being offered. Pre-existing deeper branches
// still render; they just cannot grow.
const DefaultMaxNestingLevel = 3

// Tree is the adjacency index over one refresh of the comment set:
// parent id to ordered child ids, roots keyed under "".
type Tree struct {
	byParent map[string][]string
	byID     map[string]model.Comment
}

// BuildIndex groups a flat comment list by parent. It is deterministic
// and idempotent: the same list always yields the same grouping.
func BuildIndex(list []model.Comment) *Tree {
	t := &Tree{
		byParent: make(map[string][]string),
		byID:     make(map[string]model.Comment, len(list)),
	}
	for _, c := range list {
		t.byID[c.ID] = c
		t.byParent[c.ParentID] = append(t.byParent[c.ParentID], c.ID)
	}
	return t
}

// Get returns the indexed comment by logical id.
func (t *Tree) Get(id string) (model.Comment, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Children returns the ordered child ids of a comment ("" for roots).
func (t *Tree) Children(parentID string) []string {
	return t.byParent[parentID]
}

// Depth returns the nesting level of a comment measured from its
// nearest root (0 for roots). Broken parent links and cycles terminate
// the walk instead of looping.
func (t *Tree) Depth(id string) (int, bool) {
	c, ok := t.byID[id]
	if !ok {
		return 0, false
	}
	depth := 0
	seen := map[string]bool{id: true}
	for c.ParentID != "" {
		p, ok := t.byID[c.ParentID]
		if !ok || seen[p.ID] {
			break
		}
		seen[p.ID] = true
		depth++
		c = p
	}
	return depth, true
}

// Node is one rendered comment with its display depth and whether a
// reply affordance is offered at that depth.
type Node struct {
	model.Comment
	Level    int
	CanReply bool
}

// Render emits the children of parentID belonging to articleID in
// source order. Nodes sitting at maxLevel are still displayed but are
// not recursed past and offer no reply control.
func (t *Tree) Render(articleID, parentID string, level, maxLevel int) []Node {
	var out []Node
	for _, id := range t.byParent[parentID] {
		c := t.byID[id]
		if c.ArticleID != articleID {
			continue
		}
		out = append(out, Node{Comment: c, Level: level, CanReply: level < maxLevel})
		if level < maxLevel {
			out = append(out, t.Render(articleID, id, level+1, maxLevel)...)
		}
	}
	return out
}

// CascadeDeleteSet returns the external keys of every descendant of id
// followed by id's own key, each exactly once. The walk is an explicit
// stack with no depth bound: historical data may nest deeper than the
// reply limit ever allowed. Cyclic parent links terminate the walk like
// in Depth. Unknown ids yield nil (delete is a no-op).
func (t *Tree) CascadeDeleteSet(id string) []string {
	c, ok := t.byID[id]
	if !ok {
		return nil
	}
	var keys []string
	seen := map[string]bool{id: true}
	stack := append([]string(nil), t.byParent[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if cc, ok := t.byID[cur]; ok {
			keys = append(keys, cc.Key)
		}
		stack = append(stack, t.byParent[cur]...)
	}
	return append(keys, c.Key)
}

// NewCommentID generates a locally unique comment id: a monotonic
// millisecond prefix plus a random suffix, no central sequence needed.
func NewCommentID() string {
	suffix, _ := uuid.NewV4()
	return fmt.Sprintf("c%d-%s", time.Now().UnixMilli(), suffix.String()[:8])
}

// DecodeSnapshot turns a raw store snapshot (store key -> comment) into
// a flat list with store keys attached, ordered by date then id so the
// source order is stable across refreshes.
func DecodeSnapshot(raw json.RawMessage) ([]model.Comment, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[string]model.Comment
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	list := make([]model.Comment, 0, len(m))
	for key, c := range m {
		c.Key = key
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}
