package comments

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/Kazama-Suichiku/blogstore/internal/model"
)

func sampleThread() []model.Comment {
	// C1 <- R1 <- R2 <- R3, plus an unrelated root on another article.
	return []model.Comment{
		{ID: "c1", ArticleID: "a1", Key: "k-c1"},
		{ID: "r1", ArticleID: "a1", ParentID: "c1", Key: "k-r1"},
		{ID: "r2", ArticleID: "a1", ParentID: "r1", Key: "k-r2"},
		{ID: "r3", ArticleID: "a1", ParentID: "r2", Key: "k-r3"},
		{ID: "x1", ArticleID: "a2", Key: "k-x1"},
	}
}

func TestBuildIndex_DeterministicAndIdempotent(t *testing.T) {
	list := sampleThread()
	t1 := BuildIndex(list)
	t2 := BuildIndex(list)

	if !reflect.DeepEqual(t1.byParent, t2.byParent) {
		t.Fatalf("same input must yield same grouping:\n%v\n%v", t1.byParent, t2.byParent)
	}
	if got := t1.Children(""); len(got) != 2 || got[0] != "c1" || got[1] != "x1" {
		t.Fatalf("roots in source order, got %v", got)
	}
	if got := t1.Children("c1"); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("children of c1, got %v", got)
	}
}

func TestRender_ReplyAffordanceStopsAtMaxLevel(t *testing.T) {
	tree := BuildIndex(sampleThread())
	nodes := tree.Render("a1", "", 0, DefaultMaxNestingLevel)

	if len(nodes) != 4 {
		t.Fatalf("want 4 nodes (x1 belongs to a2), got %d", len(nodes))
	}
	wantReply := map[string]bool{"c1": true, "r1": true, "r2": true, "r3": false}
	wantLevel := map[string]int{"c1": 0, "r1": 1, "r2": 2, "r3": 3}
	for _, n := range nodes {
		if n.CanReply != wantReply[n.ID] {
			t.Fatalf("node %s: CanReply want %v", n.ID, wantReply[n.ID])
		}
		if n.Level != wantLevel[n.ID] {
			t.Fatalf("node %s: level want %d got %d", n.ID, wantLevel[n.ID], n.Level)
		}
	}
}

func TestRender_DoesNotRecursePastMaxLevel(t *testing.T) {
	list := append(sampleThread(),
		model.Comment{ID: "r4", ArticleID: "a1", ParentID: "r3", Key: "k-r4"})
	nodes := BuildIndex(list).Render("a1", "", 0, DefaultMaxNestingLevel)

	for _, n := range nodes {
		if n.ID == "r4" {
			t.Fatalf("node past the nesting bound must not render")
		}
	}
}

func TestDepth(t *testing.T) {
	tree := BuildIndex(sampleThread())

	for id, want := range map[string]int{"c1": 0, "r1": 1, "r3": 3} {
		got, ok := tree.Depth(id)
		if !ok || got != want {
			t.Fatalf("Depth(%s): want %d, got %d ok=%v", id, want, got, ok)
		}
	}
	if _, ok := tree.Depth("missing"); ok {
		t.Fatalf("unknown id must report !ok")
	}
}

func TestDepth_CycleTerminates(t *testing.T) {
	tree := BuildIndex([]model.Comment{
		{ID: "a", ArticleID: "a1", ParentID: "b"},
		{ID: "b", ArticleID: "a1", ParentID: "a"},
	})
	if _, ok := tree.Depth("a"); !ok {
		t.Fatalf("cyclic data must still terminate")
	}
}

func TestCascadeDeleteSet_OwnKeyLastNoDuplicates(t *testing.T) {
	tree := BuildIndex(sampleThread())
	keys := tree.CascadeDeleteSet("c1")

	if len(keys) != 4 {
		t.Fatalf("want descendants+self = 4 keys, got %v", keys)
	}
	if keys[len(keys)-1] != "k-c1" {
		t.Fatalf("own key must come last, got %v", keys)
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate key %s in %v", k, keys)
		}
		seen[k] = true
	}
	for _, k := range []string{"k-r1", "k-r2", "k-r3", "k-c1"} {
		if !seen[k] {
			t.Fatalf("missing key %s in %v", k, keys)
		}
	}
}

func TestCascadeDeleteSet_IgnoresNestingBound(t *testing.T) {
	// Historical data nested far past the reply limit still deletes fully.
	list := []model.Comment{{ID: "n0", ArticleID: "a1", Key: "k0"}}
	for i := 1; i <= 10; i++ {
		list = append(list, model.Comment{
			ID:        nodeID(i),
			ArticleID: "a1",
			ParentID:  nodeID(i - 1),
			Key:       "k" + nodeID(i),
		})
	}
	keys := BuildIndex(list).CascadeDeleteSet("n0")
	if len(keys) != 11 {
		t.Fatalf("want 11 keys, got %d", len(keys))
	}
	if keys[len(keys)-1] != "k0" {
		t.Fatalf("own key last, got %v", keys)
	}
}

func nodeID(i int) string { return fmt.Sprintf("n%d", i) }

func TestCascadeDeleteSet_CycleTerminates(t *testing.T) {
	tree := BuildIndex([]model.Comment{
		{ID: "a", ArticleID: "a1", ParentID: "b", Key: "kA"},
		{ID: "b", ArticleID: "a1", ParentID: "a", Key: "kB"},
	})
	keys := tree.CascadeDeleteSet("a")
	if len(keys) != 2 {
		t.Fatalf("cyclic links must yield each key once, got %v", keys)
	}
	if keys[len(keys)-1] != "kA" {
		t.Fatalf("own key must come last, got %v", keys)
	}
}

func TestCascadeDeleteSet_UnknownIDIsNoop(t *testing.T) {
	if keys := BuildIndex(sampleThread()).CascadeDeleteSet("ghost"); keys != nil {
		t.Fatalf("unknown id must yield nil, got %v", keys)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	raw := json.RawMessage(`{
		"kB": {"id":"b","articleId":"a1","name":"n","text":"t","date":2},
		"kA": {"id":"a","articleId":"a1","name":"n","text":"t","date":1}
	}`)
	list, err := DecodeSnapshot(raw)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("want date order a,b got %+v", list)
	}
	if list[0].Key != "kA" || list[1].Key != "kB" {
		t.Fatalf("store keys must be attached, got %+v", list)
	}

	for _, empty := range []string{"", "null"} {
		got, err := DecodeSnapshot(json.RawMessage(empty))
		if err != nil || got != nil {
			t.Fatalf("empty snapshot %q: got %v err=%v", empty, got, err)
		}
	}
}

func TestNewCommentID_Distinct(t *testing.T) {
	a, b := NewCommentID(), NewCommentID()
	if a == b {
		t.Fatalf("ids must not collide: %s", a)
	}
}
