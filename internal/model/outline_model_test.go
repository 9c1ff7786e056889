package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// root -> a -> (a1 -> a1x), b
func sampleOutline() *Outline {
	o := NewOutline("root")
	add := func(id, parent string, children ...string) {
		o.Nodes[id] = &Node{ID: id, ParentID: parent, Children: children, Type: NodeText}
	}
	add("root", "", "a", "b")
	add("a", "root", "a1")
	add("a1", "a", "a1x")
	add("a1x", "a1")
	add("b", "root")
	return o
}

func TestOutlineFlatten(t *testing.T) {
	o := sampleOutline()

	t.Run("expanded", func(t *testing.T) {
		rows := o.Flatten("root")
		assert.Equal(t, []Row{
			{ID: "a", Depth: 0, ParentID: "root"},
			{ID: "a1", Depth: 1, ParentID: "a"},
			{ID: "a1x", Depth: 2, ParentID: "a1"},
			{ID: "b", Depth: 0, ParentID: "root"},
		}, rows)
	})

	t.Run("collapsed node keeps itself, hides descendants", func(t *testing.T) {
		o.Nodes["a1"].IsCollapsed = true
		defer func() { o.Nodes["a1"].IsCollapsed = false }()
		var ids []string
		for _, r := range o.Flatten("root") {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"a", "a1", "b"}, ids)
	})

	t.Run("hoisted root shows children even when collapsed", func(t *testing.T) {
		o.Nodes["a"].IsCollapsed = true
		defer func() { o.Nodes["a"].IsCollapsed = false }()
		rows := o.Flatten("a")
		require.Len(t, rows, 2)
		assert.Equal(t, "a1", rows[0].ID)
		assert.Equal(t, 0, rows[0].Depth)
	})

	t.Run("unknown root", func(t *testing.T) {
		assert.Empty(t, o.Flatten("nope"))
	})
}

func TestOutlineNavigation(t *testing.T) {
	o := sampleOutline()

	prev, ok := o.PrevSibling("b")
	require.True(t, ok)
	assert.Equal(t, "a", prev)
	_, ok = o.PrevSibling("a")
	assert.False(t, ok)

	next, ok := o.NextSibling("a")
	require.True(t, ok)
	assert.Equal(t, "b", next)

	assert.Equal(t, "a1x", o.LastVisibleDescendant("a"))
	o.Nodes["a1"].IsCollapsed = true
	assert.Equal(t, "a1", o.LastVisibleDescendant("a"))

	assert.True(t, o.IsAncestor("root", "a1x"))
	assert.True(t, o.IsAncestor("a", "a1x"))
	assert.False(t, o.IsAncestor("b", "a1x"))
	assert.Equal(t, []string{"a", "a1", "a1x"}, o.Subtree("a"))
}

func TestOutlineValidate(t *testing.T) {
	require.NoError(t, sampleOutline().Validate())
	require.NoError(t, NewOutline("root").Validate())

	tests := []struct {
		name   string
		mutate func(o *Outline)
	}{
		{"double listing", func(o *Outline) { o.Nodes["b"].Children = []string{"a1"} }},
		{"missing child", func(o *Outline) { o.Nodes["b"].Children = []string{"ghost"} }},
		{"parent mismatch", func(o *Outline) { o.Nodes["a1x"].ParentID = "b" }},
		{"root reparented", func(o *Outline) { o.Nodes["root"].ParentID = "a" }},
		{"unlisted node", func(o *Outline) { o.Nodes["stray"] = &Node{ID: "stray", ParentID: "b"} }},
		{"cycle", func(o *Outline) {
			o.Nodes["x"] = &Node{ID: "x", ParentID: "y", Children: []string{"y"}}
			o.Nodes["y"] = &Node{ID: "y", ParentID: "x", Children: []string{"x"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := sampleOutline()
			tt.mutate(o)
			assert.Error(t, o.Validate())
		})
	}
}

func TestParseIndented(t *testing.T) {
	got := ParseIndented("- A\n  - A1\n    [x] done\n  B sibling\n# Title\n")
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Content)
	require.Len(t, got[0].Children, 2)
	assert.Equal(t, "A1", got[0].Children[0].Content)
	require.Len(t, got[0].Children[0].Children, 1)
	done := got[0].Children[0].Children[0]
	assert.Equal(t, NodeTodo, done.Type)
	assert.True(t, done.Completed)
	assert.Equal(t, "done", done.Content)
	assert.Equal(t, "B sibling", got[0].Children[1].Content)
	assert.Equal(t, NodeH1, got[1].Type)
	assert.Equal(t, "Title", got[1].Content)

	assert.Empty(t, ParseIndented("\n\n"))
}
