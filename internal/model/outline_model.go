package model

import (
	"github.com/pkg/errors"
)

// Outline is a materialized, id-keyed arena of the nodes reachable from RootID.
// It is derived from the replicated document and never authoritative.
type Outline struct {
	RootID string           `json:"root_id"`
	Nodes  map[string]*Node `json:"nodes"`
}

// Row is one entry of a flattened, visibility-respecting traversal.
type Row struct {
	ID       string
	Depth    int
	ParentID string
}

// NewOutline returns an empty outline rooted at rootID.
func NewOutline(rootID string) *Outline {
	return &Outline{RootID: rootID, Nodes: make(map[string]*Node)}
}

// Get returns the node with the given id.
func (o *Outline) Get(id string) (*Node, bool) {
	n, ok := o.Nodes[id]
	return n, ok
}

// Has reports whether id is part of the outline.
func (o *Outline) Has(id string) bool {
	_, ok := o.Nodes[id]
	return ok
}

// IndexOf returns the position of id among its parent's children, or -1.
func (o *Outline) IndexOf(id string) int {
	n, ok := o.Nodes[id]
	if !ok {
		return -1
	}
	parent, ok := o.Nodes[n.ParentID]
	if !ok {
		return -1
	}
	for i, c := range parent.Children {
		if c == id {
			return i
		}
	}
	return -1
}

// PrevSibling returns the sibling immediately before id.
func (o *Outline) PrevSibling(id string) (string, bool) {
	i := o.IndexOf(id)
	if i <= 0 {
		return "", false
	}
	return o.Nodes[o.Nodes[id].ParentID].Children[i-1], true
}

// NextSibling returns the sibling immediately after id.
func (o *Outline) NextSibling(id string) (string, bool) {
	i := o.IndexOf(id)
	if i < 0 {
		return "", false
	}
	siblings := o.Nodes[o.Nodes[id].ParentID].Children
	if i+1 >= len(siblings) {
		return "", false
	}
	return siblings[i+1], true
}

// IsAncestor reports whether ancestor is a strict ancestor of id.
func (o *Outline) IsAncestor(ancestor, id string) bool {
	n, ok := o.Nodes[id]
	for steps := 0; ok && steps <= len(o.Nodes); steps++ {
		if n.ParentID == ancestor {
			return true
		}
		n, ok = o.Nodes[n.ParentID]
	}
	return false
}

// Subtree returns id followed by all of its descendants in document order.
func (o *Outline) Subtree(id string) []string {
	if !o.Has(id) {
		return nil
	}
	var out []string
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		children := o.Nodes[cur].Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out
}

// LastVisibleDescendant follows the last child of id while it is expanded.
func (o *Outline) LastVisibleDescendant(id string) string {
	cur, ok := o.Nodes[id]
	for ok && !cur.IsCollapsed && len(cur.Children) > 0 {
		id = cur.Children[len(cur.Children)-1]
		cur, ok = o.Nodes[id]
	}
	return id
}

// Flatten lists every visible node under rootID depth-first, skipping rootID
// itself. Children of collapsed nodes are omitted; the collapsed node stays.
// rootID's own collapse flag is ignored so a hoisted node always shows its children.
func (o *Outline) Flatten(rootID string) []Row {
	root, ok := o.Nodes[rootID]
	if !ok {
		return nil
	}
	rows := make([]Row, 0, len(o.Nodes))
	type frame struct {
		id    string
		depth int
	}
	stack := make([]frame, 0, len(root.Children))
	for i := len(root.Children) - 1; i >= 0; i-- {
		stack = append(stack, frame{root.Children[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := o.Nodes[f.id]
		if !ok {
			continue
		}
		rows = append(rows, Row{ID: f.id, Depth: f.depth, ParentID: n.ParentID})
		if n.IsCollapsed {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{n.Children[i], f.depth + 1})
		}
	}
	return rows
}

// Validate checks the structural invariants: single parent, acyclicity,
// referential integrity and root invariance.
func (o *Outline) Validate() error {
	root, ok := o.Nodes[o.RootID]
	if !ok {
		if len(o.Nodes) == 0 {
			return nil
		}
		return errors.Errorf("root %q missing", o.RootID)
	}
	if root.ParentID != "" {
		return errors.Errorf("root %q has parent %q", o.RootID, root.ParentID)
	}

	seen := make(map[string]string, len(o.Nodes))
	for id, n := range o.Nodes {
		if n.ID != id {
			return errors.Errorf("node keyed %q carries id %q", id, n.ID)
		}
		for _, c := range n.Children {
			if c == o.RootID {
				return errors.Errorf("root listed as child of %q", id)
			}
			if prev, dup := seen[c]; dup {
				return errors.Errorf("node %q listed under both %q and %q", c, prev, id)
			}
			seen[c] = id
			child, ok := o.Nodes[c]
			if !ok {
				return errors.Errorf("child %q of %q missing", c, id)
			}
			if child.ParentID != id {
				return errors.Errorf("child %q of %q points at parent %q", c, id, child.ParentID)
			}
		}
	}

	for id := range o.Nodes {
		if id == o.RootID {
			continue
		}
		if _, ok := seen[id]; !ok {
			return errors.Errorf("node %q is not listed under any parent", id)
		}
		cur := id
		for steps := 0; cur != o.RootID; steps++ {
			if steps > len(o.Nodes) {
				return errors.Errorf("cycle through %q", id)
			}
			cur = o.Nodes[cur].ParentID
		}
	}
	return nil
}

// Transfer copies the subtree under id into paste-ready literals. The node
// itself is included.
func (o *Outline) Transfer(id string) (NodeTransferData, bool) {
	n, ok := o.Nodes[id]
	if !ok {
		return NodeTransferData{}, false
	}
	d := NodeTransferData{Content: n.Content, Type: n.Type, Completed: n.Completed, Meta: n.Meta}
	for _, c := range n.Children {
		if child, ok := o.Transfer(c); ok {
			d.Children = append(d.Children, child)
		}
	}
	return d, true
}
