// Package model defines the data structures used throughout the nestnote application.
package model

import "time"

// NodeType tags how a node is rendered and how a few structural operations treat it.
type NodeType string

const (
	NodeText  NodeType = "text"
	NodeH1    NodeType = "h1"
	NodeH2    NodeType = "h2"
	NodeH3    NodeType = "h3"
	NodeTodo  NodeType = "todo"
	NodeCode  NodeType = "code"
	NodeQuote NodeType = "quote"
	NodeLink  NodeType = "link"
)

var nodeTypes = map[NodeType]bool{
	NodeText: true, NodeH1: true, NodeH2: true, NodeH3: true,
	NodeTodo: true, NodeCode: true, NodeQuote: true, NodeLink: true,
}

// Valid reports whether t belongs to the closed set of node types.
func (t NodeType) Valid() bool {
	return nodeTypes[t]
}

// ParseNodeType maps a free-form tag onto a NodeType, falling back to NodeText.
func ParseNodeType(s string) (NodeType, bool) {
	t := NodeType(s)
	if !t.Valid() {
		return NodeText, false
	}
	return t, true
}

// Node is the atomic unit of the outline. Children is derived from the
// replicated parent/rank fields and is always in document order.
type Node struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	ParentID    string            `json:"parent_id,omitempty"`
	Rank        string            `json:"rank,omitempty"`
	Children    []string          `json:"children"`
	IsCollapsed bool              `json:"is_collapsed"`
	Type        NodeType          `json:"type"`
	Completed   bool              `json:"completed"`
	Meta        map[string]string `json:"meta,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NodeTransferData is a literal subtree handed to PasteNodes by an external parser.
type NodeTransferData struct {
	Content   string             `json:"content"`
	Children  []NodeTransferData `json:"children"`
	Type      NodeType           `json:"type,omitempty"`
	Completed bool               `json:"completed,omitempty"`
	Meta      map[string]string  `json:"meta,omitempty"`
}

// Focus names the node and caret position that should receive input next.
type Focus struct {
	ID     string
	Cursor int
}
