package tree

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"nestnote/local-app/internal/crdt"
	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/rank"
)

// Replicated fields of a node. The node id is the document key.
const (
	fieldParent    = "parent"
	fieldRank      = "rank"
	fieldContent   = "content"
	fieldType      = "type"
	fieldCollapsed = "collapsed"
	fieldCompleted = "completed"
	fieldMeta      = "meta"
	fieldUpdatedAt = "updatedAt"
	fieldDeleted   = "deleted"
)

func readNode(r crdt.Reader, id string) *model.Node {
	n := &model.Node{ID: id, Type: model.NodeText}
	r.Get(id, fieldParent, &n.ParentID)
	r.Get(id, fieldRank, &n.Rank)
	r.Get(id, fieldContent, &n.Content)
	r.Get(id, fieldCollapsed, &n.IsCollapsed)
	r.Get(id, fieldCompleted, &n.Completed)
	r.Get(id, fieldMeta, &n.Meta)

	var t string
	if r.Get(id, fieldType, &t) {
		n.Type, _ = model.ParseNodeType(t)
	}
	var updated int64
	if r.Get(id, fieldUpdatedAt, &updated) {
		n.UpdatedAt = time.UnixMilli(updated).UTC()
	}
	return n
}

// load materializes the nodes reachable from rootID. Tombstoned nodes, and
// nodes whose parent chain never reaches the root, are left out; the result
// depends only on document state so every replica derives the same outline.
func load(r crdt.Reader, rootID string) *model.Outline {
	o := model.NewOutline(rootID)

	nodes := make(map[string]*model.Node)
	byParent := make(map[string][]*model.Node)
	for _, key := range r.Keys() {
		var deleted bool
		if r.Get(key, fieldDeleted, &deleted) && deleted {
			continue
		}
		n := readNode(r, key)
		nodes[key] = n
		if key != rootID {
			byParent[n.ParentID] = append(byParent[n.ParentID], n)
		}
	}

	root, ok := nodes[rootID]
	if !ok {
		return o
	}
	root.ParentID = ""

	queue := []*model.Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		o.Nodes[n.ID] = n

		children := byParent[n.ID]
		sort.Slice(children, func(i, j int) bool {
			if children[i].Rank != children[j].Rank {
				return children[i].Rank < children[j].Rank
			}
			return children[i].ID < children[j].ID
		})
		n.Children = make([]string, 0, len(children))
		for _, c := range children {
			n.Children = append(n.Children, c.ID)
			queue = append(queue, c)
		}
	}
	return o
}

// writer performs the mutations of one transaction and keeps a working
// outline in step with them.
type writer struct {
	tx     *crdt.Txn
	o      *model.Outline
	now    int64
	logger logrus.FieldLogger
}

func (w *writer) reload() {
	w.o = load(w.tx, w.o.RootID)
}

func (w *writer) node(id string) (*model.Node, bool) {
	return w.o.Get(id)
}

func (w *writer) touch(id string) {
	w.tx.Set(id, fieldUpdatedAt, w.now)
}

// ranksAt returns n ascending ranks for insertion at index among the
// children of parentID, ignoring exclude. Siblings whose ranks leave no room
// (equal ranks from concurrent inserts, or invalid ones) are rebalanced first.
func (w *writer) ranksAt(parentID string, index int, exclude string, n int) []string {
	parent, ok := w.node(parentID)
	if !ok {
		return nil
	}
	siblings := make([]string, 0, len(parent.Children))
	for _, c := range parent.Children {
		if c != exclude {
			siblings = append(siblings, c)
		}
	}
	if index < 0 || index > len(siblings) {
		index = len(siblings)
	}

	bounds := func() (string, string) {
		var lo, hi string
		if index > 0 {
			lo = w.o.Nodes[siblings[index-1]].Rank
		}
		if index < len(siblings) {
			hi = w.o.Nodes[siblings[index]].Rank
		}
		return lo, hi
	}

	lo, hi := bounds()
	keys, err := rank.NBetween(lo, hi, n)
	if err == nil {
		return keys
	}

	w.logger.WithError(err).WithField("parent", parentID).Debug("rebalancing sibling ranks")
	fresh, err := rank.NBetween("", "", len(siblings))
	if err != nil {
		w.logger.WithError(err).Error("failed to rebalance ranks")
		return nil
	}
	for i, id := range siblings {
		w.tx.Set(id, fieldRank, fresh[i])
		w.o.Nodes[id].Rank = fresh[i]
	}
	lo, hi = bounds()
	keys, err = rank.NBetween(lo, hi, n)
	if err != nil {
		w.logger.WithError(err).Error("failed to allocate ranks")
		return nil
	}
	return keys
}

// create writes a brand-new node. The working outline is not reloaded.
func (w *writer) create(id, parentID, key string, data model.NodeTransferData) {
	t := data.Type
	if !t.Valid() {
		t = model.NodeText
	}
	w.tx.Set(id, fieldParent, parentID)
	w.tx.Set(id, fieldRank, key)
	w.tx.Set(id, fieldContent, data.Content)
	w.tx.Set(id, fieldType, string(t))
	w.tx.Set(id, fieldCollapsed, false)
	w.tx.Set(id, fieldCompleted, data.Completed)
	if len(data.Meta) > 0 {
		w.tx.Set(id, fieldMeta, data.Meta)
	}
	w.touch(id)
}

// move reparents id to parentID at index and refreshes the working outline.
func (w *writer) move(id, parentID string, index int) bool {
	keys := w.ranksAt(parentID, index, id, 1)
	if len(keys) != 1 {
		return false
	}
	w.tx.Set(id, fieldParent, parentID)
	w.tx.Set(id, fieldRank, keys[0])
	w.reload()
	return true
}

// remove tombstones id and all of its descendants.
func (w *writer) remove(id string) []string {
	removed := w.o.Subtree(id)
	for _, r := range removed {
		w.tx.Set(r, fieldDeleted, true)
		w.touch(r)
	}
	return removed
}

func (w *writer) createRoot() {
	root := w.o.RootID
	w.tx.Set(root, fieldParent, "")
	w.tx.Set(root, fieldRank, "")
	w.tx.Set(root, fieldContent, "")
	w.tx.Set(root, fieldType, string(model.NodeText))
	w.tx.Set(root, fieldDeleted, false)
	w.touch(root)
	w.reload()
}

// rankSpread returns n ranks for the children of a freshly created node.
func rankSpread(n int) ([]string, error) {
	return rank.NBetween("", "", n)
}

// position returns target's index among its siblings with exclude taken out,
// which is the index space ranksAt works in.
func (w *writer) position(target, exclude string) int {
	n, ok := w.node(target)
	if !ok {
		return -1
	}
	parent, ok := w.node(n.ParentID)
	if !ok {
		return -1
	}
	i := 0
	for _, c := range parent.Children {
		if c == exclude {
			continue
		}
		if c == target {
			return i
		}
		i++
	}
	return -1
}
