package tree

import (
	"sort"

	"nestnote/local-app/internal/config"
	"nestnote/local-app/internal/model"
)

// movable reports whether id may change position under the visual root.
func movable(o *model.Outline, id, active string) bool {
	return o.Has(id) && id != o.RootID && id != active
}

// IndentNode makes id the last child of its previous sibling, expanding the
// new parent so id stays visible.
func (e *Engine) IndentNode(id string) Result {
	return e.transact(func(w *writer, active string) Result {
		if !e.indent(w, active, id) {
			return Result{}
		}
		return Result{Changed: true}
	})
}

func (e *Engine) indent(w *writer, active, id string) bool {
	if !movable(w.o, id, active) {
		e.noop("indent", id, "node not movable")
		return false
	}
	prev, ok := w.o.PrevSibling(id)
	if !ok {
		e.noop("indent", id, "no previous sibling")
		return false
	}
	if w.o.Nodes[prev].IsCollapsed {
		w.tx.Set(prev, fieldCollapsed, false)
		w.touch(prev)
	}
	return w.move(id, prev, -1)
}

// OutdentNode moves id right after its parent, under the grandparent. In
// non-logical mode the siblings that followed id become its children first.
func (e *Engine) OutdentNode(id string) Result {
	logical := e.Behavior().Logical()
	return e.transact(func(w *writer, active string) Result {
		if !e.outdent(w, active, id, logical) {
			return Result{}
		}
		return Result{Changed: true}
	})
}

func (e *Engine) outdent(w *writer, active, id string, logical bool) bool {
	if !movable(w.o, id, active) {
		e.noop("outdent", id, "node not movable")
		return false
	}
	parentID := w.o.Nodes[id].ParentID
	if parentID == w.o.RootID || parentID == active {
		e.noop("outdent", id, "already at top level")
		return false
	}
	parent := w.o.Nodes[parentID]
	if _, ok := w.o.Get(parent.ParentID); !ok {
		e.noop("outdent", id, "no grandparent")
		return false
	}

	if !logical {
		i := w.o.IndexOf(id)
		following := append([]string(nil), parent.Children[i+1:]...)
		for _, sibling := range following {
			if !w.move(sibling, id, -1) {
				return false
			}
		}
	}
	return w.move(id, parent.ParentID, w.position(parentID, id)+1)
}

// topmost keeps the ids whose parent is not itself selected, in document
// order.
func topmost(o *model.Outline, ids []string) []string {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	order := make(map[string]int, len(o.Nodes))
	for i, id := range o.Subtree(o.RootID) {
		order[id] = i
	}
	var out []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		n, ok := o.Get(id)
		if !ok || seen[id] || selected[n.ParentID] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

// IndentNodes indents the topmost selected nodes in document order.
func (e *Engine) IndentNodes(ids []string) Result {
	return e.transact(func(w *writer, active string) Result {
		changed := false
		for _, id := range topmost(w.o, ids) {
			if e.indent(w, active, id) {
				changed = true
			}
		}
		return Result{Changed: changed}
	})
}

// OutdentNodes outdents the topmost selected nodes, last first so their
// relative order survives.
func (e *Engine) OutdentNodes(ids []string) Result {
	logical := e.Behavior().Logical()
	return e.transact(func(w *writer, active string) Result {
		changed := false
		nodes := topmost(w.o, ids)
		for i := len(nodes) - 1; i >= 0; i-- {
			if e.outdent(w, active, nodes[i], logical) {
				changed = true
			}
		}
		return Result{Changed: changed}
	})
}

// MoveNode swaps id with its neighbour in the flattened visible outline,
// which may change its depth by one level at a time.
func (e *Engine) MoveNode(id string, dir Direction) Result {
	return e.transact(func(w *writer, active string) Result {
		if !movable(w.o, id, active) {
			return e.noop("move", id, "node not movable")
		}
		rows := w.o.Flatten(active)
		i := -1
		for k, r := range rows {
			if r.ID == id {
				i = k
				break
			}
		}
		if i < 0 {
			return e.noop("move", id, "node not visible")
		}

		var moved bool
		if dir == Up {
			moved = e.moveUp(w, active, rows, i)
		} else {
			moved = e.moveDown(w, active, rows, i)
		}
		return Result{Changed: moved}
	})
}

func (e *Engine) moveUp(w *writer, active string, rows []model.Row, i int) bool {
	if i == 0 {
		return false
	}
	id, depth := rows[i].ID, rows[i].Depth
	prev := rows[i-1]
	if prev.Depth > depth {
		// Tuck into the subtree above, right after its last visible row.
		return w.move(id, prev.ParentID, w.position(prev.ID, id)+1)
	}
	// prev is either the previous sibling or the parent.
	return w.move(id, prev.ParentID, w.position(prev.ID, id))
}

func (e *Engine) moveDown(w *writer, active string, rows []model.Row, i int) bool {
	id, depth := rows[i].ID, rows[i].Depth
	j := i + 1
	for j < len(rows) && rows[j].Depth > depth {
		j++
	}
	if j < len(rows) && rows[j].Depth == depth {
		next := w.o.Nodes[rows[j].ID]
		if len(next.Children) > 0 && !next.IsCollapsed {
			return w.move(id, next.ID, 0)
		}
		return w.move(id, next.ParentID, w.position(next.ID, id)+1)
	}

	parentID := rows[i].ParentID
	if parentID == active {
		return false
	}
	parent := w.o.Nodes[parentID]
	return w.move(id, parent.ParentID, w.position(parentID, id)+1)
}

// SplitNode cuts id's content at cursor (in runes). The tail moves to a new
// node placed according to the split behaviour; code blocks are never split.
func (e *Engine) SplitNode(id string, cursor int) Result {
	behavior := e.Behavior().SplitBehavior
	return e.transact(func(w *writer, active string) Result {
		n, ok := w.node(id)
		if !ok || id == w.o.RootID {
			return e.noop("split", id, "node not found")
		}
		if n.Type == model.NodeCode {
			return e.noop("split", id, "code blocks are not split")
		}

		text := []rune(n.Content)
		if cursor < 0 {
			cursor = 0
		}
		if cursor > len(text) {
			cursor = len(text)
		}
		left, right := string(text[:cursor]), string(text[cursor:])

		asChild := behavior == config.SplitChild ||
			(behavior == config.SplitAuto && len(n.Children) > 0) ||
			id == active
		parentID, index := n.ParentID, w.o.IndexOf(id)+1
		if asChild {
			parentID, index = id, 0
		}

		keys := w.ranksAt(parentID, index, "", 1)
		if len(keys) != 1 {
			return Result{}
		}
		data := model.NodeTransferData{Content: right}
		if n.Type == model.NodeTodo {
			data.Type = model.NodeTodo
		}
		newID := e.newID()
		w.tx.Set(id, fieldContent, left)
		w.touch(id)
		w.create(newID, parentID, keys[0], data)
		return Result{Focus: model.Focus{ID: newID}, Created: newID, Changed: true}
	})
}

// MergeNode folds id into its previous sibling: content is appended, children
// are adopted after the sibling's own, and id is removed.
func (e *Engine) MergeNode(id string) Result {
	return e.transact(func(w *writer, active string) Result {
		if !movable(w.o, id, active) {
			return e.noop("merge", id, "node not mergeable")
		}
		prevID, ok := w.o.PrevSibling(id)
		if !ok {
			return e.noop("merge", id, "first child")
		}
		n, prev := w.o.Nodes[id], w.o.Nodes[prevID]
		junction := runeLen(prev.Content)

		children := append([]string(nil), n.Children...)
		if len(children) > 0 {
			keys := w.ranksAt(prevID, -1, "", len(children))
			if len(keys) != len(children) {
				return Result{}
			}
			for i, c := range children {
				w.tx.Set(c, fieldParent, prevID)
				w.tx.Set(c, fieldRank, keys[i])
			}
		}
		w.tx.Set(prevID, fieldContent, prev.Content+n.Content)
		w.touch(prevID)
		w.tx.Set(id, fieldDeleted, true)
		w.touch(id)
		return Result{Focus: model.Focus{ID: prevID, Cursor: junction}, Changed: true}
	})
}

// PasteNodes materializes literal subtrees under parentID starting at index.
// Focus goes to the end of the last top-level node inserted.
func (e *Engine) PasteNodes(parentID string, index int, nodes []model.NodeTransferData) Result {
	if len(nodes) == 0 {
		return Result{}
	}
	return e.transact(func(w *writer, active string) Result {
		if parentID == "" {
			parentID = w.o.RootID
		}
		if !w.o.Has(parentID) {
			if parentID != w.o.RootID {
				return e.noop("paste", parentID, "parent not found")
			}
			w.createRoot()
		}
		keys := w.ranksAt(parentID, index, "", len(nodes))
		if len(keys) != len(nodes) {
			return Result{}
		}
		var last string
		for i, data := range nodes {
			last = e.paste(w, parentID, keys[i], data)
		}
		return Result{
			Focus:   model.Focus{ID: last, Cursor: runeLen(nodes[len(nodes)-1].Content)},
			Created: last,
			Changed: true,
		}
	})
}

func (e *Engine) paste(w *writer, parentID, key string, data model.NodeTransferData) string {
	id := e.newID()
	w.create(id, parentID, key, data)
	if len(data.Children) == 0 {
		return id
	}
	keys, err := rankSpread(len(data.Children))
	if err != nil {
		e.logger.WithError(err).Error("failed to allocate paste ranks")
		return id
	}
	for i, child := range data.Children {
		e.paste(w, id, keys[i], child)
	}
	return id
}
