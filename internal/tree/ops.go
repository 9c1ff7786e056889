package tree

import (
	"unicode/utf8"

	"nestnote/local-app/internal/model"
)

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Add inserts an empty text node under parentID at index. An empty parentID
// means the document root, which is created on demand; a negative index
// appends.
func (e *Engine) Add(parentID string, index int) Result {
	return e.transact(func(w *writer, active string) Result {
		if parentID == "" {
			parentID = w.o.RootID
		}
		if !w.o.Has(parentID) {
			if parentID != w.o.RootID {
				return e.noop("add", parentID, "parent not found")
			}
			w.createRoot()
		}
		keys := w.ranksAt(parentID, index, "", 1)
		if len(keys) != 1 {
			return Result{}
		}
		id := e.newID()
		w.create(id, parentID, keys[0], model.NodeTransferData{})
		return Result{Focus: model.Focus{ID: id}, Created: id, Changed: true}
	})
}

// AddBefore inserts an empty node right before siblingID. Focus stays on
// siblingID so typing continues on the original line.
func (e *Engine) AddBefore(siblingID string) Result {
	return e.transact(func(w *writer, active string) Result {
		sibling, ok := w.node(siblingID)
		if !ok || siblingID == w.o.RootID {
			return e.noop("add_before", siblingID, "sibling not found")
		}
		keys := w.ranksAt(sibling.ParentID, w.o.IndexOf(siblingID), "", 1)
		if len(keys) != 1 {
			return Result{}
		}
		id := e.newID()
		w.create(id, sibling.ParentID, keys[0], model.NodeTransferData{})
		return Result{Focus: model.Focus{ID: siblingID}, Created: id, Changed: true}
	})
}

// deleteFocus picks where input goes once id is gone: the previous sibling's
// last visible descendant, else the parent unless it is the visual root,
// else the next sibling, else the visual root itself.
func deleteFocus(o *model.Outline, id, active string) model.Focus {
	if prev, ok := o.PrevSibling(id); ok {
		last := o.LastVisibleDescendant(prev)
		return model.Focus{ID: last, Cursor: runeLen(o.Nodes[last].Content)}
	}
	n := o.Nodes[id]
	if n.ParentID != active {
		if parent, ok := o.Get(n.ParentID); ok {
			return model.Focus{ID: parent.ID, Cursor: runeLen(parent.Content)}
		}
	}
	if next, ok := o.NextSibling(id); ok {
		return model.Focus{ID: next}
	}
	return model.Focus{ID: active}
}

// Delete removes id with its whole subtree.
func (e *Engine) Delete(id string) Result {
	return e.transact(func(w *writer, active string) Result {
		if !w.o.Has(id) || id == w.o.RootID || id == active {
			return e.noop("delete", id, "node not deletable")
		}
		focus := deleteFocus(w.o, id, active)
		w.remove(id)
		return Result{Focus: focus, Changed: true}
	})
}

// DeleteMany removes every listed subtree in one transaction. Focus is
// computed from the first id before anything is removed.
func (e *Engine) DeleteMany(ids []string) Result {
	return e.transact(func(w *writer, active string) Result {
		var targets []string
		for _, id := range ids {
			if w.o.Has(id) && id != w.o.RootID && id != active {
				targets = append(targets, id)
			}
		}
		if len(targets) == 0 {
			return e.noop("delete_many", "", "no deletable nodes")
		}
		focus := deleteFocus(w.o, targets[0], active)

		removed := make(map[string]bool)
		for _, id := range targets {
			if removed[id] {
				continue
			}
			for _, r := range w.remove(id) {
				removed[r] = true
			}
		}
		if removed[focus.ID] {
			focus = model.Focus{ID: active}
		}
		return Result{Focus: focus, Changed: true}
	})
}

func (e *Engine) UpdateContent(id, content string) Result {
	return e.transact(func(w *writer, active string) Result {
		n, ok := w.node(id)
		if !ok {
			return e.noop("update_content", id, "node not found")
		}
		if n.Content == content {
			return Result{}
		}
		w.tx.Set(id, fieldContent, content)
		w.touch(id)
		return Result{Changed: true}
	})
}

func (e *Engine) ToggleCollapse(id string) Result {
	return e.transact(func(w *writer, active string) Result {
		n, ok := w.node(id)
		if !ok {
			return e.noop("toggle_collapse", id, "node not found")
		}
		w.tx.Set(id, fieldCollapsed, !n.IsCollapsed)
		w.touch(id)
		return Result{Changed: true}
	})
}

func (e *Engine) ToggleComplete(id string) Result {
	return e.transact(func(w *writer, active string) Result {
		n, ok := w.node(id)
		if !ok {
			return e.noop("toggle_complete", id, "node not found")
		}
		w.tx.Set(id, fieldCompleted, !n.Completed)
		w.touch(id)
		return Result{Changed: true}
	})
}

// UpdateType retags id. A non-nil meta replaces the node's attributes.
func (e *Engine) UpdateType(id string, t model.NodeType, meta map[string]string) Result {
	if !t.Valid() {
		e.logger.WithField("type", string(t)).Warn("ignoring unknown node type")
		return Result{}
	}
	return e.transact(func(w *writer, active string) Result {
		n, ok := w.node(id)
		if !ok {
			return e.noop("update_type", id, "node not found")
		}
		changed := false
		if n.Type != t {
			w.tx.Set(id, fieldType, string(t))
			changed = true
		}
		if meta != nil {
			w.tx.Set(id, fieldMeta, meta)
			changed = true
		}
		if changed {
			w.touch(id)
		}
		return Result{Changed: changed}
	})
}
