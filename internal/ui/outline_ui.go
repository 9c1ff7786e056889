package ui

import (
	"fmt"
	"io"
	"strings"

	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/view"
)

// OutlineUI prints projected rows with their row numbers.
type OutlineUI struct {
	visualizer *Visualizer
}

func NewOutlineUI(w io.Writer, useColor bool) *OutlineUI {
	return &OutlineUI{visualizer: NewVisualizer(w, useColor)}
}

// Outline draws every visible row under the snapshot's active root. The
// focused row is marked with '>'.
func (oui *OutlineUI) Outline(s view.Snapshot, focus model.Focus, showID bool) {
	if s.Outline == nil || len(s.Rows) == 0 {
		oui.visualizer.Println("(empty)")
		return
	}
	if s.ActiveRoot != s.Outline.RootID {
		if root, ok := s.Outline.Get(s.ActiveRoot); ok {
			oui.visualizer.Line(fmt.Sprintf("{{purple}}» %s{{default}}", root.Content))
		}
	}
	for i, row := range s.Rows {
		n, ok := s.Outline.Get(row.ID)
		if !ok {
			continue
		}
		oui.visualizer.Line(oui.line(i+1, row, n, row.ID == focus.ID, showID))
	}
}

func (oui *OutlineUI) line(number int, row model.Row, n *model.Node, focused, showID bool) string {
	var b strings.Builder
	marker := " "
	if focused {
		marker = "{{green}}>{{default}}"
	}
	fmt.Fprintf(&b, "{{dim}}%3d{{default}} %s %s", number, marker, strings.Repeat("  ", row.Depth))

	switch {
	case n.IsCollapsed && len(n.Children) > 0:
		b.WriteString("{{yellow}}+{{default}} ")
	default:
		b.WriteString("- ")
	}

	switch n.Type {
	case model.NodeTodo:
		if n.Completed {
			b.WriteString("[x] ")
		} else {
			b.WriteString("[ ] ")
		}
	case model.NodeH1:
		b.WriteString("# ")
	case model.NodeH2:
		b.WriteString("## ")
	case model.NodeH3:
		b.WriteString("### ")
	case model.NodeQuote:
		b.WriteString("> ")
	}

	tag := typeTags[n.Type]
	if n.Completed {
		tag = "dim"
	}
	fmt.Fprintf(&b, "{{%s}}%s{{default}}", tag, n.Content)
	if url := n.Meta["url"]; n.Type == model.NodeLink && url != "" {
		fmt.Fprintf(&b, " {{gray}}<%s>{{default}}", url)
	}
	if lang := n.Meta["language"]; n.Type == model.NodeCode && lang != "" {
		fmt.Fprintf(&b, " {{gray}}(%s){{default}}", lang)
	}
	if showID {
		fmt.Fprintf(&b, " {{orange}}[%s]{{default}}", n.ID)
	}
	return b.String()
}
