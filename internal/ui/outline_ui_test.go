package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/session"
	"nestnote/local-app/internal/view"
)

func testSnapshot() view.Snapshot {
	o := model.NewOutline("root")
	add := func(n *model.Node) {
		o.Nodes[n.ID] = n
		if p, ok := o.Nodes[n.ParentID]; ok {
			p.Children = append(p.Children, n.ID)
		}
	}
	add(&model.Node{ID: "root", Type: model.NodeText})
	add(&model.Node{ID: "a", ParentID: "root", Content: "Plan", Type: model.NodeH1})
	add(&model.Node{ID: "b", ParentID: "a", Content: "buy milk", Type: model.NodeTodo, Completed: true})
	add(&model.Node{ID: "c", ParentID: "root", Content: "docs", Type: model.NodeLink, Meta: map[string]string{"url": "https://example.com"}, IsCollapsed: true})
	add(&model.Node{ID: "d", ParentID: "c", Content: "hidden"})
	return view.Snapshot{Outline: o, ActiveRoot: "root", Rows: o.Flatten("root")}
}

func TestOutlineRendering(t *testing.T) {
	var buf bytes.Buffer
	NewOutlineUI(&buf, false).Outline(testSnapshot(), model.Focus{ID: "b"}, false)

	expected := "" +
		"  1   - # Plan\n" +
		"  2 >   - [x] buy milk\n" +
		"  3   + docs <https://example.com>\n"
	assert.Equal(t, expected, buf.String())
}

func TestOutlineRenderingWithIDsAndColor(t *testing.T) {
	var buf bytes.Buffer
	NewOutlineUI(&buf, true).Outline(testSnapshot(), model.Focus{}, true)
	out := buf.String()
	assert.Contains(t, out, "[a]")
	assert.Contains(t, out, string(ColorBold)+"Plan")
	assert.NotContains(t, out, "{{")
}

func TestOutlineRenderingEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewOutlineUI(&buf, false).Outline(view.Snapshot{}, model.Focus{}, false)
	assert.Equal(t, "(empty)\n", buf.String())
}

func TestHoistedHeader(t *testing.T) {
	s := testSnapshot()
	s.ActiveRoot = "a"
	s.Rows = s.Outline.Flatten("a")
	var buf bytes.Buffer
	NewOutlineUI(&buf, false).Outline(s, model.Focus{}, false)
	assert.Equal(t, "» Plan\n  1   - [x] buy milk\n", buf.String())
}

func TestVisualizerStripsTags(t *testing.T) {
	v := NewVisualizer(nil, false)
	assert.Equal(t, "a b c", v.render("a {{green}}b{{default}} c"))
	assert.Equal(t, "unterminated {{tag", v.render("unterminated {{tag"))
}

func TestPeers(t *testing.T) {
	var buf bytes.Buffer
	NewDocumentUI(&buf, false).Peers([]session.Peer{
		{ClientID: 1, User: "ana", Local: true},
		{ClientID: 2, User: "ben", Cursor: "n1:3"},
	})
	assert.Equal(t, "ana 1 (you)\nben 2 at n1:3\n", buf.String())
}

func TestPrompt(t *testing.T) {
	u := NewUI(nil, false)
	assert.Equal(t, "> ", u.Prompt("", "", ""))
	assert.Equal(t, "ana @ Plan [synced] > ", u.Prompt("ana", "Plan", "synced"))
}
