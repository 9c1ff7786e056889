package ui

import (
	"fmt"
	"io"

	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/session"
)

type DocumentUI struct {
	visualizer *Visualizer
}

func NewDocumentUI(w io.Writer, useColor bool) *DocumentUI {
	return &DocumentUI{visualizer: NewVisualizer(w, useColor)}
}

// DocumentList numbers documents in the order "open <n>" accepts them.
func (dui *DocumentUI) DocumentList(docs []*model.Document, current string) {
	if len(docs) == 0 {
		dui.visualizer.Println("No documents yet. Use 'new <title>' to create one.")
		return
	}
	for i, d := range docs {
		marker := " "
		if d.ID == current {
			marker = "{{green}}*{{default}}"
		}
		dui.visualizer.Line(fmt.Sprintf("%s{{dim}}%3d{{default}} %s {{gray}}%s  %s{{default}}",
			marker, i+1, d.Title, d.ID, d.Updated.Format("2006-01-02 15:04")))
	}
}

// Peers lists the presence table; the local client is marked.
func (dui *DocumentUI) Peers(peers []session.Peer) {
	if len(peers) == 0 {
		dui.visualizer.Println("Nobody here.")
		return
	}
	for _, p := range peers {
		user := p.User
		if user == "" {
			user = "?"
		}
		line := fmt.Sprintf("{{blue}}%s{{default}} {{dim}}%d{{default}}", user, p.ClientID)
		if p.Local {
			line += " {{green}}(you){{default}}"
		}
		if p.Cursor != "" {
			line += " {{gray}}at " + p.Cursor + "{{default}}"
		}
		dui.visualizer.Line(line)
	}
}
