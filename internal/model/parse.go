package model

import (
	"strings"
)

type parseNode struct {
	indent   int
	data     NodeTransferData
	children []*parseNode
}

// ParseIndented turns indentation-based text into paste-ready subtrees.
// A line nested deeper than its predecessor becomes that line's child.
// Bullet markers ("- ", "* ") are stripped; "[ ] " / "[x] " mark todos and
// leading "#", "##", "###", ">" select heading and quote types.
func ParseIndented(text string) []NodeTransferData {
	root := &parseNode{indent: -1}
	stack := []*parseNode{root}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := 0
		for _, r := range line {
			if r == ' ' {
				indent++
			} else if r == '\t' {
				indent += 4
			} else {
				break
			}
		}
		pn := &parseNode{indent: indent, data: parseLine(strings.TrimSpace(line))}

		for len(stack) > 1 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		parent.children = append(parent.children, pn)
		stack = append(stack, pn)
	}
	return root.build()
}

func (p *parseNode) build() []NodeTransferData {
	out := make([]NodeTransferData, 0, len(p.children))
	for _, c := range p.children {
		d := c.data
		d.Children = c.build()
		out = append(out, d)
	}
	return out
}

func parseLine(s string) NodeTransferData {
	for _, bullet := range []string{"- ", "* "} {
		if strings.HasPrefix(s, bullet) {
			s = s[len(bullet):]
			break
		}
	}
	d := NodeTransferData{Type: NodeText}
	switch {
	case strings.HasPrefix(s, "[ ] "):
		d.Type, s = NodeTodo, s[4:]
	case strings.HasPrefix(s, "[x] "), strings.HasPrefix(s, "[X] "):
		d.Type, d.Completed, s = NodeTodo, true, s[4:]
	case strings.HasPrefix(s, "### "):
		d.Type, s = NodeH3, s[4:]
	case strings.HasPrefix(s, "## "):
		d.Type, s = NodeH2, s[3:]
	case strings.HasPrefix(s, "# "):
		d.Type, s = NodeH1, s[2:]
	case strings.HasPrefix(s, "> "):
		d.Type, s = NodeQuote, s[2:]
	}
	d.Content = s
	return d
}

// FormatIndented renders subtrees in the form ParseIndented reads back.
func FormatIndented(nodes []NodeTransferData) string {
	var b strings.Builder
	var walk func(nodes []NodeTransferData, depth int)
	walk = func(nodes []NodeTransferData, depth int) {
		for _, n := range nodes {
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString("- ")
			switch n.Type {
			case NodeTodo:
				if n.Completed {
					b.WriteString("[x] ")
				} else {
					b.WriteString("[ ] ")
				}
			case NodeH1:
				b.WriteString("# ")
			case NodeH2:
				b.WriteString("## ")
			case NodeH3:
				b.WriteString("### ")
			case NodeQuote:
				b.WriteString("> ")
			}
			b.WriteString(n.Content)
			b.WriteString("\n")
			walk(n.Children, depth+1)
		}
	}
	walk(nodes, 0)
	return b.String()
}
