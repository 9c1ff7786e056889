package ui

import (
	"fmt"
	"io"
	"strings"
)

// Visualizer prints lines annotated with {{tag}} color markers. Without color
// the markers are stripped.
type Visualizer struct {
	writer   io.Writer
	useColor bool
}

func NewVisualizer(w io.Writer, useColor bool) *Visualizer {
	return &Visualizer{writer: w, useColor: useColor}
}

func (v *Visualizer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(v.writer, format, args...)
}

func (v *Visualizer) Println(message string) {
	fmt.Fprintln(v.writer, message)
}

// Line renders one annotated line followed by a newline.
func (v *Visualizer) Line(line string) {
	fmt.Fprintln(v.writer, v.render(line))
}

func (v *Visualizer) render(line string) string {
	var b strings.Builder
	colored := false
	for len(line) > 0 {
		start := strings.Index(line, "{{")
		if start == -1 {
			b.WriteString(line)
			break
		}
		end := strings.Index(line[start:], "}}")
		if end == -1 {
			b.WriteString(line)
			break
		}
		end += start

		b.WriteString(line[:start])
		color, ok := tags[line[start+2:end]]
		if !ok {
			color = ColorDefault
		}
		if v.useColor {
			b.WriteString(string(color))
			colored = color != ColorDefault
		}
		line = line[end+2:]
	}
	if colored {
		b.WriteString(string(ColorDefault))
	}
	return b.String()
}
