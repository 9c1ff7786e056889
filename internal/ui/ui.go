// Package ui renders session replies for the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

type UI struct {
	writer   io.Writer
	useColor bool
}

func NewUI(w io.Writer, useColor bool) *UI {
	return &UI{writer: w, useColor: useColor}
}

// Writer exposes the output so renderers can share it.
func (u *UI) Writer() io.Writer {
	return u.writer
}

func (u *UI) UseColor() bool {
	return u.useColor
}

func (u *UI) colorize(message string, color Color) string {
	if !u.useColor || color == ColorDefault {
		return message
	}
	return fmt.Sprintf("%s%s%s", color, message, ColorDefault)
}

func (u *UI) Printf(format string, args ...interface{}) {
	fmt.Fprintf(u.writer, format, args...)
}

func (u *UI) Println(message string) {
	fmt.Fprintln(u.writer, message)
}

func (u *UI) Error(message string) {
	fmt.Fprintf(u.writer, "%s %s\n", u.colorize("!", ColorRed), u.colorize(message, ColorLightOrange))
}

func (u *UI) Success(message string) {
	fmt.Fprintln(u.writer, u.colorize(message, ColorLightGreen))
}

func (u *UI) Warning(message string) {
	fmt.Fprintf(u.writer, "%s %s\n", u.colorize("?", ColorLightRed), u.colorize(message, ColorLightYellow))
}

func (u *UI) Info(message string) {
	fmt.Fprintln(u.writer, u.colorize(message, ColorGray))
}

// Prompt shows the signed-in user, the open document and the sync state.
func (u *UI) Prompt(user, document, status string) string {
	var b strings.Builder
	if user != "" {
		b.WriteString(u.colorize(user, ColorLightBlue))
		if document != "" {
			b.WriteString(u.colorize(" @ ", ColorWhite))
			b.WriteString(u.colorize(document, ColorLightPurple))
		}
		if status != "" {
			b.WriteString(u.colorize(" ["+status+"]", ColorDarkGray))
		}
		b.WriteString(" ")
	}
	b.WriteString(u.colorize("> ", ColorGreen))
	return b.String()
}

// ReadPassword reads a line from the terminal without echo.
func (u *UI) ReadPassword(prompt string) (string, error) {
	fmt.Fprint(u.writer, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(u.writer)
	if err != nil {
		return "", errors.Wrap(err, "failed to read password")
	}
	return string(password), nil
}
