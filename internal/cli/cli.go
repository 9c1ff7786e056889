// Package cli provides the command-line interface: it parses REPL lines into
// commands, runs them through the session manager and renders the replies.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"

	"nestnote/local-app/internal/log"
	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/session"
	"nestnote/local-app/internal/ui"
)

// ErrExit is returned once the user asks to quit.
var ErrExit = fmt.Errorf("exit requested: %w", io.EOF)

type CLI struct {
	Manager   *session.Manager
	SessionID string
	UI        *ui.UI
	RL        *readline.Instance
	Prompt    string

	outline      *ui.OutlineUI
	documents    *ui.DocumentUI
	logger       *log.Logger
	readPassword func(prompt string) (string, error)
}

// NewCLI opens a session on m. rl may be nil when only scripts are run.
func NewCLI(m *session.Manager, u *ui.UI, rl *readline.Instance, logger *log.Logger) *CLI {
	c := &CLI{
		Manager:      m,
		SessionID:    m.SessionAdd(),
		UI:           u,
		RL:           rl,
		outline:      ui.NewOutlineUI(u.Writer(), u.UseColor()),
		documents:    ui.NewDocumentUI(u.Writer(), u.UseColor()),
		logger:       logger,
		readPassword: u.ReadPassword,
	}
	c.UpdatePrompt()
	return c
}

// Run reads and executes one line.
func (c *CLI) Run() error {
	line, err := c.RL.Readline()
	if err != nil {
		return err
	}
	return c.ExecuteLine(line)
}

// ExecuteLine parses and runs one line. Command failures are reported to the
// user and logged; only ErrExit is returned.
func (c *CLI) ExecuteLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	cmd := ParseCommand(ParseArgs(line))
	err := c.ExecuteCommand(cmd)
	if err == nil || errors.Is(err, ErrExit) {
		return err
	}
	c.UI.Error(err.Error())
	c.logger.LogError(err)
	return nil
}

// ExecuteScript runs every line of filename, stopping early on quit.
func (c *CLI) ExecuteScript(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open script")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if err := c.ExecuteLine(scanner.Text()); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "failed to read script")
}

// ParseArgs splits input on spaces, keeping double-quoted runs together.
func ParseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes, quoted := false, false

	for _, char := range input {
		switch {
		case char == '"':
			inQuotes = !inQuotes
			quoted = true
		case char == ' ' && !inQuotes:
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
			}
			quoted = false
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}
	return args
}

// ParseCommand turns split arguments into a command. Arguments starting with
// "--" become flags.
func ParseCommand(args []string) model.Command {
	if len(args) == 0 {
		return model.Command{}
	}
	cmd := model.Command{Operation: strings.ToLower(args[0]), Flags: map[string]bool{}}
	for _, arg := range args[1:] {
		if strings.HasPrefix(arg, "--") && len(arg) > 2 {
			cmd.Flags[strings.TrimPrefix(arg, "--")] = true
			continue
		}
		cmd.Args = append(cmd.Args, arg)
	}
	return cmd
}

// ExecuteCommand handles the interface-only commands and hands the rest to
// the session.
func (c *CLI) ExecuteCommand(cmd model.Command) error {
	switch cmd.Operation {
	case "":
		return errors.New("no command provided")
	case "help":
		c.printHelp(cmd.Args)
		return nil
	case "exit", "quit":
		c.UI.Info("Exiting...")
		return ErrExit
	case "login", "register":
		if len(cmd.Args) == 1 {
			password, err := c.readPassword("Password: ")
			if err != nil {
				return err
			}
			cmd.Args = append(cmd.Args, password)
		}
	}

	reply, err := c.Manager.SessionRun(c.SessionID, cmd)
	if err != nil {
		return err
	}
	c.render(reply, cmd.Flags["id"])
	c.UpdatePrompt()
	return nil
}

func (c *CLI) render(reply *session.Reply, showID bool) {
	if reply == nil {
		return
	}
	if reply.Snapshot != nil {
		c.outline.Outline(*reply.Snapshot, reply.Focus, showID)
	}
	if reply.Documents != nil {
		current := ""
		if s, ok := c.Manager.SessionGet(c.SessionID); ok {
			if doc := s.Document(); doc != nil {
				current = doc.ID
			}
		}
		c.documents.DocumentList(reply.Documents, current)
	}
	if reply.Peers != nil {
		c.documents.Peers(reply.Peers)
	}
	if reply.Message != "" {
		c.UI.Success(reply.Message)
	}
}

// UpdatePrompt reflects the session state in the readline prompt.
func (c *CLI) UpdatePrompt() {
	var user, document, status string
	if s, ok := c.Manager.SessionGet(c.SessionID); ok {
		if u := s.User(); u != nil {
			user = u.Username
		}
		if d := s.Document(); d != nil {
			document = d.Title
		}
		if p := s.Provider(); p != nil {
			status = p.Status().String()
		}
	}
	c.Prompt = c.UI.Prompt(user, document, status)
	if c.RL != nil {
		c.RL.SetPrompt(c.Prompt)
	}
}
