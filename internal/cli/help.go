package cli

import "strings"

// CommandHelp is the help entry for one command.
type CommandHelp struct {
	Group     string
	Operation string
	ShortDesc string
	Syntax    string
	Arguments []string
	Examples  []string
}

// printHelp shows the grouped overview, one group, or one command.
func (c *CLI) printHelp(args []string) {
	if len(args) == 0 {
		c.UI.Println("Command syntax: <command> [arguments] [--flags]")
		c.UI.Println("Rows are numbered as shown by 'show'; 0 is the visual root. Pass --id to use node ids.")
		group := ""
		for _, h := range commandHelps {
			if h.Group != group {
				group = h.Group
				c.UI.Printf("\n%s:\n", group)
			}
			c.UI.Printf("  %-10s %s\n", h.Operation, h.ShortDesc)
		}
		return
	}

	name := strings.ToLower(args[0])
	found := false
	for _, h := range commandHelps {
		switch {
		case h.Operation == name:
			c.UI.Printf("Syntax: %s\n%s\n", h.Syntax, h.ShortDesc)
			for _, arg := range h.Arguments {
				c.UI.Printf("  %s\n", arg)
			}
			for _, ex := range h.Examples {
				c.UI.Printf("  e.g. %s\n", ex)
			}
			return
		case h.Group == name:
			c.UI.Printf("  %-10s %s\n", h.Operation, h.ShortDesc)
			found = true
		}
	}
	if !found {
		c.UI.Warning("No help for " + name)
	}
}

var commandHelps = []CommandHelp{
	{Group: "account", Operation: "register", ShortDesc: "Create a local account", Syntax: "register <username> [password]"},
	{Group: "account", Operation: "login", ShortDesc: "Sign in; required before sync", Syntax: "login <username> [password]",
		Arguments: []string{"password: prompted without echo when omitted"}},
	{Group: "account", Operation: "logout", ShortDesc: "Close the document and sign out", Syntax: "logout"},

	{Group: "document", Operation: "docs", ShortDesc: "List your documents", Syntax: "docs"},
	{Group: "document", Operation: "new", ShortDesc: "Create and open a document", Syntax: "new <title>", Examples: []string{`new "Weekly plan"`}},
	{Group: "document", Operation: "open", ShortDesc: "Open a document by number or id", Syntax: "open <n|id>", Examples: []string{"open 2"}},
	{Group: "document", Operation: "rename", ShortDesc: "Rename the open document", Syntax: "rename <title>"},
	{Group: "document", Operation: "close", ShortDesc: "Save and close the open document", Syntax: "close"},
	{Group: "document", Operation: "export", ShortDesc: "Write the visual root's children to a file", Syntax: "export <file> [json|txt]",
		Arguments: []string{"format: defaults to txt for .txt files, json otherwise"}},
	{Group: "document", Operation: "import", ShortDesc: "Append subtrees read from a file", Syntax: "import <file> [json|txt]"},

	{Group: "sync", Operation: "sync", ShortDesc: "Connect the open document to the relay", Syntax: "sync"},
	{Group: "sync", Operation: "unsync", ShortDesc: "Disconnect from the relay", Syntax: "unsync"},
	{Group: "sync", Operation: "status", ShortDesc: "Show user, document and connection state", Syntax: "status"},
	{Group: "sync", Operation: "who", ShortDesc: "List collaborators present on the document", Syntax: "who"},

	{Group: "outline", Operation: "show", ShortDesc: "Print the visible outline", Syntax: "show [--id]"},
	{Group: "outline", Operation: "hoist", ShortDesc: "Zoom into a node, or back out without a row", Syntax: "hoist [row]"},
	{Group: "outline", Operation: "focus", ShortDesc: "Move the cursor", Syntax: "focus <row> [cursor]"},
	{Group: "outline", Operation: "collapse", ShortDesc: "Toggle whether a node's children are shown", Syntax: "collapse <row>"},

	{Group: "editing", Operation: "add", ShortDesc: "Add a node after a row, or at the end", Syntax: "add [row] [content] [--child]",
		Arguments: []string{"--child: insert as the row's first child"}, Examples: []string{"add 0 Groceries", "add 1 --child milk"}},
	{Group: "editing", Operation: "before", ShortDesc: "Add a node before a row", Syntax: "before <row> [content]"},
	{Group: "editing", Operation: "edit", ShortDesc: "Replace a node's content", Syntax: "edit <row> <content>"},
	{Group: "editing", Operation: "del", ShortDesc: "Delete nodes and their subtrees", Syntax: "del <row>..."},
	{Group: "editing", Operation: "indent", ShortDesc: "Make nodes children of their previous sibling", Syntax: "indent <row>..."},
	{Group: "editing", Operation: "outdent", ShortDesc: "Move nodes up one level", Syntax: "outdent <row>..."},
	{Group: "editing", Operation: "up", ShortDesc: "Move a node up", Syntax: "up <row>"},
	{Group: "editing", Operation: "down", ShortDesc: "Move a node down", Syntax: "down <row>"},
	{Group: "editing", Operation: "split", ShortDesc: "Split a node at a cursor position", Syntax: "split <row> <cursor>"},
	{Group: "editing", Operation: "merge", ShortDesc: "Merge a node into its previous sibling", Syntax: "merge <row>"},
	{Group: "editing", Operation: "done", ShortDesc: "Toggle completion", Syntax: "done <row>"},
	{Group: "editing", Operation: "type", ShortDesc: "Set a node's type and metadata", Syntax: "type <row> <text|h1|h2|h3|todo|code|quote|link> [key:value]...",
		Examples: []string{"type 3 link url:https://example.com", "type 4 code language:go"}},
	{Group: "editing", Operation: "paste", ShortDesc: `Paste indented text; \n separates lines`, Syntax: "paste [row] <text>",
		Examples: []string{`paste 2 "- [ ] milk\n- [ ] eggs"`}},
	{Group: "editing", Operation: "behavior", ShortDesc: "Change split or outdent behavior", Syntax: "behavior <split|outdent> <value>",
		Arguments: []string{"split: auto, sibling or child", "outdent: logical or direct"}},

	{Group: "system", Operation: "help", ShortDesc: "Show help", Syntax: "help [command|group]"},
	{Group: "system", Operation: "quit", ShortDesc: "Save and exit", Syntax: "quit"},
}
