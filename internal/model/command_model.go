package model

// Command represents one parsed REPL line: the operation and its arguments.
type Command struct {
	Operation string
	Args      []string
	Flags     map[string]bool
}
