package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"nestnote/local-app/internal/awareness"
	"nestnote/local-app/internal/config"
	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/storage"
	"nestnote/local-app/internal/tree"
	"nestnote/local-app/internal/view"
)

// Reply is what a command hands back to the interface layer.
type Reply struct {
	Message   string
	Snapshot  *view.Snapshot
	Documents []*model.Document
	Peers     []Peer
	Focus     model.Focus
}

// Peer is one entry of the presence table.
type Peer struct {
	ClientID uint64
	User     string
	Cursor   string
	Local    bool
}

type commandSpec struct {
	minArgs  int
	document bool
	run      func(s *Session, cmd model.Command) (*Reply, error)
}

var commands map[string]commandSpec

func init() {
	commands = map[string]commandSpec{
		"register": {minArgs: 2, run: (*Session).cmdRegister},
		"login":    {minArgs: 2, run: (*Session).cmdLogin},
		"logout":   {run: (*Session).cmdLogout},

		"docs":   {run: (*Session).cmdDocs},
		"new":    {minArgs: 1, run: (*Session).cmdNew},
		"open":   {minArgs: 1, run: (*Session).cmdOpen},
		"rename": {minArgs: 1, document: true, run: (*Session).cmdRename},
		"close":  {document: true, run: (*Session).cmdClose},
		"export": {minArgs: 1, document: true, run: (*Session).cmdExport},
		"import": {minArgs: 1, document: true, run: (*Session).cmdImport},

		"sync":   {document: true, run: (*Session).cmdSync},
		"unsync": {document: true, run: (*Session).cmdUnsync},
		"status": {run: (*Session).cmdStatus},
		"who":    {document: true, run: (*Session).cmdWho},

		"show":     {document: true, run: (*Session).cmdShow},
		"add":      {document: true, run: (*Session).cmdAdd},
		"before":   {minArgs: 1, document: true, run: (*Session).cmdBefore},
		"del":      {minArgs: 1, document: true, run: (*Session).cmdDelete},
		"edit":     {minArgs: 2, document: true, run: (*Session).cmdEdit},
		"indent":   {minArgs: 1, document: true, run: (*Session).cmdIndent},
		"outdent":  {minArgs: 1, document: true, run: (*Session).cmdOutdent},
		"up":       {minArgs: 1, document: true, run: (*Session).cmdUp},
		"down":     {minArgs: 1, document: true, run: (*Session).cmdDown},
		"split":    {minArgs: 2, document: true, run: (*Session).cmdSplit},
		"merge":    {minArgs: 1, document: true, run: (*Session).cmdMerge},
		"collapse": {minArgs: 1, document: true, run: (*Session).cmdCollapse},
		"done":     {minArgs: 1, document: true, run: (*Session).cmdDone},
		"type":     {minArgs: 2, document: true, run: (*Session).cmdType},
		"paste":    {minArgs: 1, document: true, run: (*Session).cmdPaste},
		"hoist":    {document: true, run: (*Session).cmdHoist},
		"focus":    {minArgs: 1, document: true, run: (*Session).cmdFocus},
		"behavior": {minArgs: 2, run: (*Session).cmdBehavior},
	}
}

// Commands lists the operations CommandRun accepts.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks an operation exists and has enough arguments.
func Validate(cmd model.Command) error {
	spec, ok := commands[cmd.Operation]
	if !ok {
		return errors.Errorf("unknown command: %s", cmd.Operation)
	}
	if len(cmd.Args) < spec.minArgs {
		return errors.Errorf("%s requires at least %d argument(s)", cmd.Operation, spec.minArgs)
	}
	return nil
}

// CommandRun executes one parsed command against the session.
func (s *Session) CommandRun(cmd model.Command) (*Reply, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	s.touch()
	spec := commands[cmd.Operation]
	if spec.document && s.Document() == nil {
		return nil, ErrNoDocument
	}
	return spec.run(s, cmd)
}

// resolve maps a row reference to a node id. Rows are numbered from 1 in
// the current view; with --id the argument is taken as a node id.
func (s *Session) resolve(cmd model.Command, arg string) (string, error) {
	engine, err := s.Engine()
	if err != nil {
		return "", err
	}
	if cmd.Flags["id"] {
		if _, ok := engine.Node(arg); !ok {
			return "", errors.Wrapf(storage.ErrNotFound, "node %q", arg)
		}
		return arg, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", errors.Errorf("invalid row: %s", arg)
	}
	if n == 0 {
		return engine.ActiveRoot(), nil
	}
	rows := engine.Rows()
	if n < 1 || n > len(rows) {
		return "", errors.Errorf("row %d out of range (1-%d)", n, len(rows))
	}
	return rows[n-1].ID, nil
}

func (s *Session) resolveAll(cmd model.Command, args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		id, err := s.resolve(cmd, arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// apply records focus from an engine result and returns the refreshed view.
func (s *Session) apply(op string, res tree.Result) (*Reply, error) {
	if res.Focus.ID != "" {
		s.SetFocus(res.Focus)
	}
	reply, err := s.cmdShow(model.Command{})
	if err != nil {
		return nil, err
	}
	if !res.Changed {
		reply.Message = fmt.Sprintf("%s: nothing changed", op)
	}
	return reply, nil
}

func (s *Session) cmdRegister(cmd model.Command) (*Reply, error) {
	if err := s.store.UserAdd(cmd.Args[0], cmd.Args[1]); err != nil {
		return nil, err
	}
	return &Reply{Message: fmt.Sprintf("user %s registered", cmd.Args[0])}, nil
}

func (s *Session) cmdLogin(cmd model.Command) (*Reply, error) {
	if err := s.SignIn(cmd.Args[0], cmd.Args[1]); err != nil {
		return nil, err
	}
	return &Reply{Message: fmt.Sprintf("signed in as %s", cmd.Args[0])}, nil
}

func (s *Session) cmdLogout(model.Command) (*Reply, error) {
	s.SignOut()
	return &Reply{Message: "signed out"}, nil
}

func (s *Session) cmdDocs(model.Command) (*Reply, error) {
	docs, err := s.DocumentList()
	if err != nil {
		return nil, err
	}
	return &Reply{Documents: docs}, nil
}

func (s *Session) cmdNew(cmd model.Command) (*Reply, error) {
	doc, err := s.DocumentCreate(strings.Join(cmd.Args, " "))
	if err != nil {
		return nil, err
	}
	if err := s.OpenDocument(doc.ID); err != nil {
		return nil, err
	}
	return &Reply{Message: fmt.Sprintf("created %s (%s)", doc.Title, doc.ID)}, nil
}

// cmdOpen accepts a document id, or a 1-based index into the docs listing.
func (s *Session) cmdOpen(cmd model.Command) (*Reply, error) {
	id := cmd.Args[0]
	if n, err := strconv.Atoi(id); err == nil {
		docs, err := s.DocumentList()
		if err != nil {
			return nil, err
		}
		if n < 1 || n > len(docs) {
			return nil, errors.Errorf("document %d out of range (1-%d)", n, len(docs))
		}
		id = docs[n-1].ID
	}
	if err := s.OpenDocument(id); err != nil {
		return nil, err
	}
	reply, err := s.cmdShow(cmd)
	if err != nil {
		return nil, err
	}
	reply.Message = fmt.Sprintf("opened %s", s.Document().Title)
	return reply, nil
}

func (s *Session) cmdRename(cmd model.Command) (*Reply, error) {
	doc := s.Document()
	title := strings.Join(cmd.Args, " ")
	if err := s.store.DocumentRename(doc.ID, title); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.document != nil {
		s.document.Title = title
	}
	s.mu.Unlock()
	return &Reply{Message: fmt.Sprintf("renamed to %s", title)}, nil
}

func (s *Session) cmdClose(model.Command) (*Reply, error) {
	s.CloseDocument()
	return &Reply{Message: "document closed"}, nil
}

func format(cmd model.Command) string {
	if len(cmd.Args) > 1 {
		return cmd.Args[1]
	}
	if strings.HasSuffix(cmd.Args[0], ".txt") {
		return "txt"
	}
	return "json"
}

func (s *Session) cmdExport(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	if err := storage.FileExport(engine.Outline(), engine.ActiveRoot(), cmd.Args[0], format(cmd)); err != nil {
		return nil, err
	}
	return &Reply{Message: fmt.Sprintf("exported to %s", cmd.Args[0])}, nil
}

// cmdImport pastes the file's subtrees at the end of the visual root.
func (s *Session) cmdImport(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	trees, err := storage.FileImport(cmd.Args[0], format(cmd))
	if err != nil {
		return nil, err
	}
	return s.apply("import", engine.PasteNodes(engine.ActiveRoot(), -1, trees))
}

func (s *Session) cmdSync(model.Command) (*Reply, error) {
	if err := s.StartSync(); err != nil {
		return nil, err
	}
	return &Reply{Message: "sync started"}, nil
}

func (s *Session) cmdUnsync(model.Command) (*Reply, error) {
	s.StopSync()
	return &Reply{Message: "sync stopped"}, nil
}

func (s *Session) cmdStatus(model.Command) (*Reply, error) {
	var parts []string
	if user := s.User(); user != nil {
		parts = append(parts, "user "+user.Username)
	} else {
		parts = append(parts, "not signed in")
	}
	if doc := s.Document(); doc != nil {
		parts = append(parts, "document "+doc.Title)
	}
	if p := s.Provider(); p != nil {
		parts = append(parts, "sync "+p.Status().String())
	} else {
		parts = append(parts, "offline")
	}
	return &Reply{Message: strings.Join(parts, ", ")}, nil
}

func (s *Session) cmdWho(model.Command) (*Reply, error) {
	presence, err := s.Presence()
	if err != nil {
		return nil, err
	}
	return &Reply{Peers: peers(presence)}, nil
}

func peers(presence *awareness.Awareness) []Peer {
	var out []Peer
	for client, state := range presence.States() {
		p := Peer{ClientID: uint64(client), Local: client == presence.ClientID()}
		p.User, _ = state["user"].(string)
		p.Cursor, _ = state["cursor"].(string)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (s *Session) cmdShow(model.Command) (*Reply, error) {
	projector, err := s.Projector()
	if err != nil {
		return nil, err
	}
	snapshot := projector.Snapshot()
	return &Reply{Snapshot: &snapshot, Focus: s.Focus()}, nil
}

// cmdAdd appends a node after the given row, or at the end of the visual
// root. --child makes it the first child of the row instead.
func (s *Session) cmdAdd(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	parentID, index := engine.ActiveRoot(), -1
	var content []string
	if len(cmd.Args) > 0 {
		id, err := s.resolve(cmd, cmd.Args[0])
		if err != nil {
			return nil, err
		}
		content = cmd.Args[1:]
		switch {
		case cmd.Flags["child"]:
			parentID, index = id, 0
		case id != parentID:
			o := engine.Outline()
			parentID, index = o.Nodes[id].ParentID, o.IndexOf(id)+1
		}
	}

	res := engine.Add(parentID, index)
	if res.Created != "" && len(content) > 0 {
		text := strings.Join(content, " ")
		engine.UpdateContent(res.Created, text)
		res.Focus.Cursor = len([]rune(text))
	}
	return s.apply("add", res)
}

func (s *Session) cmdBefore(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	res := engine.AddBefore(id)
	if res.Created != "" && len(cmd.Args) > 1 {
		engine.UpdateContent(res.Created, strings.Join(cmd.Args[1:], " "))
	}
	return s.apply("before", res)
}

func (s *Session) cmdDelete(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	ids, err := s.resolveAll(cmd, cmd.Args)
	if err != nil {
		return nil, err
	}
	if len(ids) == 1 {
		return s.apply("del", engine.Delete(ids[0]))
	}
	return s.apply("del", engine.DeleteMany(ids))
}

func (s *Session) cmdEdit(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	text := strings.Join(cmd.Args[1:], " ")
	res := engine.UpdateContent(id, text)
	res.Focus = model.Focus{ID: id, Cursor: len([]rune(text))}
	return s.apply("edit", res)
}

func (s *Session) cmdIndent(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	ids, err := s.resolveAll(cmd, cmd.Args)
	if err != nil {
		return nil, err
	}
	if len(ids) == 1 {
		return s.apply("indent", engine.IndentNode(ids[0]))
	}
	return s.apply("indent", engine.IndentNodes(ids))
}

func (s *Session) cmdOutdent(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	ids, err := s.resolveAll(cmd, cmd.Args)
	if err != nil {
		return nil, err
	}
	if len(ids) == 1 {
		return s.apply("outdent", engine.OutdentNode(ids[0]))
	}
	return s.apply("outdent", engine.OutdentNodes(ids))
}

func (s *Session) move(cmd model.Command, dir tree.Direction) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	return s.apply(cmd.Operation, engine.MoveNode(id, dir))
}

func (s *Session) cmdUp(cmd model.Command) (*Reply, error)   { return s.move(cmd, tree.Up) }
func (s *Session) cmdDown(cmd model.Command) (*Reply, error) { return s.move(cmd, tree.Down) }

func (s *Session) cmdSplit(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	cursor, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return nil, errors.Errorf("invalid cursor: %s", cmd.Args[1])
	}
	return s.apply("split", engine.SplitNode(id, cursor))
}

func (s *Session) cmdMerge(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	return s.apply("merge", engine.MergeNode(id))
}

func (s *Session) cmdCollapse(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	return s.apply("collapse", engine.ToggleCollapse(id))
}

func (s *Session) cmdDone(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	return s.apply("done", engine.ToggleComplete(id))
}

// cmdType sets a node's type; trailing key:value arguments become metadata.
func (s *Session) cmdType(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	var meta map[string]string
	for _, arg := range cmd.Args[2:] {
		parts := strings.SplitN(arg, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[parts[0]] = parts[1]
	}
	return s.apply("type", engine.UpdateType(id, model.NodeType(cmd.Args[1]), meta))
}

// cmdPaste parses indented text, with \n standing for a line break, and
// inserts it after the given row or at the end of the visual root.
func (s *Session) cmdPaste(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	parentID, index := engine.ActiveRoot(), -1
	text := cmd.Args
	if len(cmd.Args) > 1 {
		id, err := s.resolve(cmd, cmd.Args[0])
		if err != nil {
			return nil, err
		}
		if id != parentID {
			o := engine.Outline()
			parentID, index = o.Nodes[id].ParentID, o.IndexOf(id)+1
		}
		text = cmd.Args[1:]
	}
	nodes := model.ParseIndented(strings.ReplaceAll(strings.Join(text, " "), `\n`, "\n"))
	if len(nodes) == 0 {
		return nil, errors.New("nothing to paste")
	}
	return s.apply("paste", engine.PasteNodes(parentID, index, nodes))
}

func (s *Session) cmdHoist(cmd model.Command) (*Reply, error) {
	engine, err := s.Engine()
	if err != nil {
		return nil, err
	}
	id := ""
	if len(cmd.Args) > 0 {
		if id, err = s.resolve(cmd, cmd.Args[0]); err != nil {
			return nil, err
		}
	}
	if !engine.SetHoist(id) {
		return nil, errors.Errorf("cannot hoist %s", id)
	}
	projector, err := s.Projector()
	if err != nil {
		return nil, err
	}
	projector.Refresh()
	return s.cmdShow(cmd)
}

func (s *Session) cmdFocus(cmd model.Command) (*Reply, error) {
	id, err := s.resolve(cmd, cmd.Args[0])
	if err != nil {
		return nil, err
	}
	f := model.Focus{ID: id}
	if len(cmd.Args) > 1 {
		if f.Cursor, err = strconv.Atoi(cmd.Args[1]); err != nil {
			return nil, errors.Errorf("invalid cursor: %s", cmd.Args[1])
		}
	}
	s.SetFocus(f)
	return &Reply{Focus: f}, nil
}

// cmdBehavior changes an editing toggle for this session:
// "behavior split auto|sibling|child" or "behavior outdent logical|direct".
func (s *Session) cmdBehavior(cmd model.Command) (*Reply, error) {
	b := s.cfg.Behavior.Normalize()
	switch cmd.Args[0] {
	case "split":
		b.SplitBehavior = config.SplitBehavior(cmd.Args[1])
		switch b.SplitBehavior {
		case config.SplitAuto, config.SplitSibling, config.SplitChild:
		default:
			return nil, errors.Errorf("unknown split behavior: %s", cmd.Args[1])
		}
	case "outdent":
		logical := cmd.Args[1] == "logical"
		if !logical && cmd.Args[1] != "direct" {
			return nil, errors.Errorf("unknown outdent behavior: %s", cmd.Args[1])
		}
		b.LogicalOutdent = &logical
	default:
		return nil, errors.Errorf("unknown behavior: %s", cmd.Args[0])
	}
	s.cfg.Behavior = b
	if engine, err := s.Engine(); err == nil {
		engine.SetBehavior(b)
	}
	return &Reply{Message: fmt.Sprintf("%s behavior set to %s", cmd.Args[0], cmd.Args[1])}, nil
}
