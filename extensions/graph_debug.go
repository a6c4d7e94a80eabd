package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/m1gwings/treedrawer/tree"
)

// GraphNode is a diagnostic snapshot of one Node: its rank and the
// names of its live dependents. Defined here, not in the root package,
// so extensions never imports the root package (which imports
// extensions) — the root Runtime builds the snapshot and hands it to
// any installed GraphAware extension.
type GraphNode struct {
	ID         string
	Name       string
	Rank       uint64
	Dependents []string
}

// GraphSnapshot is the whole live node graph at the moment it was taken.
type GraphSnapshot []GraphNode

// GraphAware is implemented by extensions that want the live node graph
// handed to them before OnPanic fires.
type GraphAware interface {
	RecordGraph(snapshot GraphSnapshot)
}

// GraphDebugExtension renders the node rank graph as an ASCII tree with
// treedrawer when a transaction panics, so a panicking propagation can
// be inspected after the fact instead of just unwinding silently.
type GraphDebugExtension struct {
	BaseExtension
	logger   *slog.Logger
	snapshot GraphSnapshot
}

// NewGraphDebugExtension creates a graph-debug extension. logHandler
// controls where/how output lands (use NewHumanHandler for formatted
// console output, NewSilentHandler to discard everything in tests).
func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: NewBaseExtension("graph-debug"),
		logger:        slog.New(logHandler),
	}
}

func (e *GraphDebugExtension) RecordGraph(snapshot GraphSnapshot) {
	e.snapshot = snapshot
}

func (e *GraphDebugExtension) OnPanic(recovered any) {
	e.logger.Error("Transaction Panic",
		"panic", fmt.Sprintf("%v", recovered),
		"graph", e.formatGraph(),
	)
}

func (e *GraphDebugExtension) formatGraph() string {
	if len(e.snapshot) == 0 {
		return "\n(empty - no nodes tracked)"
	}

	byName := make(map[string]GraphNode, len(e.snapshot))
	hasParent := make(map[string]bool, len(e.snapshot))
	for _, n := range e.snapshot {
		byName[n.Name] = n
		for _, d := range n.Dependents {
			hasParent[d] = true
		}
	}

	var roots []string
	for _, n := range e.snapshot {
		if !hasParent[n.Name] {
			roots = append(roots, n.Name)
		}
	}
	sort.Strings(roots)

	var sb strings.Builder
	if len(roots) > 0 {
		var root *tree.Tree
		if len(roots) == 1 {
			root = e.buildTree(roots[0], byName, make(map[string]bool))
		} else {
			root = tree.NewTree(tree.NodeString("nodes"))
			for _, r := range roots {
				if child := e.buildTree(r, byName, make(map[string]bool)); child != nil {
					e.addTreeAsChild(root, child)
				}
			}
		}
		if root != nil {
			sb.WriteString("\n")
			sb.WriteString(root.String())
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nDetailed View:\n")
	names := make([]string, 0, len(e.snapshot))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n := byName[name]
		if len(n.Dependents) == 0 {
			sb.WriteString(fmt.Sprintf("  %s (rank %d, no dependents)\n", name, n.Rank))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s (rank %d)\n", name, n.Rank))
		deps := append([]string(nil), n.Dependents...)
		sort.Strings(deps)
		for i, d := range deps {
			if i == len(deps)-1 {
				sb.WriteString(fmt.Sprintf("    └─> %s\n", d))
			} else {
				sb.WriteString(fmt.Sprintf("    ├─> %s\n", d))
			}
		}
	}
	return sb.String()
}

func (e *GraphDebugExtension) buildTree(name string, byName map[string]GraphNode, visited map[string]bool) *tree.Tree {
	if visited[name] {
		return nil
	}
	visited[name] = true

	n, ok := byName[name]
	label := name
	if !ok {
		label += " (gone)"
	}
	node := tree.NewTree(tree.NodeString(label))

	children := append([]string(nil), n.Dependents...)
	sort.Strings(children)
	for _, c := range children {
		if child := e.buildTree(c, byName, visited); child != nil {
			e.addTreeAsChild(node, child)
		}
	}
	return node
}

func (e *GraphDebugExtension) addTreeAsChild(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		e.addTreeAsChild(newChild, grandchild)
	}
}

// SilentHandler discards all log output — useful for tests.
type SilentHandler struct{}

func NewSilentHandler() *SilentHandler { return &SilentHandler{} }

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool { return false }
func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error { return nil }
func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler             { return h }
func (h *SilentHandler) WithGroup(name string) slog.Handler                  { return h }

// HumanHandler formats records for readable console output, with
// special-cased rendering for the graph-debug panic record.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{writer: writer, level: level}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Message == "Transaction Panic" {
		return h.handleTransactionPanic(record)
	}
	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) handleTransactionPanic(record slog.Record) error {
	var panicMsg, graph string
	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "panic":
			panicMsg = a.Value.String()
		case "graph":
			graph = a.Value.String()
		}
		return true
	})

	writes := []func() error{
		func() error { _, err := fmt.Fprintln(h.writer); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer, "[GraphDebug] Transaction Panic"); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nPanic: %s\n", panicMsg); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nNode Graph:%s", graph); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer); return err },
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}
	return nil
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *HumanHandler) WithGroup(name string) slog.Handler       { return h }
