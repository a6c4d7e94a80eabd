// Package extensions provides cross-cutting hooks into a Runtime's
// transaction lifecycle — logging, graph visualisation, and anything
// else a caller wants to observe without the core engine depending on
// it. Hooks attach to transaction enter/leave/panic rather than to
// any particular node's resolution.
package extensions

import "log/slog"

// Extension observes a Runtime's transaction lifecycle.
type Extension interface {
	// Name returns the extension's name.
	Name() string

	// Init is called once when the extension is installed on a runtime.
	Init(logger *slog.Logger)

	// OnTransactionStart fires when the outermost transaction begins.
	OnTransactionStart()

	// OnTransactionEnd fires after propagation and the pre-post and post
	// hooks for the outermost transaction complete, before cycle
	// collection runs.
	OnTransactionEnd()

	// OnPanic fires when a panic unwinds out of propagation, before it
	// continues unwinding past the extension.
	OnPanic(recovered any)

	// Dispose is called when the runtime is torn down.
	Dispose()
}

// BaseExtension provides no-op defaults so concrete extensions only
// implement the hooks they care about.
type BaseExtension struct {
	name   string
	logger *slog.Logger
}

// NewBaseExtension creates a base extension with the given name.
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (b *BaseExtension) Name() string { return b.name }

func (b *BaseExtension) Init(logger *slog.Logger) { b.logger = logger }

func (b *BaseExtension) OnTransactionStart() {}

func (b *BaseExtension) OnTransactionEnd() {}

func (b *BaseExtension) OnPanic(recovered any) {}

func (b *BaseExtension) Dispose() {}

func (b *BaseExtension) Logger() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}
