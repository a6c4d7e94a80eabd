package extensions

import (
	"log/slog"
	"time"
)

// LoggingExtension logs transaction boundaries and panics with
// structured slog records rather than bare fmt.Printf, consistent with
// the slog.Logger already used by GraphDebugExtension.
type LoggingExtension struct {
	BaseExtension
	start time.Time
}

// NewLoggingExtension creates a logging extension.
func NewLoggingExtension() *LoggingExtension {
	return &LoggingExtension{BaseExtension: NewBaseExtension("logging")}
}

func (e *LoggingExtension) OnTransactionStart() {
	e.start = time.Now()
	e.Logger().Debug("transaction starting", "extension", e.Name())
}

func (e *LoggingExtension) OnTransactionEnd() {
	e.Logger().Debug("transaction completed", "extension", e.Name(), "duration", time.Since(e.start))
}

func (e *LoggingExtension) OnPanic(recovered any) {
	e.Logger().Error("transaction panicked", "extension", e.Name(), "duration", time.Since(e.start), "cause", recovered)
}
