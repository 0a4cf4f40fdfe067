package safe

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
)

// Run executes fn in the caller goroutine and swallows a panic after logging it.
func Run(fn func()) {
	RunWithLog(fn, "safe.Run")
}

func RunWithLog(fn func(), component string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", stackTrace(3)),
			)
		}
	}()

	fn()
}

// Call runs fn and turns a panic into an error, so one misbehaving step
// cannot abort the loop that drives it.
func Call(component string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", stackTrace(3)),
			)
			err = fmt.Errorf("%s panicked: %v", component, r)
		}
	}()

	return fn()
}

// stackTrace skips the first frames (debug.Stack, defer, Run) and keeps at most 20 lines.
func stackTrace(skipFrames int) string {
	lines := strings.Split(string(debug.Stack()), "\n")

	formatted := []string{"Stack trace:"}
	if skipFrames >= len(lines) {
		return formatted[0]
	}

	end := skipFrames + 20
	for i := skipFrames; i < len(lines) && i < end; i++ {
		if line := strings.TrimSpace(lines[i]); line != "" {
			formatted = append(formatted, "  "+line)
		}
	}
	if len(lines) > end {
		formatted = append(formatted, "  ... (truncated)")
	}
	return strings.Join(formatted, "\n")
}
