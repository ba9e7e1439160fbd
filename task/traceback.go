package task

import (
	"fmt"
	"strings"

	"loom/value"
)

// Frame is one activation's worth of backtrace information (spec §7
// "the scheduler records a backtrace (one entry per activation, including
// verb name, line number, and this)"). vm.Activation doesn't carry this
// after it's popped, so callers snapshot one per CallVerb/CallLambda level
// as they unwind; kept as a plain value type here, decoupled from vm, so
// vm never needs to import task.
type Frame struct {
	This     value.ObjID
	VerbName string
	Line     int
}

// FormatTraceback renders stack (outermost call first) and the error that
// ended the task into a human-readable traceback, adapted from the
// teacher's Toast-style format in task/traceback.go.
func FormatTraceback(stack []Frame, err *value.Error, player value.ObjID) []string {
	if err == nil {
		return nil
	}
	if len(stack) == 0 {
		return []string{
			fmt.Sprintf("%s <- (no stack):  %s", player.String(), err.DefaultMessage()),
			fmt.Sprintf("%s <- (End of traceback)", player.String()),
		}
	}

	var lines []string
	for i := len(stack) - 1; i >= 0; i-- {
		f := stack[i]
		var line string
		if i == len(stack)-1 {
			line = fmt.Sprintf("%s <- %s:%s (this == %s), line %d:  %s",
				player.String(), f.This.String(), f.VerbName, f.This.String(), f.Line, err.DefaultMessage())
		} else {
			line = fmt.Sprintf("%s <- called from %s:%s (this == %s), line %d",
				player.String(), f.This.String(), f.VerbName, f.This.String(), f.Line)
		}
		lines = append(lines, line)
	}
	lines = append(lines, fmt.Sprintf("%s <- (End of traceback)", player.String()))
	return lines
}

// Join is a small convenience over strings.Join for Session implementations
// that want to notify a player with the whole traceback in one message.
func Join(lines []string) string {
	return strings.Join(lines, "\n")
}
