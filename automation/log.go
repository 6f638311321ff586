package automation

import "fmt"

// WarnPrefix marks log lines the UI should highlight. The trace carries no
// structured severity field; the prefix is the contract.
const WarnPrefix = "[WARN] "

// RunLog is the append-only, ordered trace of one automation run. Lines are
// never reordered or rewritten. A single run goroutine is the only writer.
type RunLog struct {
	lines []string
	debug bool
}

func NewRunLog(debug bool) *RunLog {
	return &RunLog{debug: debug}
}

// Info appends a high-signal line.
func (l *RunLog) Info(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

// Warn appends a line with the warning marker.
func (l *RunLog) Warn(format string, args ...interface{}) {
	l.lines = append(l.lines, WarnPrefix+fmt.Sprintf(format, args...))
}

// Debug appends a line only when the run has verbose tracing enabled.
func (l *RunLog) Debug(format string, args ...interface{}) {
	if l.debug {
		l.lines = append(l.lines, fmt.Sprintf(format, args...))
	}
}

// Lines returns the trace in append order.
func (l *RunLog) Lines() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
