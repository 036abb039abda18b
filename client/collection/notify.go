package collection

import (
	"fmt"
	"io"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "info"
}

// Notice is a transient message for the operator.
type Notice struct {
	Level   Level
	Message string
	Err     error
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Notice) {})

// WriterNotifier prints notices, one per line.
func WriterNotifier(w io.Writer) Notifier {
	return NotifierFunc(func(n Notice) {
		_, _ = fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	})
}
