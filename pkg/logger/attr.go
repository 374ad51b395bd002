package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Machine records the machine name under the key "machine".
func Machine(name string) slog.Attr {
	return slog.String("machine", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// State records a state identity under the key "state".
// If state is nil, it returns an empty Attr.
func State(state any) slog.Attr {
	if state == nil {
		return slog.Attr{}
	}
	return slog.Any("state", state)
}

// Caller records the caller identifier under the key "caller_id".
// If id is nil, it returns an empty Attr.
func Caller(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("caller_id", id)
}

// DispatchID records the dispatch identifier under the key "dispatch_id".
// If id is nil, it returns an empty Attr.
func DispatchID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("dispatch_id", id)
}

// Mode records the submission mode (sync, async, deferred) under the key "mode".
func Mode(mode string) slog.Attr {
	return slog.String("mode", mode)
}

// QueueLen records a queue length under the key "queue_len".
func QueueLen(n int) slog.Attr {
	return slog.Int("queue_len", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
