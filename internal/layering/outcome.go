package layering

import (
	"context"
	"log/slog"

	"github.com/nvandessel/simwrap/internal/logging"
)

// Status is the soft result of applying one option.
type Status int

const (
	// Applied means the user's value was written.
	Applied Status = iota
	// Defaulted means the key was absent and the documented default (or the
	// template's own value) was kept.
	Defaulted
	// Derived means a dependent setting was computed because the template
	// left it unset. Always logged as a warning.
	Derived
	// Ignored means the supplied value was rejected and the default kept.
	Ignored
	// Skipped means an optional step could not run, such as a missing
	// overlay file.
	Skipped
	// Inactive means a conditional module was not requested.
	Inactive
)

// String returns the lower-case status name used in logs.
func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Defaulted:
		return "defaulted"
	case Derived:
		return "derived"
	case Ignored:
		return "ignored"
	case Skipped:
		return "skipped"
	case Inactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Level returns the log level an outcome with status s is reported at.
func (s Status) Level() slog.Level {
	switch s {
	case Derived, Ignored, Skipped:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Outcome records what one setter did. Outcomes are logged and returned for
// inspection; they never become errors.
type Outcome struct {
	// Key is the option key the setter consumed.
	Key string
	// Setting is the configuration parameter written, as module.param.
	Setting string
	// Value is the value in effect after the setter ran.
	Value  string
	Status Status
	Reason string
}

func (e *Engine) record(o Outcome) Outcome {
	logger := logging.OrDiscard(e.Logger)
	attrs := []any{"key", o.Key, "status", o.Status.String()}
	if o.Setting != "" {
		attrs = append(attrs, "setting", o.Setting)
	}
	if o.Value != "" {
		attrs = append(attrs, "value", o.Value)
	}
	msg := "setting " + o.Status.String()
	if o.Reason != "" {
		msg = o.Reason
	}
	logger.Log(context.Background(), o.Status.Level(), msg, attrs...)

	e.Decisions.Log(map[string]any{
		"event":   "setting",
		"key":     o.Key,
		"setting": o.Setting,
		"value":   o.Value,
		"status":  o.Status.String(),
		"reason":  o.Reason,
	})
	return o
}
