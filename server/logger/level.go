package logger

import "fmt"

// Level defines the logging level. Higher levels are more verbose.
type Level int

const (
	LevelUnknown Level = iota - 1
	LevelDisabled
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[Level]string{
	LevelDisabled: "disabled",
	LevelError:    "error",
	LevelWarn:     "warn",
	LevelInfo:     "info",
	LevelDebug:    "debug",
	LevelTrace:    "trace",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}

	return fmt.Sprintf("Unknown(%d)", l)
}

// LevelFromString parses the level name returned by Level.String.
func LevelFromString(str string) (Level, bool) {
	for level, name := range levelNames {
		if name == str {
			return level, true
		}
	}

	return LevelUnknown, false
}

// LevelForNamespace makes a single Level usable as Config for every
// namespace.
func (l Level) LevelForNamespace(_ string) Level {
	return l
}
