package logger

import (
	"strings"
)

// Config resolves the logging level of a namespace.
type Config interface {
	LevelForNamespace(namespace string) Level
}

// ConfigMap maps namespace patterns to levels. Pattern sections can be "*",
// matching exactly one section, or "**", matching any number of sections.
// The empty pattern configures the root logger.
type ConfigMap map[string]Level

// NewConfig builds a wildcard matching Config from the map. It returns nil
// for a nil map.
func NewConfig(configMap ConfigMap) Config {
	return newWildcardNode(configMap)
}

// NewConfigFromString parses a comma separated list of patterns, each
// optionally followed by ":<level>", for example "**:pion:**:warn,:info".
// Patterns without an explicit level get LevelInfo. Returns nil for an empty
// string.
func NewConfigFromString(str string) Config {
	if str == "" {
		return nil
	}

	configMap := ConfigMap{}

	for _, pattern := range strings.Split(str, ",") {
		level := LevelInfo

		if i := strings.LastIndex(pattern, ":"); i > -1 {
			if l, ok := LevelFromString(pattern[i+1:]); ok {
				level = l
				pattern = pattern[:i]
			}
		}

		configMap[pattern] = level
	}

	return NewConfig(configMap)
}
