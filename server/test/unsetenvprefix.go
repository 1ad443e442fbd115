package test

import (
	"os"
	"strings"
)

// UnsetEnvPrefix removes all environment variables starting with prefix so
// that configuration tests are not affected by the developer's shell.
func UnsetEnvPrefix(prefix string) {
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}

		key, _, _ := strings.Cut(kv, "=")
		os.Unsetenv(key)
	}
}
