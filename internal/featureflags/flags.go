package featureflags

import (
	"os"
	"strings"
)

// Enabled reports whether the feature flag is switched on via the
// environment. A flag named "roster_expiry_sweep" is read from
// FLAG_ROSTER_EXPIRY_SWEEP.
func Enabled(name string) bool {
	val := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
