package recovery

import (
	"log"
	"os"
)

var debugEnabled = os.Getenv("COHORT_DEBUG") != ""

// debugLogf writes recovery diagnostics when COHORT_DEBUG is set.
func debugLogf(format string, args ...any) {
	if debugEnabled {
		log.Printf(format, args...)
	}
}
