// Package guard switches the process into test mode when imported, so
// binaries under test skip starting servers and workers.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FYNITY_TEST_MODE") == "" {
			_ = os.Setenv("FYNITY_TEST_MODE", "1")
		}
	})
}
