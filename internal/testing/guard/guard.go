// Package guard flags the process as running under test so bootstrap code
// skips loading .env files. Import it for side effects from test packages.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("HERMES_TEST_MODE") == "" {
			_ = os.Setenv("HERMES_TEST_MODE", "1")
		}
	})
}
