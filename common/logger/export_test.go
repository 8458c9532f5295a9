package logger

import "sync"

// ResetSetupLogOnceForTests rearms the setupLogOnce guard so tests can run
// SetupLogger more than once. Test-only.
func ResetSetupLogOnceForTests() {
	setupLogOnce = sync.Once{}
}
