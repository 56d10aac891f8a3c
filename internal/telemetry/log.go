package telemetry

import "log"

// Logf is the package-scoped logger, defaulting to log.Printf. Replace it
// with SetLogger to route telemetry store diagnostics elsewhere, or to
// silence them in tests.
var Logf = log.Printf

// SetLogger replaces Logf. Passing nil installs a no-op sink.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
