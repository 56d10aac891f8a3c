package pairing

import "log"

// Logf is the package-level diagnostic logger for internal/pairing,
// following internal/monitoring's per-package logger convention.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger; nil installs a no-op sink.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
