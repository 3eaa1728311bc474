// Package monitoring holds the diagnostic logger shared by the library
// packages. Binaries keep using the standard log package directly.
package monitoring

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "[magmap] ", log.LstdFlags)

// Logf is the package-level diagnostic logger. It writes to stderr with a
// "[magmap]" prefix until replaced with SetLogger.
var Logf func(format string, v ...interface{}) = std.Printf

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Mute silences Logf and returns a function restoring the previous logger.
// Intended for tests:
//
//	defer monitoring.Mute()()
func Mute() func() {
	prev := Logf
	SetLogger(nil)
	return func() { Logf = prev }
}
