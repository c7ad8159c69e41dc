package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debug enables Debugf output. Advisory failures (for example the instrument
// gateway being unreachable) are only ever reported through Debugf.
var Debug bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs through Logf only when Debug is set.
func Debugf(format string, v ...interface{}) {
	if Debug {
		Logf(format, v...)
	}
}
