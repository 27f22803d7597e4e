// Package nflog wraps github.com/charmbracelet/log the way the
// teacher's netfilter package wraps gVisor's internal logger: a single
// package-level handle used for -v tracing, never for user-facing
// error text (which goes through ip6terr and straight to stderr).
package nflog

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var std = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: false,
	Prefix:          "ip6tables",
})

// SetVerbose toggles debug-level tracing, driven by the -v flag.
func SetVerbose(on bool) {
	if on {
		std.SetLevel(log.DebugLevel)
	} else {
		std.SetLevel(log.WarnLevel)
	}
}

// SetOutput redirects logging, used by tests to capture or discard it.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
