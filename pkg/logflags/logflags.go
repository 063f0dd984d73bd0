// Package logflags turns logging on and off per component.
package logflags

import (
	"errors"
	"io"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var tracer = false
var probe = false
var build = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Tracer returns true if the ptrace layer should log.
func Tracer() bool {
	return tracer
}

// TracerLogger returns a logger for the ptrace layer.
func TracerLogger() *logrus.Entry {
	return makeLogger(tracer, logrus.Fields{"layer": "tracer"})
}

// Probe returns true if the probe sequence driver should log.
func Probe() bool {
	return probe
}

// ProbeLogger returns a logger for the probe sequence driver.
func ProbeLogger() *logrus.Entry {
	return makeLogger(probe, logrus.Fields{"layer": "probe"})
}

// Build returns true if target build commands should be logged.
func Build() bool {
	return build
}

// BuildLogger returns a logger for target build commands.
func BuildLogger() *logrus.Entry {
	return makeLogger(build, logrus.Fields{"layer": "build"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets component log flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "probe"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "tracer":
			tracer = true
		case "probe":
			probe = true
		case "build":
			build = true
		}
	}
	return nil
}
