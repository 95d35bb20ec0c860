// Package klog wires structured logging for the syscall core, the way
// lazydocker/pkg/log wraps logrus: New builds one entry per kernel from
// config.KernelConfig, used for the warnings the core emits (msync
// ignored, /proc/* passthrough) and for the error the dispatcher logs when
// it recovers a fatal unsupported-feature abort. It replaces the source's
// scattered stderr debug category output.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/multi2sim/m2sim-core/pkg/config"
)

// New builds a logger for one kernel instance. Debug mode logs everything
// to stderr in text form; production mode emits only warnings and above,
// as JSON, matching the two-mode split in lazydocker's NewLogger.
func New(cfg config.KernelConfig) *logrus.Entry {
	log := logrus.New()
	if cfg.Debug || os.Getenv("DEBUG") == "TRUE" {
		log.SetLevel(logrus.DebugLevel)
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	} else {
		log.SetLevel(logrus.WarnLevel)
		log.Formatter = &logrus.JSONFormatter{}
	}
	log.Out = os.Stderr

	return log.WithFields(logrus.Fields{
		"component": "m2sim-core",
		"version":   cfg.Version,
	})
}

// Discard is a logger that drops everything, for tests that don't want
// kernel warnings on stderr.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(discardWriter{})
	return log.WithField("component", "m2sim-core-test")
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
