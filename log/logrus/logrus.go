// Package logrus adapts a logrus entry to imgcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/imgcache"
)

var _ imgcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l with a "component" field.
func New(l *logrus.Logger, component string) Logger {
	return Logger{E: l.WithField("component", component)}
}

func (l Logger) Debug(msg string, f imgcache.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f imgcache.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f imgcache.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f imgcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
