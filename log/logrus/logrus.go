// Package logrus adapts a *logrus.Entry to tagcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/tagcache"
)

var _ tagcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l; a nil l uses logrus.StandardLogger().
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f tagcache.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f tagcache.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f tagcache.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f tagcache.Fields) { l.entry(f).Error(msg) }

// entry moves an "err" field to logrus' own error key.
func (l Logger) entry(f tagcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
