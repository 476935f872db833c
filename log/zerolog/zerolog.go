// Package zerolog adapts a zerolog.Logger to tagcache.Logger.
package zerolog

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/tagcache"
)

var _ tagcache.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

func New(l zerolog.Logger) Logger { return Logger{L: l} }

func (z Logger) Debug(msg string, f tagcache.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f tagcache.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f tagcache.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f tagcache.Fields) { emit(z.L.Error(), msg, f) }

// emit writes fields in key order. A disabled level yields a nil event,
// which zerolog treats as a no-op.
func emit(e *zerolog.Event, msg string, f tagcache.Fields) {
	if e == nil {
		return
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, f[k])
	}
	e.Msg(msg)
}
