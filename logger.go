package tagcache

// Fields are structured log attributes. Errors go under "err".
type Fields map[string]any

// Logger is the leveled logging surface backends, caches and the lock write
// to. The log/ packages adapt slog, zap and logrus; a nil Logger in any
// options struct turns logging off.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// with returns a copy of f with err recorded under "err".
func (f Fields) with(err error) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	if err != nil {
		out["err"] = err
	}
	return out
}
