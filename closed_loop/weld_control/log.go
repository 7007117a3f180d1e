package control

// Logger is the subset of the leveled logger the kernel writes to.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Critical(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Trace(string, ...any)    {}
func (nopLogger) Debug(string, ...any)    {}
func (nopLogger) Info(string, ...any)     {}
func (nopLogger) Warn(string, ...any)     {}
func (nopLogger) Error(string, ...any)    {}
func (nopLogger) Critical(string, ...any) {}
