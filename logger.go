package intention

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger is the minimal structured logging surface the coordinator emits to.
// Keys and values alternate, zap SugaredLogger style.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to the Logger interface.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

// NewDevelopmentLogger returns a human-readable zap-backed logger, handy in
// examples and tests.
func NewDevelopmentLogger() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return &zapLogger{s: zap.NewNop().Sugar()}
	}
	return &zapLogger{s: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, kv ...any) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(msg string, kv ...any)  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(msg string, kv ...any)  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(msg string, kv ...any) { z.s.Errorw(msg, kv...) }

// DebugConfig selects which lifecycle events get logged. Flags are separate
// so a noisy concern can be silenced without losing the rest.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogCache     bool
	LogRateLimit bool
	LogRetries   bool
	LogCircuit   bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables all event classes with UUID request IDs.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogCache:     true,
		LogRateLimit: true,
		LogRetries:   true,
		LogCircuit:   true,
		RequestIDGen: uuid.NewString,
	}
}
