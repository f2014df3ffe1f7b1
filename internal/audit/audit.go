package audit

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	enabled atomic.Bool
	logger  atomic.Pointer[zap.SugaredLogger]
)

func init() {
	RefreshFromEnv()
	logger.Store(zap.NewNop().Sugar())
}

// SetLogger routes audit lines to l.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l.Named("audit").Sugar())
}

// Set toggles audit logging regardless of the environment.
func Set(on bool) {
	enabled.Store(on)
}

// Enabled reports whether audit lines are emitted.
func Enabled() bool {
	return enabled.Load()
}

// RefreshFromEnv re-reads PROBE_DEBUG.
func RefreshFromEnv() {
	enabled.Store(os.Getenv("PROBE_DEBUG") == "1")
}

// Log prints debug audit messages if PROBE_DEBUG=1 is set.
func Log(format string, args ...any) {
	if Enabled() {
		logger.Load().Infof("[AUDIT] "+format, args...)
	}
}
