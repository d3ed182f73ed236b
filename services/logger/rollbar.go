package logsvc

import (
	"net/http"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/trezcool/studyrelay/core"
)

// RollbarLogger reports to rollbar and mirrors every entry to a zap logger.
type RollbarLogger struct {
	zl      *zap.SugaredLogger
	rollbar bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(zl *zap.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "")
	return &RollbarLogger{zl: zl.Sugar(), rollbar: conf.RollbarToken != ""}
}

// NewNopLogger discards everything. Used by tests and tools.
func NewNopLogger() *RollbarLogger {
	return &RollbarLogger{zl: zap.NewNop().Sugar()}
}

// NewZapLogger returns the zap logger matching the environment: console output in debug mode,
// JSON otherwise.
func NewZapLogger(conf *core.Config) (*zap.Logger, error) {
	if conf.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (l RollbarLogger) Sync() {
	_ = l.zl.Sync()
	if l.rollbar {
		rollbar.Wait()
	}
}

// expected fmt: msg | error, map[string]interface{}, *http.Request
func (l RollbarLogger) fields(args []interface{}) []interface{} {
	kv := make([]interface{}, 0, 2*len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			kv = append(kv, zap.Error(v))
		case map[string]interface{}:
			for key, val := range v {
				kv = append(kv, key, val)
			}
		case *http.Request:
			kv = append(kv, "method", v.Method, "path", v.URL.Path)
		default:
			kv = append(kv, "extra", v)
		}
	}
	return kv
}

func (l RollbarLogger) report(level string, msg string, args []interface{}) {
	if !l.rollbar {
		return
	}
	rollbar.Log(level, append([]interface{}{msg}, args...)...)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.report(rollbar.DEBUG, msg, args)
	l.zl.Debugw(msg, l.fields(args)...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.INFO, msg, args)
	l.zl.Infow(msg, l.fields(args)...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
	l.zl.Warnw(msg, l.fields(args)...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
	l.zl.Errorw(msg, l.fields(args)...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	l.Sync()
	l.zl.Fatalw(msg, l.fields(args)...)
}
