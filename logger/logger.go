package logger

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a structured log attribute.
type Field = zap.Field

// Options configures the global logger.
type Options struct {
	Level  string
	Format string // json or console
	File   string
}

var global atomic.Pointer[zap.Logger]

// Init builds the global logger. Console output goes to stdout; when File is
// set, a rotated JSON copy is written there as well.
func Init(opts Options) error {
	return initWith(opts, zapcore.Lock(os.Stdout))
}

func initWith(opts Options, out zapcore.WriteSyncer) error {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return err
		}
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder(opts.Format), out, level)}
	if opts.File != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(encoder("json"), w, level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named("messageboard")
	global.Store(l)
	return nil
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	if format == "console" {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

// L returns the global logger, falling back to a JSON info logger on stdout
// when Init has not run.
func L() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l := zap.New(zapcore.NewCore(encoder("json"), zapcore.Lock(os.Stdout), zap.InfoLevel))
	global.CompareAndSwap(nil, l)
	return global.Load()
}

// ResetForTest drops the global logger. Tests only.
func ResetForTest() { global.Store(nil) }

// Sync flushes buffered entries.
func Sync() { _ = L().Sync() }

func Info(msg string, fields ...Field) { L().Info(msg, fields...) }

func Warn(msg string, fields ...Field) { L().Warn(msg, fields...) }

func Error(msg string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	L().Error(msg, fields...)
}

func Debug(msg string, fields ...Field) { L().Debug(msg, fields...) }

func FieldKV(key string, value interface{}) Field { return zap.Any(key, value) }
