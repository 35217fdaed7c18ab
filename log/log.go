package log

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config for log
type Config struct {
	// Environment defining the log format ("production" or "development").
	Environment string `mapstructure:"Environment"`
	// Level of log, e.g. INFO, WARN, ...
	Level string `mapstructure:"Level"`
	// Outputs
	Outputs []string `mapstructure:"Outputs"`
}

// Logger is a sugared wrapper providing formatted and structured logging.
type Logger struct {
	x *zap.SugaredLogger
}

// root logger, stored atomically so Init can be called after packages
// have already taken the default.
var log atomic.Pointer[Logger]

func getDefaultLog() *Logger {
	l := log.Load()
	if l != nil {
		return l
	}
	// default to a development logger until Init is called
	zl, err := newZap(Config{
		Environment: "development",
		Level:       "debug",
		Outputs:     []string{"stderr"},
	})
	if err != nil {
		panic(err)
	}
	l = &Logger{x: zl.Sugar()}
	log.Store(l)
	return l
}

// Init the logger with defined level. Outputs defines the outputs where the
// logs will be sent. By default outputs contains "stdout", which prints the
// logs at the output of the process. To add or remove outputs, just add them
// to the outputs list.
func Init(cfg Config) {
	zl, err := newZap(cfg)
	if err != nil {
		panic(err)
	}
	log.Store(&Logger{x: zl.Sugar()})
}

func newZap(cfg Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("error on setting log level: %s", err)
	}

	var zapCfg zap.Config
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = level
	zapCfg.OutputPaths = cfg.Outputs
	zapCfg.InitialFields = map[string]interface{}{
		"pid": os.Getpid(),
	}

	return zapCfg.Build(zap.AddCallerSkip(2))
}

// WithFields returns a new Logger with the given fields attached to every
// entry it produces.
func WithFields(keyValuePairs ...interface{}) *Logger {
	return getDefaultLog().WithFields(keyValuePairs...)
}

// WithFields returns a new Logger with the given fields attached.
func (l *Logger) WithFields(keyValuePairs ...interface{}) *Logger {
	return &Logger{x: l.x.With(keyValuePairs...)}
}

// Debug calls log.Debug on the root Logger.
func Debug(args ...interface{}) { getDefaultLog().Debug(args...) }

// Info calls log.Info on the root Logger.
func Info(args ...interface{}) { getDefaultLog().Info(args...) }

// Warn calls log.Warn on the root Logger.
func Warn(args ...interface{}) { getDefaultLog().Warn(args...) }

// Error calls log.Error on the root Logger.
func Error(args ...interface{}) { getDefaultLog().Error(args...) }

// Fatal calls log.Fatal on the root Logger.
func Fatal(args ...interface{}) { getDefaultLog().Fatal(args...) }

// Debugf calls log.Debugf on the root Logger.
func Debugf(template string, args ...interface{}) { getDefaultLog().Debugf(template, args...) }

// Infof calls log.Infof on the root Logger.
func Infof(template string, args ...interface{}) { getDefaultLog().Infof(template, args...) }

// Warnf calls log.Warnf on the root Logger.
func Warnf(template string, args ...interface{}) { getDefaultLog().Warnf(template, args...) }

// Errorf calls log.Errorf on the root Logger.
func Errorf(template string, args ...interface{}) { getDefaultLog().Errorf(template, args...) }

// Fatalf calls log.Fatalf on the root Logger.
func Fatalf(template string, args ...interface{}) { getDefaultLog().Fatalf(template, args...) }

// Debug uses fmt.Sprint to construct and log a message.
func (l *Logger) Debug(args ...interface{}) { l.x.Debug(args...) }

// Info uses fmt.Sprint to construct and log a message.
func (l *Logger) Info(args ...interface{}) { l.x.Info(args...) }

// Warn uses fmt.Sprint to construct and log a message.
func (l *Logger) Warn(args ...interface{}) { l.x.Warn(args...) }

// Error uses fmt.Sprint to construct and log a message.
func (l *Logger) Error(args ...interface{}) { l.x.Error(args...) }

// Fatal uses fmt.Sprint to construct and log a message, then calls os.Exit.
func (l *Logger) Fatal(args ...interface{}) { l.x.Fatal(args...) }

// Debugf uses fmt.Sprintf to log a templated message.
func (l *Logger) Debugf(template string, args ...interface{}) { l.x.Debugf(template, args...) }

// Infof uses fmt.Sprintf to log a templated message.
func (l *Logger) Infof(template string, args ...interface{}) { l.x.Infof(template, args...) }

// Warnf uses fmt.Sprintf to log a templated message.
func (l *Logger) Warnf(template string, args ...interface{}) { l.x.Warnf(template, args...) }

// Errorf uses fmt.Sprintf to log a templated message.
func (l *Logger) Errorf(template string, args ...interface{}) { l.x.Errorf(template, args...) }

// Fatalf uses fmt.Sprintf to log a templated message, then calls os.Exit.
func (l *Logger) Fatalf(template string, args ...interface{}) { l.x.Fatalf(template, args...) }
