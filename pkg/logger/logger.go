package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Lg is the global zap logger, available after Init.
var Lg *zap.Logger

// LogConfig controls log output and rotation
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`       // debug, info, warn, error
	File       string `env:"LOG_FILE"`        // log file path, empty for stdout only
	MaxSize    int    `env:"LOG_MAX_SIZE"`    // max size in MB before rotation
	MaxBackups int    `env:"LOG_MAX_BACKUPS"` // number of rotated files to keep
	MaxAge     int    `env:"LOG_MAX_AGE"`     // days to keep rotated files
}

// Init builds the global logger from config. In production mode the logger
// writes JSON, otherwise a console encoder with colored levels.
func Init(cfg *LogConfig, mode string) error {
	level := zapcore.InfoLevel
	if cfg != nil && cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if mode == "production" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	syncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if cfg != nil && cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    defaultInt(cfg.MaxSize, 100),
			MaxBackups: defaultInt(cfg.MaxBackups, 7),
			MaxAge:     defaultInt(cfg.MaxAge, 30),
			Compress:   true,
		}
		syncers = append(syncers, zapcore.AddSync(rotator))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	Lg = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return nil
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func ensure() *zap.Logger {
	if Lg == nil {
		Lg, _ = zap.NewDevelopment(zap.AddCallerSkip(1))
	}
	return Lg
}

func Debug(msg string, fields ...zap.Field) { ensure().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { ensure().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { ensure().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { ensure().Error(msg, fields...) }

// Sync flushes buffered log entries, typically deferred from main.
func Sync() {
	if Lg != nil {
		_ = Lg.Sync()
	}
}
