package logging

import (
	"os"
	"strings"

	"github.com/sweetshop/apiserver/config"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const instrumentationScope = "github.com/sweetshop/apiserver"

// ParseLevel maps a level name onto a zap level, defaulting to info.
func ParseLevel(name string) zapcore.Level {
	level, err := zapcore.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// New builds a JSON console logger. When provider is non-nil, records are
// also exported through the OpenTelemetry log bridge.
func New(levelName string, provider *sdklog.LoggerProvider) *zap.Logger {
	level := ParseLevel(levelName)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		level,
	)

	if provider != nil {
		var otelCore zapcore.Core = otelzap.NewCore(instrumentationScope, otelzap.WithLoggerProvider(provider))
		if leveled, err := zapcore.NewIncreaseLevelCore(otelCore, level); err == nil {
			otelCore = leveled
		}
		core = zapcore.NewTee(otelCore, core)
	}

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("service.name", config.ServiceName),
			zap.String("service.version", config.ServiceVersion),
		),
	)
}
