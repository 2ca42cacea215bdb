package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/storefront-field/quote-api/internal/platform/requestctx"
)

const serviceName = "quote-api"

// LoggerOption customises NewLogger.
type LoggerOption func(*loggerSettings)

type loggerSettings struct {
	level   string
	sink    io.Writer
	version string
}

// WithLogLevel overrides LOG_LEVEL.
func WithLogLevel(level string) LoggerOption {
	return func(s *loggerSettings) {
		s.level = level
	}
}

// WithLogOutput redirects log lines, mainly for tests.
func WithLogOutput(w io.Writer) LoggerOption {
	return func(s *loggerSettings) {
		if w != nil {
			s.sink = w
		}
	}
}

// WithServiceVersion stamps every line with the build version.
func WithServiceVersion(version string) LoggerOption {
	return func(s *loggerSettings) {
		s.version = strings.TrimSpace(version)
	}
}

// NewLogger builds the JSON logger shared by every component. Lines use Cloud Logging field
// names (severity, timestamp, message) so they are parsed without an agent config.
func NewLogger(opts ...LoggerOption) (*zap.Logger, error) {
	settings := loggerSettings{level: os.Getenv("LOG_LEVEL"), sink: os.Stdout}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(settings.level)))
	if err != nil || settings.level == "" {
		level = zapcore.InfoLevel
	}

	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:    "message",
		TimeKey:       "timestamp",
		LevelKey:      "severity",
		NameKey:       "logger",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	})
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(settings.sink)), level)

	fields := []zap.Field{zap.String("service", serviceName)}
	if settings.version != "" {
		fields = append(fields, zap.String("version", settings.version))
	}
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(fields...), nil
}

// FromContext returns the request-scoped logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// sanitize drops control runes and truncates to limit runes.
func sanitize(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n == limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
