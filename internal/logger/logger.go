package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup builds the process logger from config. The returned closer releases the
// rotating file sink when one is configured.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rl, err := newRotatingFile(cfg)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		out = zerolog.MultiLevelWriter(out, rl)
		closer = rl
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

func newRotatingFile(cfg config.LoggingConfig) (*rotatelogs.RotateLogs, error) {
	opts := []rotatelogs.Option{rotatelogs.WithLinkName(cfg.File)}
	if cfg.MaxAge > 0 {
		opts = append(opts, rotatelogs.WithMaxAge(cfg.MaxAge))
	}
	if cfg.RotationTime > 0 {
		opts = append(opts, rotatelogs.WithRotationTime(cfg.RotationTime))
	}

	rl, err := rotatelogs.New(cfg.File+".%Y%m%d", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return rl, nil
}
