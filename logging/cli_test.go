package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCLILogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger := NewCLILogger(level)
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(context.Background(), ParseLogLevel(level)))
		})
	}
}

func TestCLIHandlerColours(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCLIHandler(&buf, slog.LevelDebug))

	logger.Info("loaded", "examples", 10000)
	assert.Equal(t, colorGreen+"loaded: examples=10000"+colorReset+"\n", buf.String())

	buf.Reset()
	logger.Warn("slow")
	assert.Contains(t, buf.String(), colorYellow)

	buf.Reset()
	logger.Error("failed")
	assert.Contains(t, buf.String(), colorRed)

	buf.Reset()
	logger.Debug("trace")
	assert.Contains(t, buf.String(), colorGray)
}

func TestCLIHandlerWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCLIHandler(&buf, slog.LevelInfo).WithoutColor())
	logger.Error("plain", "k", "v")
	assert.Equal(t, "plain: k=v\n", buf.String())
}

func TestCLIHandlerLevelFiltering(t *testing.T) {
	tests := []struct {
		name         string
		handlerLevel slog.Level
		logFunc      func(*slog.Logger)
		shouldLog    bool
	}{
		{"info handler logs info", slog.LevelInfo, func(l *slog.Logger) { l.Info("test") }, true},
		{"info handler filters debug", slog.LevelInfo, func(l *slog.Logger) { l.Debug("test") }, false},
		{"debug handler logs debug", slog.LevelDebug, func(l *slog.Logger) { l.Debug("test") }, true},
		{"error handler filters info", slog.LevelError, func(l *slog.Logger) { l.Info("test") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(slog.New(NewCLIHandler(&buf, tt.handlerLevel)))
			assert.Equal(t, tt.shouldLog, buf.Len() > 0)
		})
	}
}

func TestCLIHandlerAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	var h slog.Handler = NewCLIHandler(&buf, slog.LevelInfo).WithoutColor()
	h = h.WithAttrs([]slog.Attr{slog.String("concept", "sea")})
	h = h.WithGroup("score")
	slog.New(h).Info("done", "layer", 12)
	assert.Equal(t, "[score] done: concept=sea layer=12\n", buf.String())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
}
