package logging

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewTextAndJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelDebug, "text").Debug("saved", "path", "a.txt")
	assert.Contains(t, buf.String(), "path=a.txt")

	buf.Reset()
	New(&buf, slog.LevelInfo, "json").Info("loaded", "images", 3)
	assert.Contains(t, buf.String(), `"images":3`)

	buf.Reset()
	New(&buf, LevelTrace, "text").Log(context.Background(), LevelTrace, "line skipped")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "annotator.log")
	l, closer, err := NewFile(path, slog.LevelInfo, "text")
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, closer.Close())
	assert.FileExists(t, path)
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
}
