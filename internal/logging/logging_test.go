package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", "json", &buf)

	l.Info("hidden")
	l.Warn("shown", "k", "v")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", "text", &buf)
	ctx := WithLogger(context.Background(), l)

	FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestDropMessages(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, nil)
	l := slog.New(DropMessages(base, "TLS handshake error")).With("component", "http")

	l.Info("http: TLS handshake error from 10.0.0.1")
	l.Info("request served")

	out := buf.String()
	assert.NotContains(t, out, "TLS handshake")
	assert.Contains(t, out, "request served")
	assert.Contains(t, out, "component=http")
}
