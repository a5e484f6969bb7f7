package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(ln), &m))
		out = append(out, m)
	}
	return out
}

func TestNew_JSONWithServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l, flush := New(Options{Level: "warn", JSON: true, Service: "api", Out: zapcore.AddSync(&buf)})
	l.Info("dropped")
	l.Warn("kept", zap.Int64("uid", 7))
	flush()

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0]["msg"])
	assert.Equal(t, "api", got[0]["service"])
	assert.Equal(t, float64(7), got[0]["uid"])
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{Level: "loud", JSON: true, Out: zapcore.AddSync(&buf)})
	l.Debug("hidden")
	l.Info("shown")
	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "shown", got[0]["msg"])
}

func TestToWriterAndRedirect(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{Level: "debug", JSON: true, Out: zapcore.AddSync(&buf)})

	w := ToWriter(l, zapcore.WarnLevel)
	_, err := w.Write([]byte("slow sql\r\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("\n"))
	require.NoError(t, err)

	undo := RedirectStdLog(l, zapcore.InfoLevel)
	log.Print("from std log")
	undo()

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "slow sql", got[0]["msg"])
	assert.Equal(t, "warn", got[0]["level"])
	assert.Equal(t, "from std log", got[1]["msg"])
}
