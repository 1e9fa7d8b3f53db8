package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Defaults(t *testing.T) {
	l := newLogger()

	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

func TestGetLogger_WithContextLogger(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("command", "add")
	ctx := WithLogger(context.Background(), custom)

	got := G(ctx)
	assert.Equal(t, "add", got.Data["command"])
}

func TestGetLogger_Fallback(t *testing.T) {
	got := G(context.Background())
	assert.Equal(t, L.Logger, got.Logger)
}

func TestSetLogLevel(t *testing.T) {
	orig := L.Logger.GetLevel()
	t.Cleanup(func() { L.Logger.SetLevel(orig) })

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("loud"))
}

func TestSetLogFormat_JSON(t *testing.T) {
	var buf bytes.Buffer
	origOut, origFmt := L.Logger.Out, L.Logger.Formatter
	t.Cleanup(func() {
		L.Logger.SetOutput(origOut)
		L.Logger.Formatter = origFmt
	})

	SetLogOutput(&buf)
	SetLogFormat("json")
	L.WithField("skill", "frontend-design").Warn("installed")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "installed", record["message"])
	assert.Equal(t, "warning", record["logLevel"])
	assert.Equal(t, "frontend-design", record["skill"])
}
