package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologAdapter_WithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	zl, err := NewZerologFromConfig(&buf, "debug", FormatJSON)
	require.NoError(t, err)

	l := NewZerologAdapterWithLogger(zl).With(Int("part", 3), String("role", "printhead"))
	l.Info("instruction forwarded",
		String("op", "Dot"),
		Uint8("ack", 255),
		Duration("timeout", 2*time.Second),
		Err(errors.New("boom")),
	)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "instruction forwarded", line["message"])
	assert.Equal(t, float64(3), line["part"])
	assert.Equal(t, "printhead", line["role"])
	assert.Equal(t, "Dot", line["op"])
	assert.Equal(t, float64(255), line["ack"])
	assert.Equal(t, "boom", line["error"])
}

func TestZerologAdapter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	zl, err := NewZerologFromConfig(&buf, "warn", FormatJSON)
	require.NoError(t, err)

	l := NewZerologAdapterWithLogger(zl)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 1, strings.Count(out, "shown"))
}

func TestNewZerologFromConfig_Invalid(t *testing.T) {
	_, err := NewZerologFromConfig(&bytes.Buffer{}, "loud", FormatJSON)
	assert.Error(t, err)

	_, err = NewZerologFromConfig(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestNoopLogger_With(t *testing.T) {
	var l Logger = NewNoopLogger()
	l = l.With(String("k", "v"))
	l.Error("discarded")
	_, ok := l.(NoopLogger)
	assert.True(t, ok)
}
