package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("debug", "gw-lending", &buf)

	WithOperation(log, "op-1", "supply", "0xabc").Info("operation started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "operation started", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "gw-lending", entry["service"])
	assert.Equal(t, "op-1", entry["operation_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("verbose", "", &buf)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	log.Debug("hidden")
	assert.Empty(t, buf.String())
}
