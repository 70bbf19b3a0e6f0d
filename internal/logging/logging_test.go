package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/okt-galaktionov/confd/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONFormatEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: logging.FormatJSON, Level: "debug", Writer: &buf})
	require.NoError(t, err)

	logger.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestNewTextFormatIsDefault(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Writer: &buf})
	require.NoError(t, err)

	logger.Info("hi")
	assert.Contains(t, buf.String(), "msg=hi")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := logging.New(logging.Options{Level: "verbose"})
	assert.Error(t, err)
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: logging.FormatText, Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("suppressed")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestDiscardNeverPanics(t *testing.T) {
	l := logging.Discard()
	assert.NotNil(t, l)
	assert.NotPanics(t, func() { l.Error("x", slog.String("k", "v")) })
}
