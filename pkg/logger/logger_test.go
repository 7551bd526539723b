package logger_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notedrive/notedrive/pkg/logger"
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	require.Equal(t, buff.Len(), 0)
	templogger.Logger.Info().Msg("Test")
	require.Contains(t, buff.String(), "Test")
}

func TestLogLevel(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).FromLevel("warn").Make()
	require.NoError(t, err)
	templogger.Logger.Info().Msg("quiet")
	require.Equal(t, buff.Len(), 0)
	templogger.Logger.Warn().Msg("loud")
	require.Contains(t, buff.String(), "loud")
}

func TestLogBadLevel(t *testing.T) {
	_, err := logger.New().FromLevel("shout").Make()
	require.Error(t, err)
}

func TestLogService(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).FromService("notedrive").Make()
	require.NoError(t, err)
	templogger.Logger.Info().Msg("Test")
	require.Contains(t, buff.String(), `"service":"notedrive"`)
}
