package logging

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetGlobals points the file logger at a fresh temp directory.
func resetGlobals(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	logDir = ""
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}
	SetLogDirectory(dir)
	return dir
}

func TestNewLogger(t *testing.T) {
	dir := resetGlobals(t)

	logger, err := NewLogger("engine")
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, "engine", logger.component)
	assert.NotEmpty(t, logger.SessionID())
	assert.True(t, strings.HasPrefix(logger.LogPath(), dir))

	_, err = os.Stat(logger.LogPath())
	assert.NoError(t, err)
}

func TestLoggerFormatting(t *testing.T) {
	resetGlobals(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)

	logger.Debugf("debug message")
	logger.Infof("info message %d", 123)
	logger.Warnf("warning message")
	logger.Errorf("error message")
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)

	for _, pattern := range []string{
		"[test] [DEBUG] debug message",
		"[test] [INFO] info message 123",
		"[test] [WARN] warning message",
		"[test] [ERROR] error message",
	} {
		assert.Contains(t, string(content), pattern)
	}
}

func TestWithSharesDestination(t *testing.T) {
	var buf bytes.Buffer
	parent := New("engine", &buf)
	child := parent.With("signal")

	parent.Infof("from parent")
	child.Warnf("from child")

	out := buf.String()
	assert.Contains(t, out, "[engine] [INFO] from parent")
	assert.Contains(t, out, "[signal] [WARN] from child")
	assert.Equal(t, parent.SessionID(), child.SessionID())
}

func TestCloseIsIdempotent(t *testing.T) {
	resetGlobals(t)

	logger, err := NewLogger("close")
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestGetSessionID(t *testing.T) {
	resetGlobals(t)

	id1 := GetSessionID()
	id2 := GetSessionID()
	assert.Equal(t, id1, id2)
	assert.NotEmpty(t, id1)
}
