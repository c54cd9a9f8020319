package logging

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelGating(t *testing.T) {
	old := Level()
	defer SetLogLevel(old)

	var buf bytes.Buffer
	l := New("test", &buf)
	assert.Equal(t, "test", l.Name())

	SetLogLevel(LevelWarn)
	l.Infof("hidden %d", 1)
	assert.Empty(t, buf.String())
	l.Warnf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")

	buf.Reset()
	SetLogLevel(LevelTrace)
	l.Tracef("trace %s", "on")
	assert.Contains(t, buf.String(), "trace on")

	buf.Reset()
	SetLogLevel(LevelNoPrint)
	l.Errorf("nothing")
	assert.Empty(t, buf.String())
}

func TestSetLogLevelIgnoresInvalid(t *testing.T) {
	old := Level()
	defer SetLogLevel(old)

	SetLogLevel(LevelDebug)
	SetLogLevel(42)
	SetLogLevel(-1)
	assert.Equal(t, LevelDebug, Level())
}

func TestDefaultOutputIsStderr(t *testing.T) {
	old := Level()
	defer SetLogLevel(old)
	SetLogLevel(LevelWarn)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	stderr := os.Stderr
	os.Stderr = w
	l := New("stderr", nil)
	os.Stderr = stderr

	l.Warnf("went to stderr")
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "went to stderr")
}
