package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerSplitsLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewWriterLogger(&out, &errOut)

	l.LogCommand("indent 3")
	l.Warn("send dropped")
	l.LogError(errors.New("decode failed"))
	l.LogError(nil)

	assert.Contains(t, out.String(), "indent 3")
	assert.Contains(t, out.String(), "send dropped")
	assert.NotContains(t, errOut.String(), "indent 3")
	assert.Contains(t, errOut.String(), "send dropped")
	assert.Contains(t, errOut.String(), "decode failed")
}

func TestNewLoggerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(filepath.Join(dir, "log"), "commands.log", "errors.log")
	require.NoError(t, err)

	l.LogCommand("add")
	l.LogError(errors.New("oops"))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	cmd, err := os.ReadFile(filepath.Join(dir, "log", "commands.log"))
	require.NoError(t, err)
	assert.Contains(t, string(cmd), "add")

	errs, err := os.ReadFile(filepath.Join(dir, "log", "errors.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "oops")
	assert.NotContains(t, string(errs), `"msg":"add"`)
}
