package shell

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestLocalRunCapturesOutput(t *testing.T) {
	requireSh(t)

	out := Local{}.Run("sh", "-c", "printf out; printf err >&2")
	assert.True(t, out.Success())
	assert.Equal(t, "out", out.StdoutString())
	assert.Equal(t, "err", out.StderrString())
}

func TestLocalRunExitStatus(t *testing.T) {
	requireSh(t)

	out := Local{}.Run("sh", "-c", "exit 3")
	assert.False(t, out.Success())
	assert.Equal(t, 3, out.Status)
}

func TestLocalRunMissingBinary(t *testing.T) {
	out := Local{}.Run("/nonexistent/go-signhere-tool")
	assert.Equal(t, -1, out.Status)
	assert.NotEmpty(t, out.StderrString())
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check(Output{}, "openssl", "version"))

	err := Check(Output{Status: 2, Stderr: []byte("boom")}, "openssl", "x509", "-in", "a.cer")
	var shellErr *Error
	require.True(t, errors.As(err, &shellErr))
	assert.Equal(t, "openssl x509 -in a.cer", shellErr.CommandLine())
	assert.Equal(t, "boom", shellErr.Output.StderrString())
	assert.Equal(t, "openssl exited with status 2", err.Error())
}
