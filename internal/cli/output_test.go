package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "bad", errors.New("inner")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitError_Message(t *testing.T) {
	inner := errors.New("inner")
	err := WrapExitError(ExitFailure, "query failed", inner)
	assert.Equal(t, "query failed: inner", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	assert.NoError(t, f.Success(map[string]int{"rows": 2}, "ignored"))
	assert.JSONEq(t, `{"status":"ok","data":{"rows":2}}`, buf.String())

	buf.Reset()
	f.Error(NewExitError(ExitCommandError, "bad"))
	assert.JSONEq(t, `{"status":"error","error":{"code":2,"message":"bad"}}`, buf.String())

	var out, errOut bytes.Buffer
	f = &OutputFormatter{Format: "text", Writer: &out, ErrWriter: &errOut}
	assert.NoError(t, f.Success(nil, "done"))
	assert.Equal(t, "done\n", out.String())
	f.Logf("hidden")
	assert.Empty(t, errOut.String())
	f.Verbose = true
	f.Logf("shown %d", 1)
	assert.Equal(t, "shown 1\n", errOut.String())
}
