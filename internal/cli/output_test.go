package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(map[string]int{"created": 1}, nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Success(nil, func(w io.Writer) error {
		_, err := io.WriteString(w, "done\n")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "done\n", buf.String())
}

func TestOutputFormatter_ErrorWithHints(t *testing.T) {
	cause := errors.WithHint(errors.New("batch fetch failed"), "re-run with --skip-via-log")

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, formatter.Error("E_BATCH_FETCH", cause, map[string]int{"created": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_BATCH_FETCH", resp.Error.Code)
	assert.Equal(t, "batch fetch failed", resp.Error.Message)
	assert.Equal(t, []string{"re-run with --skip-via-log"}, resp.Error.Hints)
	assert.NotNil(t, resp.Data)

	buf.Reset()
	formatter.Format = "text"
	require.NoError(t, formatter.Error("E_BATCH_FETCH", cause, nil))
	assert.Equal(t, "Error [E_BATCH_FETCH]: batch fetch failed\nHint: re-run with --skip-via-log\n", buf.String())
}

func TestExitError(t *testing.T) {
	err := WrapExitError(ExitCommandError, "failed to open database", errors.New("no such file"))
	assert.Equal(t, "failed to open database: no such file", err.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.Wrap(err, "outer")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, "usage", NewExitError(ExitFailure, "usage").Error())
}
