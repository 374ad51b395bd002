package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var engineFile = filepath.Join("testdata", "engine.yaml")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	cmd := NewRootCommand()
	assert.Equal(t, "machinekit", cmd.Use)

	for _, name := range []string{"run", "graph", "validate", "serve"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	for _, flag := range []string{"log-level", "log-format", "env-file"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	g := goldie.New(t)

	t.Run("sync", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "run", "-f", engineFile, "start", "sub:next", "crash")
		require.NoError(t, err)
		g.Assert(t, "run", []byte(out))
	})

	t.Run("async", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "run", "-f", engineFile, "--async", "start", "sub:next", "crash")
		require.NoError(t, err)
		g.Assert(t, "run", []byte(out))
	})

	t.Run("deferred", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "run", "-f", engineFile, "--defer", "20ms", "start", "sub:next", "crash")
		require.NoError(t, err)
		g.Assert(t, "run", []byte(out))
	})

	t.Run("unnamed machines", func(t *testing.T) {
		t.Parallel()

		unnamed := filepath.Join("testdata", "unnamed.yaml")
		for _, mode := range [][]string{nil, {"--async"}} {
			args := append([]string{"run", "-f", unnamed}, mode...)
			out, err := execute(t, append(args, "start", "sub:next", "sub:next", "crash")...)
			require.NoError(t, err)
			assert.Contains(t, out, "machine.sub: red --next--> green (succeeded)")
			assert.Contains(t, out, "events: 4 succeeded: 3 failed: 1 errors: 0")
			assert.Contains(t, out, "substate: red")
		}
	})

	t.Run("dispatch error", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "run", "-f", engineFile, "start", "start")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, err.Error(), "1 of 2 events failed")
		g.Assert(t, "run_error", []byte(out))
	})

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "run", "-f", engineFile, "--metrics", "start", "stop")
		require.NoError(t, err)
		g.Assert(t, "run_metrics", []byte(out))
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "run", "-f", engineFile, "-o", "json", "start")
		require.NoError(t, err)
		assert.Contains(t, out, `"machine":"engine"`)
		assert.Contains(t, out, `"outcome":"succeeded"`)
		assert.Contains(t, out, "state: running")
	})
}

func TestRun_CommandErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"missing file flag", []string{"run", "start"}},
		{"missing file", []string{"run", "-f", filepath.Join("testdata", "nope.yaml"), "start"}},
		{"async and defer", []string{"run", "-f", engineFile, "--async", "--defer", "1s", "start"}},
		{"bad output", []string{"run", "-f", engineFile, "-o", "xml", "start"}},
		{"bad log level", []string{"--log-level", "loud", "run", "-f", engineFile}},
		{"unknown flag", []string{"run", "--nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestGraph(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "graph", "-f", engineFile)
	require.NoError(t, err)
	goldie.New(t).Assert(t, "graph", []byte(out))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "validate", "-f", engineFile)
	require.NoError(t, err)
	goldie.New(t).Assert(t, "validate", []byte(out))
}

func TestGetExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "failed")))
	assert.Equal(t, ExitCommandError, GetExitCode(io.EOF))

	wrapped := WrapExitError(ExitCommandError, "context", io.EOF)
	assert.ErrorIs(t, wrapped, io.EOF)
	assert.Equal(t, "context: EOF", wrapped.Error())
}
