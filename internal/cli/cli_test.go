package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/shapegraph/graphir"
	"github.com/gomlx/shapegraph/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with the given arguments.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	outBuf, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func testdata(name string) string { return filepath.Join("testdata", name) }

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, cmdName := range []string{"build", "check", "ops"} {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
	maxPartialFlag := cmd.PersistentFlags().Lookup("max-partial")
	require.NotNil(t, maxPartialFlag)
	assert.Equal(t, "16", maxPartialFlag.DefValue)
}

func TestCheck(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		stdout, _, err := execute(t, "check", testdata("conv_net.yaml"))
		require.NoError(t, err)
		assert.Contains(t, stdout, "2 inputs, 1 constants, 6 operators")
		assert.Contains(t, stdout, "\tfeatures: float32(N, 2048)\n")
		assert.Contains(t, stdout, "\tbatch_size: int64(1)=[N]\n")
		assert.Contains(t, stdout, "fingerprint: ")
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := execute(t, "check", "--format=json", testdata("conv_net.yaml"))
		require.NoError(t, err)
		var resp struct {
			Status string      `json:"status"`
			Data   CheckResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 6, resp.Data.Operators)
		assert.Equal(t, "float32(N, 2048)", resp.Data.Outputs["features"])
		assert.Len(t, resp.Data.Fingerprint, 36)
	})

	t.Run("inference error", func(t *testing.T) {
		_, _, err := execute(t, "check", testdata("broadcast_error.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, err.Error(), "Add")
	})

	t.Run("cycle", func(t *testing.T) {
		_, _, err := execute(t, "check", testdata("cycle.yaml"))
		require.ErrorIs(t, err, graphir.ErrCycleDetected)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("missing file", func(t *testing.T) {
		stdout, _, err := execute(t, "check", "--format=json", testdata("missing.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, stdout, `"status":"error"`)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, _, err := execute(t, "check", "--format=xml", testdata("conv_net.yaml"))
		require.Error(t, err)
	})
}

func TestBuild(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		stdout, _, err := execute(t, "build", testdata("conv_net.yaml"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stdout, "Model:\n"))
		assert.Contains(t, stdout, "\t#0 image: float32(N, 3, 32, 32)\n")
		assert.Contains(t, stdout, "\t\t#2: float32(N, 8, 32, 32)\n")
		assert.Contains(t, stdout, "\tbatch_size: #")
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := execute(t, "build", "--format", "json", testdata("conv_net.yaml"))
		require.NoError(t, err)
		var resp struct {
			Status string         `json:"status"`
			Data   map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Len(t, resp.Data["operators"], 6)
	})

	t.Run("verbose", func(t *testing.T) {
		_, stderr, err := execute(t, "build", "-v", testdata("conv_net.yaml"))
		require.NoError(t, err)
		assert.Contains(t, stderr, "Conv(")
	})
}

func TestOps(t *testing.T) {
	stdout, _, err := execute(t, "ops")
	require.NoError(t, err)
	assert.Contains(t, stdout, "MatMul\n")
	assert.Contains(t, stdout, "NonZero\t(data-dependent)\n")
	assert.Equal(t, len(inference.AllOpTypes()), strings.Count(stdout, "\n"))
}

func TestParseGraphFile(t *testing.T) {
	build := func(yamlText string) (*graphir.Model, error) {
		gf, err := ParseGraphFile(strings.NewReader(yamlText))
		if err != nil {
			return nil, err
		}
		return gf.Build(graphir.NewBuilder().WithDiagnostics(nil))
	}

	t.Run("shapes and constants", func(t *testing.T) {
		model, err := build(`
inputs:
  - {name: x, dtype: int32, shape: ["?", B, 4]}
  - {name: s, dtype: float16}
constants:
  - {name: flags, dtype: bool, values: [true, false]}
  - {name: one, dtype: float16, values: [1]}
  - {name: table, dtype: int64, dims: [2, 2], values: [1, 2, 3, 4]}
nodes:
  - {op: Shape, inputs: [x], outputs: [shape]}
  - {op: Add, inputs: [s, one], outputs: [sum]}
outputs: [shape, flags, table]
`)
		require.NoError(t, err)
		assert.Equal(t, "(?, B, 4)", model.Inputs[0].Shape.String())
		assert.True(t, model.Inputs[1].Shape.IsScalar())
		assert.Equal(t, "int64(3)=[?, B, 4]", model.Values[model.Outputs[0].ID].String())
		assert.Equal(t, "bool(2)=[1, 0]", model.Values[model.Outputs[1].ID].String())
		assert.Equal(t, "int64(2, 2)=[1, 2, 3, 4]", model.Values[model.Outputs[2].ID].String())
	})

	t.Run("optional inputs", func(t *testing.T) {
		model, err := build(`
inputs:
  - {name: x, dtype: float32, shape: [1, 3, 8, 8]}
constants:
  - {name: sizes, dtype: int64, values: [1, 3, 4, 4]}
nodes:
  - {op: Resize, inputs: [x, "", "", sizes], outputs: [y]}
outputs: [y]
`)
		require.NoError(t, err)
		assert.Equal(t, "float32(1, 3, 4, 4)", model.Values[model.Outputs[0].ID].String())
	})

	t.Run("errors", func(t *testing.T) {
		for name, yamlText := range map[string]string{
			"unknown field":    "inputs: []\noutputz: [x]\n",
			"no outputs":       "inputs: [{name: x, dtype: float32}]\n",
			"undefined value":  "inputs: [{name: x, dtype: float32}]\nnodes: [{op: Neg, inputs: [y], outputs: [z]}]\noutputs: [z]\n",
			"unknown op":       "inputs: [{name: x, dtype: float32}]\nnodes: [{op: Frobnicate, inputs: [x], outputs: [z]}]\noutputs: [z]\n",
			"bad dtype":        "inputs: [{name: x, dtype: float99}]\noutputs: [x]\n",
			"bad dimension":    "inputs: [{name: x, dtype: float32, shape: [batch]}]\noutputs: [x]\n",
			"duplicate":        "inputs: [{name: x, dtype: float32}]\nnodes: [{op: Neg, inputs: [x], outputs: [x]}]\noutputs: [x]\n",
			"output count":     "inputs: [{name: x, dtype: float32}]\nnodes: [{op: Neg, inputs: [x], outputs: [a, b]}]\noutputs: [a]\n",
			"undefined output": "inputs: [{name: x, dtype: float32}]\noutputs: [y]\n",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := build(yamlText)
				require.Error(t, err)
			})
		}
	})
}
