package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/nn"
	"github.com/born-ml/teafacto/internal/param"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const linearConfig = `
variable "dim" {
  default = 3
}

logging {
  level = "error"
}

model "proj" {
  kind   = "linear"
  config = { indim = 2, dim = var.dim }
}
`

func TestKinds(t *testing.T) {
	out, err := execute(t, "kinds")
	require.NoError(t, err)
	assert.Contains(t, out, "linear\n")
	assert.Contains(t, out, "seqencdec.simple\n")
}

func TestCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proj.hcl")
	require.NoError(t, os.WriteFile(path, []byte(linearConfig), 0o600))

	out, err := execute(t, "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, `model "proj" (linear)`)
	assert.Contains(t, out, "9 parameters")
	assert.NotContains(t, out, "trainer:")

	out, err = execute(t, "check", path, "--var", "dim=4")
	require.NoError(t, err)
	assert.Contains(t, out, "12 parameters")

	_, err = execute(t, "check", path, "--var", "width=4")
	require.Error(t, err)
	_, err = execute(t, "check")
	require.Error(t, err)
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"n=3", "lr=0.5", "bidir=true", "cell=lstm"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 3, "lr": 0.5, "bidir": true, "cell": "lstm"}, vars)

	vars, err = parseVars(nil)
	require.NoError(t, err)
	assert.Nil(t, vars)

	_, err = parseVars([]string{"novalue"})
	require.Error(t, err)
	_, err = parseVars([]string{"=1"})
	require.Error(t, err)
}

func TestInspect(t *testing.T) {
	lin, err := nn.NewLinear(param.NewRegistry(1), nn.LinearConfig{Name: "proj", InDim: 2, Dim: 3})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "proj.model")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, block.Freeze(f, lin))
	require.NoError(t, f.Close())

	out, err := execute(t, "inspect", path, "--rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "kind:    linear")
	assert.Contains(t, out, "proj.w")
	assert.Contains(t, out, "rebuilt proj with 2 parameters")

	_, err = execute(t, "inspect", filepath.Join(t.TempDir(), "missing.model"))
	require.Error(t, err)
}
