package wordvec_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/ctxlog"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/wordvec"
)

const vectors = `the 1 0 0
cat 0 1 0
dog 0 0.9 0.1
car -1 0 0
`

func quiet() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func load(t *testing.T, opts wordvec.Options) *wordvec.WordEmb {
	t.Helper()
	e, err := wordvec.Load(quiet(), strings.NewReader(vectors), opts)
	require.NoError(t, err)
	return e
}

func TestLoad_Indices(t *testing.T) {
	e := load(t, wordvec.Options{})
	assert.Equal(t, 3, e.Dim())
	assert.Equal(t, 5, e.Len())
	assert.Equal(t, 1, e.Index("the"))
	assert.Equal(t, 4, e.Index("car"))
	assert.Zero(t, e.Index("unicorn"))

	assert.Equal(t, []float32{0, 0, 0}, e.Vector("unicorn"))
	assert.Equal(t, []float32{0, 1, 0}, e.Vector("cat"))
	assert.Equal(t, e.Vector("dog"), e.VectorAt(3))
	assert.Equal(t, []float32{0, 0, 0}, e.VectorAt(5))
	assert.Equal(t, []float32{0, 0, 0}, e.VectorAt(-1))
	assert.Equal(t, []string{"the", "cat", "dog", "car"}, e.Words())
}

func TestLoad_VocabLimit(t *testing.T) {
	e := load(t, wordvec.Options{VocabSize: 2})
	assert.Equal(t, 3, e.Len())
	assert.Equal(t, 2, e.Index("cat"))
	assert.Zero(t, e.Index("dog"))
}

func TestLoad_Errors(t *testing.T) {
	_, err := wordvec.Load(quiet(), strings.NewReader("a 1 2\nb 1\n"), wordvec.Options{})
	require.ErrorIs(t, err, wordvec.ErrDim)

	_, err = wordvec.Load(quiet(), strings.NewReader("a 1 2\n"), wordvec.Options{Dim: 3})
	require.ErrorIs(t, err, wordvec.ErrDim)

	_, err = wordvec.Load(quiet(), strings.NewReader("a 1 x\n"), wordvec.Options{})
	require.ErrorIs(t, err, wordvec.ErrFormat)

	_, err = wordvec.Load(quiet(), strings.NewReader("lonely\n"), wordvec.Options{})
	require.ErrorIs(t, err, wordvec.ErrFormat)

	_, err = wordvec.Load(quiet(), strings.NewReader("\n\n"), wordvec.Options{})
	require.ErrorIs(t, err, wordvec.ErrFormat)
}

func TestDistance(t *testing.T) {
	e := load(t, wordvec.Options{})
	assert.InDelta(t, 1, e.Distance("cat", "cat"), 1e-6)
	assert.InDelta(t, -1, e.Distance("the", "car"), 1e-6)
	assert.InDelta(t, 0, e.Distance("the", "cat"), 1e-6)
	assert.Zero(t, e.Distance("cat", "unicorn"))

	d := e.Distances("cat", "dog", "car")
	require.Len(t, d, 2)
	assert.InDelta(t, 0.9/0.905539, d[0], 1e-5)
	assert.InDelta(t, 0, d[1], 1e-6)
}

func TestGlove_Path(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "glove.6B.3d.txt"), []byte(vectors), 0o600))

	e, err := wordvec.Glove(quiet(), dir, 3, wordvec.Options{VocabSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, e.Len())

	_, err = wordvec.Glove(quiet(), dir, 50, wordvec.Options{})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBlock(t *testing.T) {
	e := load(t, wordvec.Options{Name: "words"})

	fixed, err := e.Block(param.NewRegistry(1), 0)
	require.NoError(t, err)
	assert.Zero(t, fixed.Weight().LRMul())
	assert.Equal(t, "words.w", fixed.Weight().Name())

	m := block.NewModel(fixed)
	out, err := m.Predict([][]int32{{2, 0}, {4, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0, 0, 0, 0, -1, 0, 0, 0, 0, 0}, out.AsFloat32())

	tuned, err := e.Block(param.NewRegistry(1).Sub("enc"), 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, tuned.Weight().LRMul(), 1e-7)
	assert.Equal(t, e.Weights().AsFloat32(), tuned.Weight().Value().AsFloat32())
}
