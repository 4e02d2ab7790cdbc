package serialization

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/tensor"
)

func sampleTensors() []Tensor {
	return []Tensor{
		{Name: "enc.w", Value: tensor.MustFromFloat32([]float32{1, 2, 3, 4, 5, 6}, 2, 3)},
		{Name: "enc.b", Value: tensor.MustFromFloat32([]float32{0.5}, 1)},
		{Name: "dict", Value: tensor.MustFromInt32([]int32{7, 8, 9}, 3)},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	cfg := json.RawMessage(`{"indim":3,"dim":2}`)
	header := Header{
		Kind:       "linear",
		Config:     cfg,
		Metadata:   map[string]string{"note": "test"},
		Checkpoint: &CheckpointMeta{Epoch: 3, OptimizerType: "adam"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, header, sampleTensors()))

	f, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, "linear", f.Header.Kind)
	assert.JSONEq(t, string(cfg), string(f.Header.Config))
	assert.Equal(t, "test", f.Header.Metadata["note"])
	assert.Equal(t, 3, f.Header.Checkpoint.Epoch)
	assert.Equal(t, Version, f.Header.Version)
	assert.Equal(t, FlagHasConfig|FlagHasOptimizer|FlagHasMetadata, f.Flags)
	assert.Equal(t, []string{"enc.w", "enc.b", "dict"}, f.Names())

	w, ok := f.Tensor("enc.w")
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{2, 3}, w.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, w.AsFloat32())

	d, ok := f.Tensor("dict")
	require.True(t, ok)
	assert.Equal(t, tensor.Int32, d.DType())
	assert.Equal(t, []int32{7, 8, 9}, d.AsInt32())

	_, ok = f.Tensor("missing")
	assert.False(t, ok)
	assert.Len(t, f.StateDict(), 3)
}

func TestWrite_DataIsAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Header{}, sampleTensors()))
	// 6*4 + 4 + 3*4 bytes of tensor data follow an aligned prefix.
	assert.Zero(t, (buf.Len()-40)%HeaderAlignment)
}

func TestWrite_RejectsBadNames(t *testing.T) {
	v := tensor.MustFromFloat32([]float32{1}, 1)

	err := Write(&bytes.Buffer{}, Header{}, []Tensor{{Name: "a", Value: v}, {Name: "a", Value: v}})
	require.ErrorIs(t, err, ErrDuplicateTensor)

	err = Write(&bytes.Buffer{}, Header{}, []Tensor{{Name: "../a", Value: v}})
	require.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestRead_Corruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Header{Kind: "x"}, sampleTensors()))
	good := buf.Bytes()

	t.Run("checksum", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[len(bad)-1] ^= 0xFF
		_, err := Read(bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrChecksumMismatch)

		_, err = ReadWithOptions(bytes.NewReader(bad), ReaderOptions{SkipChecksumValidation: true})
		require.NoError(t, err)
	})

	t.Run("magic", func(t *testing.T) {
		bad := bytes.Clone(good)
		copy(bad, "NOPE")
		_, err := Read(bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("version", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[4] = 9
		_, err := Read(bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Read(bytes.NewReader(good[:len(good)-4]))
		require.ErrorIs(t, err, ErrTruncated)
	})
}

func TestWriteFile_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tfct")
	require.NoError(t, WriteFile(path, Header{Kind: "k"}, sampleTensors()))

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "k", f.Header.Kind)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
