package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/tensor"
)

func TestFold(t *testing.T) {
	tests := [][2]string{
		{"café", "cafe"},
		{"naïve", "naive"},
		{"Ångström", "Angstrom"},
		{"plain", "plain"},
		{"日本", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt[1], Fold(tt[0]), tt[0])
	}
}

func TestWordCharTransform(t *testing.T) {
	tr := WordCharTransform{
		Dict:     map[string]int{"the": 1, "cafe": 2},
		NumWords: 3,
		NumChars: 4,
	}
	got, err := tr.Transform([][]string{
		{"the", "café", "xyzzy1", "dropped"},
		{"the", "", "cafe"},
	})
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 3, 5}, got.Shape())

	want := []int32{
		1, 't', 'h', 'e', 0,
		2, 'c', 'a', 'f', 'e',
		0, 'x', 'y', 'z', 'z',

		1, 't', 'h', 'e', 0,
		0, 0, 0, 0, 0,
		0, 0, 0, 0, 0,
	}
	assert.Equal(t, want, got.AsInt32())

	tr.UnknownID = 9
	got, err = tr.Transform([][]string{{"who"}})
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.AsInt32()[0])

	_, err = WordCharTransform{NumWords: 2}.Transform(nil)
	require.Error(t, err)
}

func TestPadding(t *testing.T) {
	assert.Equal(t, []int32{1, 2, 0, 0}, TruncatePad([]int32{1, 2}, 4, 0))
	assert.Equal(t, []int32{1, 2}, TruncatePad([]int32{1, 2, 3}, 2, 0))
	assert.Equal(t, []int32{5, 7, 7}, TruncatePad([]int32{5}, 3, 7))

	p := PadSequences([][]int32{{1, 2, 3}, {4}, {}}, 0)
	require.Equal(t, tensor.Shape{3, 3}, p.Shape())
	assert.Equal(t, []int32{1, 2, 3, 4, 0, 0, 0, 0, 0}, p.AsInt32())
	assert.Equal(t, []int{3, 1, 0}, Lengths(p))

	p = PadSequences([][]int32{{1, 2, 3}, {4}}, 2)
	assert.Equal(t, []int32{1, 2, 4, 0}, p.AsInt32())
}

func TestDictTokenizer(t *testing.T) {
	tok := NewDictTokenizer([]string{"the", "cat", "the", "Sat"}, Lowercase())
	assert.Equal(t, 4, tok.VocabSize())
	assert.Equal(t, int32(3), tok.Index("SAT"))

	ids, err := tok.Encode("The  cat sat on\tthe mat")
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 0, 1, 0}, ids)

	text, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "the cat sat <unk> the <unk>", text)

	_, err = tok.Decode([]int32{4})
	require.ErrorIs(t, err, ErrToken)

	assert.Equal(t, map[string]int{"the": 1, "cat": 2, "sat": 3}, tok.Dict())
}

func TestFitDictTokenizer(t *testing.T) {
	tok := FitDictTokenizer([]string{"b a c", "a b", "a d"}, 2)
	assert.Equal(t, 3, tok.VocabSize())
	assert.Equal(t, int32(1), tok.Index("a"))
	assert.Equal(t, int32(2), tok.Index("b"))
	assert.Zero(t, tok.Index("c"))

	cased := FitDictTokenizer([]string{"A a"}, 0)
	assert.Equal(t, 3, cased.VocabSize())
}

func TestEncodeBatch(t *testing.T) {
	tok := NewDictTokenizer([]string{"x", "y"})
	got, err := EncodeBatch(tok, []string{"x y x", "y"}, 0)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 3}, got.Shape())
	assert.Equal(t, []int32{1, 2, 1, 2, 0, 0}, got.AsInt32())
}

func TestTikToken(t *testing.T) {
	_, err := NewTikToken("invalid_encoding_xyz")
	require.Error(t, err)

	tok, err := NewTikToken("cl100k_base")
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	assert.Equal(t, 100278, tok.VocabSize())

	ids, err := tok.Encode("hello world")
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.Positive(t, id)
	}

	padded := append(append([]int32(nil), ids...), 0, 0)
	text, err := tok.Decode(padded)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	_, err = tok.Decode([]int32{-1})
	require.ErrorIs(t, err, ErrToken)

	var _ Tokenizer = tok
}
