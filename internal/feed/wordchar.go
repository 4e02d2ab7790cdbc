// Package feed turns raw text into the integer tensors models consume:
// word and character index matrices, padded token sequences and
// tokenizers.
package feed

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/born-ml/teafacto/internal/tensor"
)

// Fold transliterates s to ASCII: accents are stripped and runes without
// an ASCII base are dropped.
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)
}

// WordCharTransform encodes sentences as words plus their characters.
//
// Each word becomes a row of NumChars+1 int32 values: the word's
// dictionary index (UnknownID when missing) followed by the ASCII codes
// of its folded form, zero padded. An empty word ends the sentence; the
// remaining rows stay zero.
type WordCharTransform struct {
	Dict      map[string]int
	UnknownID int32
	NumWords  int
	NumChars  int
}

// Shape returns the output shape for n sentences.
func (w WordCharTransform) Shape(n int) tensor.Shape {
	return tensor.Shape{n, w.NumWords, w.NumChars + 1}
}

// Transform encodes sentences into a [len(sentences), NumWords,
// NumChars+1] int32 tensor. Longer sentences and words are truncated.
func (w WordCharTransform) Transform(sentences [][]string) (*tensor.RawTensor, error) {
	if w.NumWords <= 0 || w.NumChars <= 0 {
		return nil, fmt.Errorf("feed: word/char transform needs positive sizes, got %d words of %d chars", w.NumWords, w.NumChars)
	}
	out := tensor.Zeros(w.Shape(len(sentences)), tensor.Int32)
	data := out.AsInt32()
	width := w.NumChars + 1
	for i, words := range sentences {
		for j, word := range words[:min(len(words), w.NumWords)] {
			if word == "" {
				break
			}
			row := data[(i*w.NumWords+j)*width : (i*w.NumWords+j+1)*width]
			row[0] = w.wordID(word)
			folded := Fold(word)
			for k := range min(len(folded), w.NumChars) {
				row[k+1] = int32(folded[k])
			}
		}
	}
	return out, nil
}

func (w WordCharTransform) wordID(word string) int32 {
	if id, ok := w.Dict[Fold(word)]; ok {
		return int32(id) //nolint:gosec // dictionary indices are small
	}
	if id, ok := w.Dict[word]; ok {
		return int32(id) //nolint:gosec // dictionary indices are small
	}
	return w.UnknownID
}
