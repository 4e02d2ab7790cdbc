package feed

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/born-ml/teafacto/internal/tensor"
)

// ErrToken is returned when decoding an id outside the vocabulary.
var ErrToken = errors.New("feed: token id out of range")

// UnknownToken is the text DictTokenizer decodes index 0 to.
const UnknownToken = "<unk>"

// Tokenizer converts text to token ids and back.
type Tokenizer interface {
	Encode(text string) ([]int32, error)
	Decode(ids []int32) (string, error)
	VocabSize() int
}

// EncodeBatch encodes texts with tok and pads the result into a [len(texts),
// maxLen] int32 tensor (maxLen 0: longest encoding).
func EncodeBatch(tok Tokenizer, texts []string, maxLen int) (*tensor.RawTensor, error) {
	seqs := make([][]int32, len(texts))
	for i, text := range texts {
		ids, err := tok.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("encode text %d: %w", i, err)
		}
		seqs[i] = ids
	}
	return PadSequences(seqs, maxLen), nil
}

// DictTokenizer splits text on whitespace and maps each word through a
// dictionary. Index 0 is reserved for unknown words and padding.
type DictTokenizer struct {
	dict  map[string]int32
	words []string // words[i] has index i; words[0] is UnknownToken
	lower bool
}

// DictOption configures a DictTokenizer.
type DictOption func(*DictTokenizer)

// Lowercase makes the tokenizer case-insensitive.
func Lowercase() DictOption {
	return func(d *DictTokenizer) { d.lower = true }
}

// NewDictTokenizer assigns index i+1 to words[i]. Duplicates keep their
// first index.
func NewDictTokenizer(words []string, opts ...DictOption) *DictTokenizer {
	d := &DictTokenizer{dict: make(map[string]int32, len(words)), words: []string{UnknownToken}}
	for _, opt := range opts {
		opt(d)
	}
	for _, w := range words {
		w = d.normalize(w)
		if _, ok := d.dict[w]; ok {
			continue
		}
		d.dict[w] = int32(len(d.words)) //nolint:gosec // vocabulary fits in int32
		d.words = append(d.words, w)
	}
	return d
}

// FitDictTokenizer builds a vocabulary from texts, most frequent words
// first (ties alphabetically), keeping at most maxVocab words (0: all).
func FitDictTokenizer(texts []string, maxVocab int, opts ...DictOption) *DictTokenizer {
	probe := NewDictTokenizer(nil, opts...)
	counts := make(map[string]int)
	for _, text := range texts {
		for _, w := range probe.split(text) {
			counts[w]++
		}
	}
	words := slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), strings.Compare(a, b))
	})
	if maxVocab > 0 && len(words) > maxVocab {
		words = words[:maxVocab]
	}
	return NewDictTokenizer(words, opts...)
}

func (d *DictTokenizer) normalize(w string) string {
	w = Fold(w)
	if d.lower {
		w = strings.ToLower(w)
	}
	return w
}

func (d *DictTokenizer) split(text string) []string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = d.normalize(f)
	}
	return fields
}

// Encode maps each word of text to its index, unknown words to 0.
func (d *DictTokenizer) Encode(text string) ([]int32, error) {
	words := d.split(text)
	ids := make([]int32, len(words))
	for i, w := range words {
		ids[i] = d.dict[w]
	}
	return ids, nil
}

// Decode joins the words of ids with single spaces.
func (d *DictTokenizer) Decode(ids []int32) (string, error) {
	words := make([]string, len(ids))
	for i, id := range ids {
		if id < 0 || int(id) >= len(d.words) {
			return "", fmt.Errorf("%w: %d", ErrToken, id)
		}
		words[i] = d.words[id]
	}
	return strings.Join(words, " "), nil
}

// VocabSize returns the number of indices including 0.
func (d *DictTokenizer) VocabSize() int { return len(d.words) }

// Index returns the index of word, 0 when unknown.
func (d *DictTokenizer) Index(word string) int32 { return d.dict[d.normalize(word)] }

// Dict returns a copy of the word to index mapping, usable with
// WordCharTransform.
func (d *DictTokenizer) Dict() map[string]int {
	out := make(map[string]int, len(d.dict))
	for w, i := range d.dict {
		out[w] = int(i)
	}
	return out
}
