// Package tokenizer turns text into padded integer sequences.
//
// Two tokenizers are available: a whitespace dictionary tokenizer, usually
// fitted on the training texts, and OpenAI's byte-pair encodings through
// tiktoken. Both reserve id 0 for padding and unknown words.
//
// Example:
//
//	tok := tokenizer.FitDict(texts, 10000, tokenizer.Lowercase())
//	batch, err := tokenizer.EncodeBatch(tok, texts, 40) // [len(texts), 40] int32
package tokenizer

import (
	"github.com/born-ml/teafacto/internal/feed"
	"github.com/born-ml/teafacto/tensor"
)

// Tokenizer converts text to token ids and back.
type Tokenizer = feed.Tokenizer

// Dict is a whitespace tokenizer over a fixed vocabulary.
type Dict = feed.DictTokenizer

// DictOption configures a Dict.
type DictOption = feed.DictOption

// Lowercase makes a Dict case-insensitive.
func Lowercase() DictOption { return feed.Lowercase() }

// NewDict assigns index i+1 to words[i].
func NewDict(words []string, opts ...DictOption) *Dict { return feed.NewDictTokenizer(words, opts...) }

// FitDict keeps the maxVocab most frequent words of texts (0: all).
func FitDict(texts []string, maxVocab int, opts ...DictOption) *Dict {
	return feed.FitDictTokenizer(texts, maxVocab, opts...)
}

// TikToken is a byte-pair tokenizer with OpenAI's encodings.
type TikToken = feed.TikToken

// NewTikToken loads an encoding such as "cl100k_base".
func NewTikToken(encoding string) (*TikToken, error) { return feed.NewTikToken(encoding) }

// EncodeBatch encodes and pads texts into a [len(texts), maxLen] int32
// tensor; maxLen 0 uses the longest encoding.
func EncodeBatch(tok Tokenizer, texts []string, maxLen int) (*tensor.RawTensor, error) {
	return feed.EncodeBatch(tok, texts, maxLen)
}

// PadSequences stacks seqs into a zero-padded [len(seqs), maxLen] tensor.
func PadSequences(seqs [][]int32, maxLen int) *tensor.RawTensor { return feed.PadSequences(seqs, maxLen) }

// WordCharTransform encodes sentences as word ids plus character codes.
type WordCharTransform = feed.WordCharTransform
