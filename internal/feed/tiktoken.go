package feed

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Vocabulary sizes of the tiktoken encodings, including special tokens.
var tiktokenVocab = map[string]int{
	"cl100k_base": 100277,
	"p50k_base":   50281,
	"r50k_base":   50257,
}

// TikToken is a byte-pair tokenizer using OpenAI's encodings.
//
// Ids are shifted by one so that 0 stays free for padding: id i is
// tiktoken token i-1.
type TikToken struct {
	enc  *tiktoken.Tiktoken
	name string
}

// NewTikToken loads the named encoding (cl100k_base, p50k_base or
// r50k_base).
func NewTikToken(encoding string) (*TikToken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &TikToken{enc: enc, name: encoding}, nil
}

// Name returns the encoding name.
func (t *TikToken) Name() string { return t.name }

// Encode converts text to shifted token ids.
func (t *TikToken) Encode(text string) ([]int32, error) {
	toks := t.enc.Encode(text, nil, nil)
	out := make([]int32, len(toks))
	for i, tok := range toks {
		out[i] = int32(tok) + 1 //nolint:gosec // vocabularies are far below 2^31
	}
	return out, nil
}

// Decode converts shifted ids back to text. Padding ids are skipped.
func (t *TikToken) Decode(ids []int32) (string, error) {
	toks := make([]int, 0, len(ids))
	for _, id := range ids {
		if id < 0 {
			return "", fmt.Errorf("%w: %d", ErrToken, id)
		}
		if id > 0 {
			toks = append(toks, int(id)-1)
		}
	}
	return t.enc.Decode(toks), nil
}

// VocabSize returns the number of ids including the padding id.
func (t *TikToken) VocabSize() int {
	return tiktokenVocab[t.name] + 1
}
