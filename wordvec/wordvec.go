// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package wordvec loads pretrained word vectors (GloVe, word2vec text
// format) for use as embedding blocks.
//
// Example:
//
//	emb, err := wordvec.Glove(ctx, "data/glove", 50, wordvec.Options{VocabSize: 40000})
//	block, err := emb.Block(reg, 0.1) // fine-tune at a tenth of the learning rate
package wordvec

import (
	"context"
	"io"

	"github.com/born-ml/teafacto/internal/wordvec"
)

// WordEmb is a dictionary of words with their vectors. Unknown words map
// to index 0 and the zero vector.
type WordEmb = wordvec.WordEmb

// Options configures loading.
type Options = wordvec.Options

// GlovePath is the file name template of the GloVe 6B vectors.
const GlovePath = wordvec.GlovePath

// Sentinel errors.
var (
	ErrFormat = wordvec.ErrFormat
	ErrDim    = wordvec.ErrDim
)

// Load reads vectors from r.
func Load(ctx context.Context, r io.Reader, opts Options) (*WordEmb, error) {
	return wordvec.Load(ctx, r, opts)
}

// LoadFile reads vectors from path.
func LoadFile(ctx context.Context, path string, opts Options) (*WordEmb, error) {
	return wordvec.LoadFile(ctx, path, opts)
}

// Glove loads GloVe vectors of size dim from dir.
func Glove(ctx context.Context, dir string, dim int, opts Options) (*WordEmb, error) {
	return wordvec.Glove(ctx, dir, dim, opts)
}
