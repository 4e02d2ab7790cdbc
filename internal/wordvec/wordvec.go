// Package wordvec loads pretrained word vectors in the whitespace separated
// text format used by GloVe and word2vec and turns them into embedding
// blocks.
//
// The first word read gets index 1. Index 0 is reserved for unknown words
// and maps to the zero vector, matching nn.Embedding.
package wordvec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/teafacto/internal/ctxlog"
	"github.com/born-ml/teafacto/internal/nn"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// GlovePath is the default file name template of the GloVe 6B vectors; %d
// is the vector size.
const GlovePath = "glove.6B.%dd.txt"

var (
	// ErrFormat is returned for malformed vector files.
	ErrFormat = errors.New("wordvec: malformed vector file")
	// ErrDim is returned when a line's vector size differs from the
	// expected one.
	ErrDim = errors.New("wordvec: vector size mismatch")
)

// Options configures Load.
type Options struct {
	// Dim is the expected vector size. 0 takes it from the first line.
	Dim int
	// VocabSize limits the number of words read. 0 reads all of them.
	VocabSize int
	// Name names the embedding block built by Block. Defaults to "wordemb".
	Name string
}

// WordEmb is a dictionary of words with one vector each.
type WordEmb struct {
	name  string
	dim   int
	words []string       // index-1 order
	dict  map[string]int // word -> index
	w     []float32      // [len(words)+1, dim], row 0 zero
}

// Load reads word vectors from r, one word per line followed by its
// components.
func Load(ctx context.Context, r io.Reader, opts Options) (*WordEmb, error) {
	log := ctxlog.FromContext(ctx)
	start := time.Now()
	log.Debug("loading", "component", "wordvec", "dim", opts.Dim, "vocab", opts.VocabSize)

	e := &WordEmb{name: opts.Name, dim: opts.Dim, dict: make(map[string]int)}
	if e.name == "" {
		e.name = "wordemb"
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if opts.VocabSize > 0 && len(e.words) >= opts.VocabSize {
			break
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d has no vector", ErrFormat, line)
		}
		if e.dim == 0 {
			e.dim = len(fields) - 1
		}
		if len(fields)-1 != e.dim {
			return nil, fmt.Errorf("%w: line %d has %d components, want %d", ErrDim, line, len(fields)-1, e.dim)
		}
		if e.w == nil {
			e.w = make([]float32, e.dim) // row 0
		}
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrFormat, line, err)
			}
			e.w = append(e.w, float32(v))
		}
		word := fields[0]
		e.words = append(e.words, word)
		if _, dup := e.dict[word]; !dup {
			e.dict[word] = len(e.words)
		}
		if line%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}
	if len(e.words) == 0 {
		return nil, fmt.Errorf("%w: no vectors", ErrFormat)
	}

	log.Info("loaded", "component", "wordvec", "words", len(e.words), "dim", e.dim,
		"elapsed", time.Since(start))
	return e, nil
}

// LoadFile loads the vectors stored at path.
func LoadFile(ctx context.Context, path string, opts Options) (*WordEmb, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word vectors: %w", err)
	}
	defer f.Close()
	return Load(ctx, f, opts)
}

// Glove loads GloVe vectors of size dim from dir, using GlovePath as the
// file name.
func Glove(ctx context.Context, dir string, dim int, opts Options) (*WordEmb, error) {
	opts.Dim = dim
	if opts.Name == "" {
		opts.Name = "glove"
	}
	path := fmt.Sprintf(GlovePath, dim)
	if dir != "" {
		path = strings.TrimSuffix(dir, "/") + "/" + path
	}
	return LoadFile(ctx, path, opts)
}

// Dim returns the vector size.
func (e *WordEmb) Dim() int { return e.dim }

// Len returns the number of rows including the unknown-word row.
func (e *WordEmb) Len() int { return len(e.words) + 1 }

// Words returns the dictionary words in index order starting at index 1.
func (e *WordEmb) Words() []string { return e.words }

// Dict returns the word to index mapping. It must not be modified.
func (e *WordEmb) Dict() map[string]int { return e.dict }

// Index returns the index of word, or 0 when it is unknown.
func (e *WordEmb) Index(word string) int { return e.dict[word] }

// Vector returns the vector of word; unknown words get the zero vector.
// The returned slice aliases the table.
func (e *WordEmb) Vector(word string) []float32 {
	return e.row(e.Index(word))
}

// VectorAt returns the vector stored at index i. Out-of-range indices are
// unknown words and get the zero vector.
func (e *WordEmb) VectorAt(i int) []float32 {
	if i < 0 || i >= e.Len() {
		i = 0
	}
	return e.row(i)
}

func (e *WordEmb) row(i int) []float32 {
	return e.w[i*e.dim : (i+1)*e.dim]
}

// Distance returns the cosine similarity of the vectors of a and b. It is
// 0 when either word is unknown.
func (e *WordEmb) Distance(a, b string) float32 {
	return cosine(e.Vector(a), e.Vector(b))
}

// Distances returns the cosine similarity of a to each of others.
func (e *WordEmb) Distances(a string, others ...string) []float32 {
	va := e.Vector(a)
	out := make([]float32, len(others))
	for i, o := range others {
		out[i] = cosine(va, e.Vector(o))
	}
	return out
}

func cosine(a, b []float32) float32 {
	va := blas32.Vector{N: len(a), Inc: 1, Data: a}
	vb := blas32.Vector{N: len(b), Inc: 1, Data: b}
	na, nb := blas32.Nrm2(va), blas32.Nrm2(vb)
	if na == 0 || nb == 0 {
		return 0
	}
	return blas32.Dot(va, vb) / (na * nb)
}

// Weights returns a copy of the table as a [Len, Dim] tensor.
func (e *WordEmb) Weights() *tensor.RawTensor {
	return tensor.MustFromFloat32(append([]float32(nil), e.w...), e.Len(), e.dim)
}

// Block returns an embedding block initialized with the vectors.
// trainFrac scales its learning rate; 0 keeps the vectors fixed.
func (e *WordEmb) Block(reg *param.Registry, trainFrac float32) (*nn.Embedding, error) {
	return nn.NewEmbedding(reg, nn.EmbeddingConfig{
		Name:      e.name,
		InDim:     e.Len(),
		Dim:       e.dim,
		TrainFrac: trainFrac,
		Fixed:     trainFrac == 0,
	}, nn.WithWeights(e.Weights()))
}
