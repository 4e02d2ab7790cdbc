package train

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/teafacto/internal/tensor"
)

// rows checks that every tensor has the same number of rows and returns it.
func rows(gold *tensor.RawTensor, data []*tensor.RawTensor) (int, error) {
	if gold == nil || gold.NDim() == 0 {
		return 0, fmt.Errorf("%w: gold needs a leading example axis", ErrData)
	}
	n := gold.Shape()[0]
	for i, d := range data {
		if d.NDim() == 0 || d.Shape()[0] != n {
			return 0, fmt.Errorf("%w: input %d has shape %v, gold has %d examples", ErrData, i, d.Shape(), n)
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no examples", ErrData)
	}
	return n, nil
}

// takeRows gathers rows idx of r along axis 0. It copies bytes, so every
// dtype works.
func takeRows(r *tensor.RawTensor, idx []int) *tensor.RawTensor {
	shape := r.Shape().Clone()
	rowBytes := 0
	if shape[0] > 0 {
		rowBytes = r.ByteSize() / shape[0]
	}
	shape[0] = len(idx)
	out := tensor.MustRaw(shape, r.DType())
	src, dst := r.Data(), out.Data()
	for i, j := range idx {
		copy(dst[i*rowBytes:(i+1)*rowBytes], src[j*rowBytes:(j+1)*rowBytes])
	}
	return out
}

// rng returns the generator for one purpose of one epoch. Runs with the
// same seed draw the same numbers regardless of where they started.
func rng(seed uint64, stream, epoch int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(stream)<<32|uint64(epoch)))
}

const (
	streamShuffle = iota + 1
	streamSplit
)

// split partitions 0..n-1 into training and held-out indices; every
// splits-th example (or a random 1/splits of them) is held out.
func split(n, splits int, random bool, seed uint64) (trainIdx, validIdx []int) {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if random {
		order = rng(seed, streamSplit, 0).Perm(n)
	}
	for i, j := range order {
		if i%splits == splits-1 {
			validIdx = append(validIdx, j)
		} else {
			trainIdx = append(trainIdx, j)
		}
	}
	return trainIdx, validIdx
}

// batchRanges cuts n examples into at most k nearly equal batches.
func batchRanges(n, k int) [][2]int {
	k = max(1, min(k, n))
	size := (n + k - 1) / k
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// gather selects rows idx of every tensor.
func gather(data []*tensor.RawTensor, idx []int) []*tensor.RawTensor {
	out := make([]*tensor.RawTensor, len(data))
	for i, d := range data {
		out[i] = takeRows(d, idx)
	}
	return out
}
