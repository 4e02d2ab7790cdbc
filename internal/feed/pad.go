package feed

import "github.com/born-ml/teafacto/internal/tensor"

// TruncatePad returns seq cut or right-padded with pad to exactly n
// elements.
func TruncatePad(seq []int32, n int, pad int32) []int32 {
	out := make([]int32, n)
	copy(out, seq)
	for i := len(seq); i < n; i++ {
		out[i] = pad
	}
	return out
}

// PadSequences stacks seqs into a [len(seqs), maxLen] int32 tensor padded
// with 0, the masked index. maxLen 0 uses the longest sequence.
func PadSequences(seqs [][]int32, maxLen int) *tensor.RawTensor {
	if maxLen <= 0 {
		for _, s := range seqs {
			maxLen = max(maxLen, len(s))
		}
	}
	out := tensor.Zeros(tensor.Shape{len(seqs), maxLen}, tensor.Int32)
	data := out.AsInt32()
	for i, s := range seqs {
		copy(data[i*maxLen:(i+1)*maxLen], s)
	}
	return out
}

// Lengths returns the number of leading non-zero entries of each row of a
// padded [batch, seq] int32 tensor.
func Lengths(padded *tensor.RawTensor) []int {
	shape := padded.Shape()
	data := padded.AsInt32()
	n, t := shape[0], shape[1]
	out := make([]int, n)
	for i := range n {
		for j := range t {
			if data[i*t+j] == 0 {
				break
			}
			out[i]++
		}
	}
	return out
}
