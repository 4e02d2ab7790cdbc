package tensor

// Backend defines the kernels the graph executor needs. Kernels operate on
// float32 tensors unless stated otherwise and panic on shape or dtype errors;
// the executor recovers those panics into errors at its boundary.
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations (element-wise with scalar).
	AddScalar(x *RawTensor, c float32) *RawTensor
	MulScalar(x *RawTensor, c float32) *RawTensor
	PowScalar(x *RawTensor, c float32) *RawTensor

	// Element-wise math and activations.
	Neg(x *RawTensor) *RawTensor
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	ReLU(x *RawTensor) *RawTensor
	Positive(x *RawTensor) *RawTensor               // 1 where x > 0, else 0
	EqualScalar(x *RawTensor, c float32) *RawTensor // 1 where x == c, else 0 (float32 result, any dtype input)
	Softmax(x *RawTensor) *RawTensor                // along the last axis
	Clip(x *RawTensor, lo, hi float32) *RawTensor   // clamp into [lo, hi]

	// MatMul multiplies two 2-D matrices: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Reshape(x *RawTensor, shape Shape) *RawTensor
	Transpose(x *RawTensor, perm ...int) *RawTensor
	BroadcastTo(x *RawTensor, shape Shape) *RawTensor
	ReduceTo(x *RawTensor, shape Shape) *RawTensor // sums broadcast dimensions away
	Cat(ts []*RawTensor, dim int) *RawTensor
	Slice(x *RawTensor, dim, start, end int) *RawTensor
	PadSlice(x *RawTensor, dim, start, size int) *RawTensor // inverse of Slice, zero filled

	// Reductions.
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Argmax(x *RawTensor) *RawTensor // along the last axis, int32 result

	// Indexing.
	Gather(weight, indices *RawTensor) *RawTensor                 // rows of a 2-D weight
	ScatterAddRows(rows int, indices, grad *RawTensor) *RawTensor // adjoint of Gather
	Pick(x, indices *RawTensor) *RawTensor                        // x[..., idx[...]]
	PickGrad(grad, indices *RawTensor, n int) *RawTensor          // adjoint of Pick
	OneHot(indices *RawTensor, n int) *RawTensor

	// Cast converts to another data type.
	Cast(x *RawTensor, dtype DataType) *RawTensor

	Name() string
}
