package serialization

import (
	"crypto/sha256"

	"github.com/born-ml/teafacto/internal/tensor"
)

// ChecksumTensors returns the SHA-256 of the concatenated tensor data, which
// is what the fixed header stores.
func ChecksumTensors(tensors []Tensor) [ChecksumSize]byte {
	h := sha256.New()
	for _, t := range tensors {
		h.Write(t.Value.Data())
	}
	var sum [ChecksumSize]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// ValidateChecksum compares the checksum of data with stored.
func ValidateChecksum(data []byte, stored [ChecksumSize]byte) error {
	if sha256.Sum256(data) != stored {
		return ErrChecksumMismatch
	}
	return nil
}

func tensorBytes(r *tensor.RawTensor) int64 {
	return int64(r.ByteSize())
}
