package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/born-ml/teafacto/internal/tensor"
)

// Tensor is a named tensor stored in a container.
type Tensor struct {
	Name  string
	Value *tensor.RawTensor
}

// Write encodes header and tensors to w. Tensors are stored in the given
// order; header.Tensors is filled in by Write.
func Write(w io.Writer, header Header, tensors []Tensor) error {
	header.FormatVersion = FormatVersion
	if header.Version == "" {
		header.Version = Version
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}

	header.Tensors = make([]TensorMeta, 0, len(tensors))
	seen := make(map[string]bool, len(tensors))
	var offset int64
	for _, t := range tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateTensor, t.Name)
		}
		seen[t.Name] = true
		size := tensorBytes(t.Value)
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   t.Name,
			DType:  t.Value.DType().String(),
			Shape:  []int(t.Value.Shape().Clone()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	var flags uint32
	if len(header.Config) > 0 {
		flags |= FlagHasConfig
	}
	if header.Checkpoint != nil {
		flags |= FlagHasOptimizer
	}
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}

	var fixed [FixedHeaderSize]byte
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	//nolint:gosec // G115: offset is a sum of tensor sizes
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(offset))
	sum := ChecksumTensors(tensors)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], sum[:])

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(fixed[:]); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if pad := padding(FixedHeaderSize + int64(len(headerJSON))); pad > 0 {
		if _, err := bw.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	for _, t := range tensors {
		if _, err := bw.Write(t.Value.Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", t.Name, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes a container to path.
func WriteFile(path string, header Header, tensors []Tensor) (err error) {
	//nolint:gosec // G304: path is chosen by the caller
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()
	return Write(f, header, tensors)
}
