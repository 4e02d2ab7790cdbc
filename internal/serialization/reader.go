package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/teafacto/internal/tensor"
)

// ReaderOptions configures Read.
type ReaderOptions struct {
	SkipChecksumValidation bool
	ValidationLevel        ValidationLevel
}

// File is a decoded container.
type File struct {
	Header  Header
	Flags   uint32
	tensors map[string]*tensor.RawTensor
}

// Read decodes a container with strict validation.
func Read(r io.Reader) (*File, error) {
	return ReadWithOptions(r, ReaderOptions{ValidationLevel: ValidationStrict})
}

// ReadWithOptions decodes a container.
func ReadWithOptions(r io.Reader, opts ReaderOptions) (*File, error) {
	var fixed [FixedHeaderSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, v, FormatVersion)
	}
	f := &File{Flags: binary.LittleEndian.Uint32(fixed[8:12])}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [ChecksumSize]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerJSON, &f.Header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	if _, err := io.CopyN(io.Discard, r, padding(FixedHeaderSize+int64(headerSize))); err != nil {
		return nil, fmt.Errorf("failed to skip padding: %w", err)
	}

	var buf bytes.Buffer
	//nolint:gosec // G115: compared against the bytes actually read
	n, err := io.Copy(&buf, io.LimitReader(r, int64(dataSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	//nolint:gosec // G115: see above
	if uint64(n) != dataSize {
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrTruncated, n, dataSize)
	}
	data := buf.Bytes()

	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(data, stored); err != nil {
			return nil, err
		}
	}
	if err := ValidateHeader(&f.Header, n, opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	f.tensors = make(map[string]*tensor.RawTensor, len(f.Header.Tensors))
	for _, meta := range f.Header.Tensors {
		raw, err := decodeTensor(meta, data)
		if err != nil {
			return nil, err
		}
		f.tensors[meta.Name] = raw
	}
	return f, nil
}

func decodeTensor(meta TensorMeta, data []byte) (*tensor.RawTensor, error) {
	dt, err := tensor.ParseDataType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("%w: tensor %q: %s", ErrUnknownDType, meta.Name, meta.DType)
	}
	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dt)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", meta.Name, err)
	}
	if int64(raw.ByteSize()) != meta.Size {
		return nil, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  meta.Name,
			Details: fmt.Sprintf("%s%v needs %d bytes, header says %d", dt, meta.Shape, raw.ByteSize(), meta.Size),
			Err:     ErrOutOfBounds,
		}
	}
	if meta.Offset < 0 || meta.Offset+meta.Size > int64(len(data)) {
		return nil, &ValidationError{Type: "out_of_bounds", Tensor: meta.Name, Details: "outside data section", Err: ErrOutOfBounds}
	}
	copy(raw.Data(), data[meta.Offset:meta.Offset+meta.Size])
	return raw, nil
}

// ReadFile decodes the container stored at path.
func ReadFile(path string) (*File, error) {
	//nolint:gosec // G304: path is chosen by the caller
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer fh.Close()
	return Read(fh)
}

// Tensor returns the tensor stored under name.
func (f *File) Tensor(name string) (*tensor.RawTensor, bool) {
	t, ok := f.tensors[name]
	return t, ok
}

// Names lists the tensor names in storage order.
func (f *File) Names() []string {
	names := make([]string, len(f.Header.Tensors))
	for i, t := range f.Header.Tensors {
		names[i] = t.Name
	}
	return names
}

// StateDict returns every tensor keyed by name.
func (f *File) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(f.tensors))
	for k, v := range f.tensors {
		out[k] = v
	}
	return out
}
