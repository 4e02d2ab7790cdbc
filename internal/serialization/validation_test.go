package serialization

import (
	"errors"
	"strings"
	"testing"
)

// TestValidateTensorOffsets checks bounds and overlap detection.
func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name     string
		tensors  []TensorMeta
		dataSize int64
		wantType string
	}{
		{
			name: "contiguous",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 100, Size: 200},
			},
			dataSize: 300,
		},
		{
			name: "unsorted contiguous",
			tensors: []TensorMeta{
				{Name: "b", Offset: 100, Size: 100},
				{Name: "a", Offset: 0, Size: 100},
			},
			dataSize: 200,
		},
		{
			name: "overlap by one byte",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 99, Size: 100},
			},
			dataSize: 200,
			wantType: "offset_overlap",
		},
		{
			name:     "beyond data section",
			tensors:  []TensorMeta{{Name: "a", Offset: 50, Size: 100}},
			dataSize: 120,
			wantType: "out_of_bounds",
		},
		{
			name:     "negative offset",
			tensors:  []TensorMeta{{Name: "a", Offset: -1, Size: 10}},
			dataSize: 120,
			wantType: "out_of_bounds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.dataSize)
			if tt.wantType == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %T (%v)", err, err)
			}
			if ve.Type != tt.wantType {
				t.Errorf("type = %s, want %s", ve.Type, tt.wantType)
			}
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	valid := []string{"w", "enc.rnn.w", "layer_0.b", "emb-W"}
	for _, name := range valid {
		if err := ValidateTensorName(name); err != nil {
			t.Errorf("ValidateTensorName(%q) = %v", name, err)
		}
	}

	invalid := []string{"", "../etc/passwd", "a/b", `a\b`, "a\x00b", strings.Repeat("x", MaxTensorNameLen+1)}
	for _, name := range invalid {
		err := ValidateTensorName(name)
		if !errors.Is(err, ErrInvalidTensorName) {
			t.Errorf("ValidateTensorName(%q) = %v, want ErrInvalidTensorName", name, err)
		}
	}
}

func TestValidateHeader_Levels(t *testing.T) {
	h := &Header{Tensors: []TensorMeta{
		{Name: "a", Offset: 0, Size: 100},
		{Name: "b", Offset: 50, Size: 100},
	}}

	if err := ValidateHeader(h, 150, ValidationStrict); !errors.Is(err, ErrOffsetOverlap) {
		t.Errorf("strict: got %v, want ErrOffsetOverlap", err)
	}
	if err := ValidateHeader(h, 150, ValidationNormal); err != nil {
		t.Errorf("normal: unexpected error %v", err)
	}

	h.Tensors[1].Name = "a"
	if err := ValidateHeader(h, 150, ValidationNormal); !errors.Is(err, ErrDuplicateTensor) {
		t.Errorf("normal: got %v, want ErrDuplicateTensor", err)
	}
	if err := ValidateHeader(h, 150, ValidationNone); err != nil {
		t.Errorf("none: unexpected error %v", err)
	}
}
