package serialization

import (
	"encoding/json"
	"time"
)

// Format constants.
const (
	MagicBytes      = "TFCT"
	FormatVersion   = 1
	HeaderAlignment = 64   // tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64   // 0x40 bytes
	ChecksumSize    = 32   // SHA-256
	ChecksumOffset  = 0x20 // checksum position in the fixed header
)

// Version is recorded in every header written by this package.
const Version = "0.3.0"

// Flags stored in the fixed header.
const (
	FlagHasConfig    uint32 = 1 << 0 // architecture config present
	FlagHasOptimizer uint32 = 1 << 1 // optimizer state included (checkpoints)
	FlagHasMetadata  uint32 = 1 << 2 // custom metadata present
)

// Header is the JSON header of a container.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Version       string            `json:"version"`
	Kind          string            `json:"kind,omitempty"`   // block kind used to rebuild the architecture
	Config        json.RawMessage   `json:"config,omitempty"` // block architecture config
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Checkpoint    *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta describes the training state stored next to a frozen block.
type CheckpointMeta struct {
	Epoch           int                `json:"epoch"`
	Step            int64              `json:"step"`
	Loss            float64            `json:"loss"`
	OptimizerType   string             `json:"optimizer_type"`
	OptimizerConfig map[string]float64 `json:"optimizer_config,omitempty"`
	History         json.RawMessage    `json:"history,omitempty"`
}

// TensorMeta locates one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // bytes
}

func padding(pos int64) int64 {
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}
