// Package serialization implements the binary container used to freeze
// blocks and to checkpoint training.
//
// A container is a fixed header followed by a JSON header and the raw tensor
// bytes:
//
//	[0x00: 4 bytes  magic "TFCT"]
//	[0x04: 4 bytes  version (uint32 LE)]
//	[0x08: 4 bytes  flags (uint32 LE)]
//	[0x0C: 4 bytes  reserved]
//	[0x10: 8 bytes  JSON header size (uint64 LE)]
//	[0x18: 8 bytes  tensor data size (uint64 LE)]
//	[0x20: 32 bytes SHA-256 of the tensor data]
//	[0x40: JSON header]
//	[padding to a 64-byte boundary]
//	[tensor data, in header order]
//
// The JSON header names the block kind, carries its architecture config, and
// lists every tensor as name, dtype, shape, offset and size. No executable
// code is stored.
//
// Example:
//
//	err := serialization.WriteFile("model.tfct", serialization.Header{Kind: "seqencdec", Config: cfg}, tensors)
//
//	f, err := serialization.ReadFile("model.tfct")
//	w, ok := f.Tensor("encdec.enc.emb.W")
package serialization
