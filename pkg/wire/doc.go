// Package wire implements the byte-level protocol spoken between the panel
// and its fabrication devices, and the blueprint file format that shares the
// same instruction encoding.
//
// # Handshake
//
// The first byte a device sends identifies it:
//
//	0     invalid, the endpoint is rejected
//	1     print head
//	n>=2  material container with id n-2
//
// # Instructions
//
// An instruction is a one byte opcode followed by a fixed-size little-endian
// payload:
//
//	1 SetLevel  int32 level, uint8 material id   (0 material units)
//	2 Dot       int32 x, int32 y                 (1 material unit)
//	3 Line      int32 x0, y0, x1, y1             (2 material units)
//
// Print heads answer every instruction with a single [AckSuccess] or
// [AckFailure] byte. Material containers report [AckFailure] when empty and
// [AckSuccess] when refilled, and receive one byte holding the units consumed.
//
// # Blueprints
//
// A blueprint is the magic "RBAM" followed by instructions until end of file.
// Use [NewBlueprintReader] to stream one and [BlueprintWriter] to author one.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package wire
