package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Acknowledgment bytes.
const (
	AckSuccess byte = 1
	AckFailure byte = 255
)

// Handshake bytes.
const (
	HandshakeInvalid   byte = 0
	HandshakePrinthead byte = 1

	// handshakeMaterialBase is subtracted from a material handshake byte to
	// obtain the container id.
	handshakeMaterialBase byte = 2
)

// Magic is the four byte header every blueprint starts with.
var Magic = [4]byte{'R', 'B', 'A', 'M'}

// Codec errors.
var (
	// ErrInvalidHandshake indicates a handshake byte of zero.
	ErrInvalidHandshake = errors.New("wire: invalid handshake")

	// ErrUnknownOpcode indicates an opcode outside the instruction set.
	ErrUnknownOpcode = errors.New("wire: unknown opcode")

	// ErrTruncatedInstruction indicates a payload shorter than its opcode requires.
	ErrTruncatedInstruction = errors.New("wire: truncated instruction")

	// ErrBadMagic indicates a blueprint that does not start with Magic.
	ErrBadMagic = errors.New("wire: bad blueprint magic")
)

// Role is the kind of device announced during the handshake.
type Role uint8

const (
	RolePrinthead Role = iota + 1
	RoleMaterial
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RolePrinthead:
		return "printhead"
	case RoleMaterial:
		return "material"
	default:
		return "unknown"
	}
}

// Handshake is a decoded handshake byte.
type Handshake struct {
	Role Role

	// MaterialID is the container id; only meaningful for RoleMaterial.
	MaterialID int
}

// DecodeHandshake interprets the first byte sent by a device.
func DecodeHandshake(b byte) (Handshake, error) {
	switch {
	case b == HandshakeInvalid:
		return Handshake{}, ErrInvalidHandshake
	case b == HandshakePrinthead:
		return Handshake{Role: RolePrinthead, MaterialID: -1}, nil
	default:
		return Handshake{Role: RoleMaterial, MaterialID: int(b - handshakeMaterialBase)}, nil
	}
}

// EncodeHandshake returns the byte a device sends to announce itself.
func EncodeHandshake(h Handshake) (byte, error) {
	switch h.Role {
	case RolePrinthead:
		return HandshakePrinthead, nil
	case RoleMaterial:
		if h.MaterialID < 0 || h.MaterialID > 255-int(handshakeMaterialBase) {
			return 0, fmt.Errorf("material id %d out of range: %w", h.MaterialID, ErrInvalidHandshake)
		}
		return byte(h.MaterialID) + handshakeMaterialBase, nil
	default:
		return 0, ErrInvalidHandshake
	}
}

// Opcode identifies an instruction.
type Opcode byte

const (
	OpSetLevel Opcode = 1
	OpDot      Opcode = 2
	OpLine     Opcode = 3
)

// String returns the instruction name.
func (o Opcode) String() string {
	switch o {
	case OpSetLevel:
		return "SetLevel"
	case OpDot:
		return "Dot"
	case OpLine:
		return "Line"
	default:
		return fmt.Sprintf("Opcode(%d)", byte(o))
	}
}

// PayloadSize returns the number of payload bytes following the opcode.
func PayloadSize(op Opcode) (int, error) {
	switch op {
	case OpSetLevel:
		return 5, nil
	case OpDot:
		return 8, nil
	case OpLine:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: %#x", ErrUnknownOpcode, byte(op))
	}
}

// MaterialUnits returns the material consumed by executing op.
func MaterialUnits(op Opcode) uint8 {
	switch op {
	case OpDot:
		return 1
	case OpLine:
		return 2
	default:
		return 0
	}
}

// Instruction is a single opcode with its raw payload.
// Payload is forwarded to devices verbatim.
type Instruction struct {
	Op      Opcode
	Payload []byte
}

// Bytes returns opcode followed by payload.
func (in Instruction) Bytes() []byte {
	b := make([]byte, 0, 1+len(in.Payload))
	b = append(b, byte(in.Op))
	return append(b, in.Payload...)
}

// MaterialUnits returns the material consumed by the instruction.
func (in Instruction) MaterialUnits() uint8 {
	return MaterialUnits(in.Op)
}

// SetLevel is the decoded payload of OpSetLevel.
type SetLevel struct {
	Level      int32
	MaterialID uint8
}

// Dot is the decoded payload of OpDot.
type Dot struct {
	X, Y int32
}

// Line is the decoded payload of OpLine.
type Line struct {
	X0, Y0, X1, Y1 int32
}

// EncodeSetLevel builds a SetLevel instruction.
func EncodeSetLevel(level int32, materialID uint8) Instruction {
	p := make([]byte, 5)
	binary.LittleEndian.PutUint32(p[0:4], uint32(level))
	p[4] = materialID
	return Instruction{Op: OpSetLevel, Payload: p}
}

// EncodeDot builds a Dot instruction.
func EncodeDot(x, y int32) Instruction {
	return Instruction{Op: OpDot, Payload: putInt32s(x, y)}
}

// EncodeLine builds a Line instruction.
func EncodeLine(x0, y0, x1, y1 int32) Instruction {
	return Instruction{Op: OpLine, Payload: putInt32s(x0, y0, x1, y1)}
}

// BenchmarkProbe is the instruction repeatedly sent in benchmark mode:
// SetLevel to level 1337 on material 0.
func BenchmarkProbe() Instruction {
	return EncodeSetLevel(1337, 0)
}

// DecodeSetLevel decodes a SetLevel payload.
func (in Instruction) DecodeSetLevel() (SetLevel, error) {
	if err := in.check(OpSetLevel); err != nil {
		return SetLevel{}, err
	}
	return SetLevel{
		Level:      int32(binary.LittleEndian.Uint32(in.Payload[0:4])),
		MaterialID: in.Payload[4],
	}, nil
}

// DecodeDot decodes a Dot payload.
func (in Instruction) DecodeDot() (Dot, error) {
	if err := in.check(OpDot); err != nil {
		return Dot{}, err
	}
	v := getInt32s(in.Payload, 2)
	return Dot{X: v[0], Y: v[1]}, nil
}

// DecodeLine decodes a Line payload.
func (in Instruction) DecodeLine() (Line, error) {
	if err := in.check(OpLine); err != nil {
		return Line{}, err
	}
	v := getInt32s(in.Payload, 4)
	return Line{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}, nil
}

// String renders the decoded instruction for logs.
func (in Instruction) String() string {
	switch in.Op {
	case OpSetLevel:
		if s, err := in.DecodeSetLevel(); err == nil {
			return fmt.Sprintf("SetLevel(level=%d, material=%d)", s.Level, s.MaterialID)
		}
	case OpDot:
		if d, err := in.DecodeDot(); err == nil {
			return fmt.Sprintf("Dot(%d, %d)", d.X, d.Y)
		}
	case OpLine:
		if l, err := in.DecodeLine(); err == nil {
			return fmt.Sprintf("Line(%d, %d -> %d, %d)", l.X0, l.Y0, l.X1, l.Y1)
		}
	}
	return fmt.Sprintf("%s[% x]", in.Op, in.Payload)
}

func (in Instruction) check(op Opcode) error {
	if in.Op != op {
		return fmt.Errorf("decode %s from %s: %w", op, in.Op, ErrUnknownOpcode)
	}
	n, _ := PayloadSize(op)
	if len(in.Payload) != n {
		return fmt.Errorf("%s payload %d bytes, want %d: %w", op, len(in.Payload), n, ErrTruncatedInstruction)
	}
	return nil
}

func putInt32s(vs ...int32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(v))
	}
	return b
}

func getInt32s(b []byte, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
