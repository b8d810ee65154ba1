package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// BlueprintReader streams instructions from a blueprint.
type BlueprintReader struct {
	r      *bufio.Reader
	closer io.Closer
	count  int
}

// NewBlueprintReader validates the magic header of src and returns a reader
// positioned on the first instruction. If src implements io.Closer it is
// closed by Close.
func NewBlueprintReader(src io.Reader) (*BlueprintReader, error) {
	br := &BlueprintReader{r: bufio.NewReader(src)}
	if c, ok := src.(io.Closer); ok {
		br.closer = c
	}

	var magic [4]byte
	if _, err := io.ReadFull(br.r, magic[:]); err != nil {
		br.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header", ErrBadMagic)
		}
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != Magic {
		br.Close()
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, magic[:])
	}
	return br, nil
}

// Next returns the next instruction.
// Returns io.EOF at a clean end of the blueprint, ErrUnknownOpcode for an
// opcode outside the instruction set and ErrTruncatedInstruction when the
// stream ends inside a payload.
func (br *BlueprintReader) Next() (Instruction, error) {
	op, err := br.r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}

	n, err := PayloadSize(Opcode(op))
	if err != nil {
		return Instruction{}, fmt.Errorf("instruction %d: %w", br.count+1, err)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(br.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Instruction{}, fmt.Errorf("instruction %d (%s): %w", br.count+1, Opcode(op), ErrTruncatedInstruction)
		}
		return Instruction{}, err
	}

	br.count++
	return Instruction{Op: Opcode(op), Payload: payload}, nil
}

// Count returns the number of instructions read so far.
func (br *BlueprintReader) Count() int {
	return br.count
}

// Close releases the underlying source.
func (br *BlueprintReader) Close() error {
	if br.closer == nil {
		return nil
	}
	c := br.closer
	br.closer = nil
	return c.Close()
}

// BlueprintWriter authors blueprints.
type BlueprintWriter struct {
	w     io.Writer
	magic bool
}

// NewBlueprintWriter returns a writer that emits the magic header before the
// first instruction.
func NewBlueprintWriter(w io.Writer) *BlueprintWriter {
	return &BlueprintWriter{w: w}
}

// Write appends instructions to the blueprint.
func (bw *BlueprintWriter) Write(ins ...Instruction) error {
	if !bw.magic {
		if _, err := bw.w.Write(Magic[:]); err != nil {
			return err
		}
		bw.magic = true
	}
	for _, in := range ins {
		if _, err := bw.w.Write(in.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes the header if no instruction has been written yet, so an
// empty blueprint is still valid.
func (bw *BlueprintWriter) Flush() error {
	return bw.Write()
}
