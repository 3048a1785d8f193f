package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize caps the declared payload length of a frame. The largest
// legal message is a chunk plus its fixed fields, so 1 MiB leaves headroom.
const MaxFrameSize uint32 = 1 << 20

var (
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")
	ErrEmptyFrame    = errors.New("protocol: zero-length frame")
)

// WriteFrame encodes m and writes it as [u32 BE length][payload], flushing
// before it returns. The connection carries exactly one frame and is closed
// by the caller afterwards.
func WriteFrame(w io.Writer, m *Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.BigEndian, uint32(len(payload))); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}

	if _, err := bw.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}

	return bw.Flush()
}

// ReadFrame reads exactly one frame and decodes it. A stream shorter than
// its declared length surfaces as an error, never a partial message.
func ReadFrame(r io.Reader) (*Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	if length == 0 {
		return nil, ErrEmptyFrame
	}

	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	return Decode(payload)
}
