package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	m := NewFileOffer(uuid.New(), "backup.tar.gz", 1<<30)

	buf := &bytes.Buffer{}
	require.NoError(t, WriteFrame(buf, m))

	decoded, err := ReadFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
	assert.Zero(t, buf.Len())
}

func TestReadFrameShortPayload(t *testing.T) {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, uint32(100))
	buf.Write([]byte{0x01, 0x02, 0x03})

	_, err := ReadFrame(buf)
	assert.Error(t, err)
}

func TestReadFrameShortLength(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x01}))
	assert.Error(t, err)
}

func TestReadFrameTooLarge(t *testing.T) {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, MaxFrameSize+1)

	_, err := ReadFrame(buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, uint32(0))

	_, err := ReadFrame(buf)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}
