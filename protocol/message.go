// Package protocol defines the lanlink wire format.
//
// A Message is one of six variants identified by a leading tag byte. All
// multi-byte fields are big-endian; uuids travel as their 16 raw bytes and
// variable-length fields carry a u32 length prefix. Exactly one encoded
// message is carried per TCP connection, wrapped in a length-prefixed frame
// (see frame.go).
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	TypeText         uint8 = 0x01
	TypeFileOffer    uint8 = 0x02
	TypeFileAccept   uint8 = 0x03
	TypeFileReject   uint8 = 0x04
	TypeFileChunk    uint8 = 0x05
	TypeFileComplete uint8 = 0x06

	MaxNameLength    uint32 = 4096
	MaxContentLength uint32 = 64 * 1024
	MaxChunkLength   uint32 = 64 * 1024
)

var (
	ErrUnknownType    = errors.New("protocol: unknown message type")
	ErrTruncated      = errors.New("protocol: truncated message")
	ErrNameTooLong    = errors.New("protocol: name exceeds maximum length")
	ErrContentTooLong = errors.New("protocol: content exceeds maximum length")
	ErrChunkTooLong   = errors.New("protocol: chunk data exceeds maximum length")
)

// Message is an immutable wire value. Only the fields belonging to the
// variant named by Type are meaningful; the rest stay zero so that
// Decode(Encode(m)) compares equal to m.
type Message struct {
	Type    uint8
	Content string    // Text
	ID      uuid.UUID // FileOffer, FileAccept, FileReject, FileChunk, FileComplete
	Name    string    // FileOffer
	Size    uint64    // FileOffer
	Offset  uint64    // FileChunk
	Data    []byte    // FileChunk
}

func NewText(content string) *Message {
	return &Message{Type: TypeText, Content: content}
}

func NewFileOffer(id uuid.UUID, name string, size uint64) *Message {
	return &Message{Type: TypeFileOffer, ID: id, Name: name, Size: size}
}

func NewFileAccept(id uuid.UUID) *Message {
	return &Message{Type: TypeFileAccept, ID: id}
}

func NewFileReject(id uuid.UUID) *Message {
	return &Message{Type: TypeFileReject, ID: id}
}

func NewFileChunk(id uuid.UUID, offset uint64, data []byte) *Message {
	return &Message{Type: TypeFileChunk, ID: id, Offset: offset, Data: data}
}

func NewFileComplete(id uuid.UUID) *Message {
	return &Message{Type: TypeFileComplete, ID: id}
}

// Encode serializes m. It fails only when a variable-length field exceeds
// its codec limit.
func (m *Message) Encode() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	buf.WriteByte(m.Type)

	switch m.Type {
	case TypeText:
		writeBytes(buf, []byte(m.Content))

	case TypeFileOffer:
		buf.Write(m.ID[:])
		binary.Write(buf, binary.BigEndian, m.Size)
		writeBytes(buf, []byte(m.Name))

	case TypeFileAccept, TypeFileReject, TypeFileComplete:
		buf.Write(m.ID[:])

	case TypeFileChunk:
		buf.Write(m.ID[:])
		binary.Write(buf, binary.BigEndian, m.Offset)
		writeBytes(buf, m.Data)

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, m.Type)
	}

	return buf.Bytes(), nil
}

// Decode parses one encoded message. Truncated or malformed input fails,
// it never yields a partially populated message.
func Decode(data []byte) (*Message, error) {
	if len(data) < 1 {
		return nil, ErrTruncated
	}

	m := &Message{Type: data[0]}
	r := bytes.NewReader(data[1:])

	var err error
	switch m.Type {
	case TypeText:
		var content []byte
		if content, err = readBytes(r, MaxContentLength, ErrContentTooLong); err == nil {
			m.Content = string(content)
		}

	case TypeFileOffer:
		if err = readUUID(r, &m.ID); err != nil {
			break
		}
		if err = binary.Read(r, binary.BigEndian, &m.Size); err != nil {
			err = ErrTruncated
			break
		}
		var name []byte
		if name, err = readBytes(r, MaxNameLength, ErrNameTooLong); err == nil {
			m.Name = string(name)
		}

	case TypeFileAccept, TypeFileReject, TypeFileComplete:
		err = readUUID(r, &m.ID)

	case TypeFileChunk:
		if err = readUUID(r, &m.ID); err != nil {
			break
		}
		if err = binary.Read(r, binary.BigEndian, &m.Offset); err != nil {
			err = ErrTruncated
			break
		}
		m.Data, err = readBytes(r, MaxChunkLength, ErrChunkTooLong)

	default:
		err = fmt.Errorf("%w: 0x%02x", ErrUnknownType, m.Type)
	}

	if err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("protocol: %d trailing bytes after message", r.Len())
	}

	return m, nil
}

func (m *Message) validate() error {
	switch {
	case uint32(len(m.Name)) > MaxNameLength:
		return ErrNameTooLong
	case uint32(len(m.Content)) > MaxContentLength:
		return ErrContentTooLong
	case uint32(len(m.Data)) > MaxChunkLength:
		return ErrChunkTooLong
	}
	return nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader, max uint32, tooLong error) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, ErrTruncated
	}

	if n > max {
		return nil, tooLong
	}

	if n == 0 {
		return nil, nil
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrTruncated
	}

	return b, nil
}

func readUUID(r *bytes.Reader, id *uuid.UUID) error {
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return ErrTruncated
	}
	return nil
}
