// Package transfer tracks in-flight file transfers on both ends of a link.
//
// Outbound transfers are a promise to serve chunks from a path already
// offered; inbound transfers hold an open destination file and the running
// byte count. Chunks are written at the offset they carry, so delivery
// order does not matter as long as chunks are disjoint; completion is
// reached when the received byte count meets the declared size.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChunkSize is the fixed read size served per chunk request.
const ChunkSize = 64 * 1024

var (
	ErrTransferNotFound = errors.New("transfer: unknown transfer id")
	ErrChunkOverflow    = errors.New("transfer: chunk exceeds declared size")
	ErrIsDirectory      = errors.New("transfer: path is a directory")
)

type Engine struct {
	dir string
	log zerolog.Logger

	mu       sync.RWMutex
	outbound map[uuid.UUID]string
	inbound  map[uuid.UUID]*inboundTransfer
}

type inboundTransfer struct {
	path     string
	file     *os.File
	size     uint64
	received uint64
}

// NewEngine returns an engine writing received files under dir. The
// directory is created lazily on the first receive.
func NewEngine(dir string, log zerolog.Logger) *Engine {
	return &Engine{
		dir:      dir,
		log:      log,
		outbound: make(map[uuid.UUID]string),
		inbound:  make(map[uuid.UUID]*inboundTransfer),
	}
}

// PrepareSend registers path under a fresh transfer id and returns the id,
// the file's base name and its size. No content is read yet.
func (e *Engine) PrepareSend(path string) (uuid.UUID, string, uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return uuid.Nil, "", 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.IsDir() {
		return uuid.Nil, "", 0, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	id := uuid.New()

	e.mu.Lock()
	e.outbound[id] = path
	e.mu.Unlock()

	e.log.Debug().
		Str("id", id.String()).
		Str("path", path).
		Uint64("size", uint64(info.Size())).
		Msg("outbound transfer prepared")

	return id, filepath.Base(path), uint64(info.Size()), nil
}

// ReadChunk serves up to ChunkSize bytes of the tracked file starting at
// offset. It returns io.EOF when no bytes remain at offset. The offset is
// caller-supplied on every call, so reads may resume from any position.
func (e *Engine) ReadChunk(id uuid.UUID, offset uint64) ([]byte, error) {
	e.mu.RLock()
	path, ok := e.outbound[id]
	e.mu.RUnlock()

	if !ok {
		return nil, ErrTransferNotFound
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	buf := make([]byte, ChunkSize)
	n, err := file.ReadAt(buf, int64(offset))
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read %s at %d: %w", path, offset, err)
	}

	return buf[:n], nil
}

// PrepareReceive creates the destination file for an offered transfer and
// registers it. The offered name is reduced to its base name so a remote
// peer cannot place files outside the downloads directory. Re-preparing an
// id closes the previous handle before replacing the entry.
func (e *Engine) PrepareReceive(id uuid.UUID, name string, size uint64) (string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", e.dir, err)
	}

	path := filepath.Join(e.dir, filepath.Base(name))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	e.mu.Lock()
	if prev, ok := e.inbound[id]; ok {
		prev.file.Close()
	}
	e.inbound[id] = &inboundTransfer{
		path: path,
		file: file,
		size: size,
	}
	e.mu.Unlock()

	e.log.Debug().
		Str("id", id.String()).
		Str("path", path).
		Uint64("size", size).
		Msg("inbound transfer prepared")

	return path, nil
}

// ApplyChunk writes data at the offset it carries and reports whether the
// transfer is now complete. Chunks for one transfer must be disjoint but
// may arrive in any order; a chunk reaching past the declared size is
// rejected, so received never exceeds size.
func (e *Engine) ApplyChunk(id uuid.UUID, offset uint64, data []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in, ok := e.inbound[id]
	if !ok {
		return false, ErrTransferNotFound
	}

	if offset+uint64(len(data)) > in.size {
		return false, fmt.Errorf("%w: %d past declared size %d", ErrChunkOverflow, offset+uint64(len(data)), in.size)
	}

	if _, err := in.file.WriteAt(data, int64(offset)); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", in.path, err)
	}

	in.received += uint64(len(data))

	return in.received >= in.size, nil
}

// Received reports the byte count applied so far for an inbound transfer.
func (e *Engine) Received(id uuid.UUID) (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	in, ok := e.inbound[id]
	if !ok {
		return 0, false
	}

	return in.received, true
}

// IsComplete reports whether an inbound transfer has received its declared
// size. Unknown ids report false.
func (e *Engine) IsComplete(id uuid.UUID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	in, ok := e.inbound[id]
	return ok && in.received >= in.size
}

// Path returns the destination path of an inbound transfer.
func (e *Engine) Path(id uuid.UUID) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	in, ok := e.inbound[id]
	if !ok {
		return "", false
	}

	return in.path, true
}

// Finalize closes the inbound handle if one exists and drops id from both
// tracking tables. Finalizing an absent id is a no-op.
func (e *Engine) Finalize(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if in, ok := e.inbound[id]; ok {
		in.file.Close()
		delete(e.inbound, id)
	}

	delete(e.outbound, id)
}
