package node

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanlink/lanlink/protocol"
	"github.com/lanlink/lanlink/transport"
)

func startTestNode(t *testing.T, name string) *Node {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	n := New(Config{
		Name: name,
		Addr: "127.0.0.1:0",
		Dir:  t.TempDir(),
	}, zerolog.Nop())

	require.NoError(t, n.Start(ctx))

	return n
}

func TestSendTextBetweenNodes(t *testing.T) {
	alice := startTestNode(t, "alice")
	bob := startTestNode(t, "bob")

	alice.Registry().Add(bob.Self)

	require.NoError(t, alice.SendText(bob.Self.ID, "hi bob"))
}

func TestSendTextUnknownPeer(t *testing.T) {
	alice := startTestNode(t, "alice")

	err := alice.SendText(uuid.New(), "anyone?")
	assert.ErrorIs(t, err, transport.ErrPeerNotFound)
}

func TestSendFileEndToEnd(t *testing.T) {
	alice := startTestNode(t, "alice")
	bob := startTestNode(t, "bob")

	alice.Registry().Add(bob.Self)

	content := make([]byte, 150000)
	_, err := rand.Read(content)
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(src, content, 0644))

	require.NoError(t, alice.SendFile(bob.Self.ID, src))

	dst := filepath.Join(bob.cfg.Dir, "payload.bin")
	require.Eventually(t, func() bool {
		got, err := os.ReadFile(dst)
		return err == nil && bytes.Equal(got, content)
	}, 5*time.Second, 50*time.Millisecond, "file never arrived intact")
}

func TestSendEmptyFileEndToEnd(t *testing.T) {
	alice := startTestNode(t, "alice")
	bob := startTestNode(t, "bob")

	alice.Registry().Add(bob.Self)

	src := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(src, nil, 0644))

	require.NoError(t, alice.SendFile(bob.Self.ID, src))

	dst := filepath.Join(bob.cfg.Dir, "empty.bin")
	require.Eventually(t, func() bool {
		info, err := os.Stat(dst)
		return err == nil && info.Size() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestChunkBeforeOfferIsReplayed(t *testing.T) {
	bob := startTestNode(t, "bob")
	id := uuid.New()

	// One frame per connection means a chunk can be dispatched ahead of
	// its offer; it must be parked and applied once the offer lands.
	bob.handleMessage(protocol.NewFileChunk(id, 0, []byte("hello")))
	bob.handleMessage(protocol.NewFileOffer(id, "x.bin", 5))
	bob.handleMessage(protocol.NewFileComplete(id))

	content, err := os.ReadFile(filepath.Join(bob.cfg.Dir, "x.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	_, known := bob.engine.Path(id)
	assert.False(t, known, "transfer not finalized")
	assert.Empty(t, bob.pending, "parked frames not drained")
}

func TestCompleteBeforeOfferForEmptyFile(t *testing.T) {
	bob := startTestNode(t, "bob")
	id := uuid.New()

	// The completion is ignored; the offer alone finalizes an empty file.
	bob.handleMessage(protocol.NewFileComplete(id))
	bob.handleMessage(protocol.NewFileOffer(id, "empty.bin", 0))

	info, err := os.Stat(filepath.Join(bob.cfg.Dir, "empty.bin"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	_, known := bob.engine.Path(id)
	assert.False(t, known, "transfer not finalized")
	assert.Empty(t, bob.pending)
}

func TestParkedFramesOutOfOrder(t *testing.T) {
	bob := startTestNode(t, "bob")
	id := uuid.New()

	bob.handleMessage(protocol.NewFileChunk(id, 5, []byte("WORLD")))
	bob.handleMessage(protocol.NewFileChunk(id, 0, []byte("HELLO")))
	bob.handleMessage(protocol.NewFileOffer(id, "x.bin", 10))

	content, err := os.ReadFile(filepath.Join(bob.cfg.Dir, "x.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLOWORLD"), content)

	_, known := bob.engine.Path(id)
	assert.False(t, known)
}

func TestSendFileUnknownPeer(t *testing.T) {
	alice := startTestNode(t, "alice")

	src := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0644))

	err := alice.SendFile(uuid.New(), src)
	assert.ErrorIs(t, err, transport.ErrPeerNotFound)
}

func TestSendFileMissingPath(t *testing.T) {
	alice := startTestNode(t, "alice")
	bob := startTestNode(t, "bob")

	alice.Registry().Add(bob.Self)

	err := alice.SendFile(bob.Self.ID, filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}
