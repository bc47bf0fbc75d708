package services

import (
	"bytes"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func fragments(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for idx, part := range parts {
		out[idx] = []byte(part)
	}
	return out
}

// feed delivers the chunks in the given index order and returns every
// completion it saw.
func feed(reassembler *ChunkReassembler, id string, chunks [][]byte, order []int) []*models.AttachmentPayload {
	var out []*models.AttachmentPayload
	for _, idx := range order {
		if payload, ok := reassembler.OnChunk(id, idx, chunks[idx], idx == len(chunks)-1); ok {
			out = append(out, payload)
		}
	}
	return out
}

func TestChunksOrderDoesNotMatter(t *testing.T) {
	chunks := fragments("alpha-", "beta-", "gamma-", "delta-", "omega")
	want := bytes.Join(chunks, nil)

	orders := [][]int{
		{0, 1, 2, 3, 4},
		{4, 3, 2, 1, 0},
		{2, 0, 4, 1, 3},
	}
	for _, order := range orders {
		reassembler := NewChunkReassembler(1)
		_, _ = reassembler.OnStart("m_1", len(chunks), "text/plain")

		done := feed(reassembler, "m_1", chunks, order)
		require.Len(t, done, 1, "order %v", order)
		assert.Equal(t, want, done[0].Data)
		assert.Equal(t, models.MessageKindFile, done[0].Kind)
	}
}

func TestChunksWaitForGapBeforeLast(t *testing.T) {
	chunks := fragments("a", "b", "c", "d", "e")
	reassembler := NewChunkReassembler(1)

	for _, idx := range []int{0, 2, 1, 4} {
		_, ok := reassembler.OnChunk("m_1", idx, chunks[idx], idx == 4)
		assert.False(t, ok, "completed early at %d", idx)
	}
	received, total, ok := reassembler.Progress("m_1")
	require.True(t, ok)
	assert.Equal(t, 4, received)
	assert.Equal(t, 5, total)

	payload, ok := reassembler.OnChunk("m_1", 3, chunks[3], false)
	require.True(t, ok)
	assert.Equal(t, []byte("abcde"), payload.Data)
	assert.Equal(t, 0, reassembler.Pending())
}

func TestChunksBeforeStartSignal(t *testing.T) {
	chunks := fragments("x", "y", "z")
	reassembler := NewChunkReassembler(1)

	_, ok := reassembler.OnChunk("m_1", 1, chunks[1], false)
	assert.False(t, ok)
	_, ok = reassembler.OnChunk("m_1", 0, chunks[0], false)
	assert.False(t, ok)

	_, total, _ := reassembler.Progress("m_1")
	assert.Equal(t, 2, total)

	_, ok = reassembler.OnStart("m_1", 3, "")
	assert.False(t, ok)
	payload, ok := reassembler.OnChunk("m_1", 2, chunks[2], true)
	require.True(t, ok)
	assert.Equal(t, []byte("xyz"), payload.Data)
}

func TestChunksCompleteWithoutStartSignal(t *testing.T) {
	reassembler := NewChunkReassembler(1)
	_, ok := reassembler.OnChunk("m_1", 1, []byte("b"), true)
	assert.False(t, ok)
	payload, ok := reassembler.OnChunk("m_1", 0, []byte("a"), false)
	require.True(t, ok)
	assert.Equal(t, []byte("ab"), payload.Data)

	_, ok = reassembler.OnStart("m_1", 2, "image/png")
	assert.False(t, ok)
	assert.Equal(t, 0, reassembler.Pending())
}

func TestChunksStartDisagreesWithFragments(t *testing.T) {
	reassembler := NewChunkReassembler(1)
	for idx := 0; idx < 4; idx++ {
		_, _ = reassembler.OnChunk("m_1", idx, []byte{byte(idx)}, false)
	}

	_, ok := reassembler.OnStart("m_1", 2, "")
	assert.False(t, ok)
	assert.Equal(t, 0, reassembler.Pending())
}

func TestChunksDuplicatesAndCompletion(t *testing.T) {
	reassembler := NewChunkReassembler(1)
	_, _ = reassembler.OnStart("m_1", 2, "text/plain")

	_, ok := reassembler.OnChunk("m_1", 0, []byte("a"), false)
	assert.False(t, ok)
	_, ok = reassembler.OnChunk("m_1", 0, []byte("A"), false)
	assert.False(t, ok)

	payload, ok := reassembler.OnChunk("m_1", 1, []byte("b"), true)
	require.True(t, ok)
	assert.Equal(t, []byte("ab"), payload.Data)

	// Replays after completion never produce a second attachment.
	_, ok = reassembler.OnChunk("m_1", 1, []byte("b"), true)
	assert.False(t, ok)
	_, ok = reassembler.OnStart("m_1", 2, "text/plain")
	assert.False(t, ok)
}

func TestChunksRejectInconsistentFragments(t *testing.T) {
	reassembler := NewChunkReassembler(1)
	_, _ = reassembler.OnStart("m_1", 3, "")

	_, ok := reassembler.OnChunk("m_1", 5, []byte("x"), false)
	assert.False(t, ok)
	_, ok = reassembler.OnChunk("m_1", 1, []byte("x"), true)
	assert.False(t, ok)
	_, ok = reassembler.OnChunk("m_1", -1, []byte("x"), false)
	assert.False(t, ok)

	received, _, _ := reassembler.Progress("m_1")
	assert.Equal(t, 0, received)

	// A last flag behind a stored higher chunk cannot be right.
	_, _ = reassembler.OnChunk("m_2", 4, []byte("x"), false)
	_, ok = reassembler.OnChunk("m_2", 2, []byte("x"), true)
	assert.False(t, ok)
	_, total, _ := reassembler.Progress("m_2")
	assert.Equal(t, 5, total)
}

func TestChunksDetectMime(t *testing.T) {
	reassembler := NewChunkReassembler(1)
	_, _ = reassembler.OnStart("m_1", 2, "application/octet-stream")
	_, _ = reassembler.OnChunk("m_1", 0, pngHeader, false)
	payload, ok := reassembler.OnChunk("m_1", 1, make([]byte, 32), true)

	require.True(t, ok)
	assert.Equal(t, "image/png", payload.Mime)
	assert.Equal(t, models.MessageKindImage, payload.Kind)
}

func TestChunksAbandonAndSweep(t *testing.T) {
	now := epoch
	reassembler := NewChunkReassembler(1)
	reassembler.now = func() time.Time { return now }

	_, _ = reassembler.OnChunk("m_1", 0, []byte("a"), false)
	now = now.Add(time.Minute)
	_, _ = reassembler.OnChunk("m_2", 0, []byte("b"), false)
	_, _ = reassembler.OnChunk("m_3", 0, []byte("c"), false)
	reassembler.Abandon("m_3")

	now = now.Add(90 * time.Second)
	stalled := reassembler.Sweep(2 * time.Minute)
	assert.Equal(t, []string{"m_1"}, stalled)
	assert.Equal(t, 1, reassembler.Pending())

	assert.Equal(t, 1, reassembler.AbandonAll())
	assert.Equal(t, 0, reassembler.Pending())
}
