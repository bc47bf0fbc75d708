package services

import (
	"bytes"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ChunkReassembler rebuilds attachments streamed as indexed fragments. Each
// transfer completes at most once; anything inconsistent is dropped without
// surfacing a partial attachment.
type ChunkReassembler struct {
	transfers        map[string]*models.ChunkTransfer
	completed        map[string]struct{}
	placeholderTotal int
	now              func() time.Time
}

func NewChunkReassembler(placeholderTotal int) *ChunkReassembler {
	return &ChunkReassembler{
		transfers:        make(map[string]*models.ChunkTransfer),
		completed:        make(map[string]struct{}),
		placeholderTotal: max(placeholderTotal, 1),
		now:              time.Now,
	}
}

func (v *ChunkReassembler) ensure(messageID string) *models.ChunkTransfer {
	if transfer, ok := v.transfers[messageID]; ok {
		return transfer
	}
	transfer := &models.ChunkTransfer{
		MessageID:   messageID,
		TotalChunks: v.placeholderTotal,
		Chunks:      make(map[int][]byte),
		CreatedAt:   v.now(),
	}
	transfer.UpdatedAt = transfer.CreatedAt
	v.transfers[messageID] = transfer
	return transfer
}

// OnStart announces a transfer. When fragments already arrived the announced
// total replaces the placeholder, which may complete the transfer.
func (v *ChunkReassembler) OnStart(messageID string, total int, mime string) (*models.AttachmentPayload, bool) {
	if _, ok := v.completed[messageID]; ok || total <= 0 {
		return nil, false
	}

	transfer := v.ensure(messageID)
	if len(mime) > 0 {
		transfer.Mime = mime
	}
	if highestChunk(transfer) >= total || (transfer.LastSeen && transfer.LastIndex != total-1) {
		log.Debug().
			Str("id", messageID).
			Int("total", total).
			Int("received", transfer.ReceivedCount).
			Msg("Chunk transfer disagrees with its start signal, discarded...")
		v.Abandon(messageID)
		return nil, false
	}
	transfer.TotalChunks = total
	transfer.TotalKnown = true
	transfer.UpdatedAt = v.now()

	return v.tryComplete(transfer)
}

// OnChunk stores one fragment and returns the attachment once the transfer
// is complete.
func (v *ChunkReassembler) OnChunk(messageID string, index int, data []byte, isLast bool) (*models.AttachmentPayload, bool) {
	if _, ok := v.completed[messageID]; ok {
		log.Debug().Str("id", messageID).Int("index", index).Msg("Chunk arrived after transfer completed, skipped...")
		return nil, false
	}
	if index < 0 {
		return nil, false
	}

	transfer := v.ensure(messageID)
	transfer.UpdatedAt = v.now()

	if transfer.TotalKnown && index >= transfer.TotalChunks {
		log.Debug().Str("id", messageID).Int("index", index).Int("total", transfer.TotalChunks).
			Msg("Chunk index out of range, skipped...")
		return nil, false
	}
	if transfer.LastSeen && (index > transfer.LastIndex || (isLast && index != transfer.LastIndex)) {
		log.Debug().Str("id", messageID).Int("index", index).Int("last", transfer.LastIndex).
			Msg("Chunk beyond the last fragment, skipped...")
		return nil, false
	}
	if isLast {
		if transfer.TotalKnown && index != transfer.TotalChunks-1 {
			log.Debug().Str("id", messageID).Int("index", index).Int("total", transfer.TotalChunks).
				Msg("Last chunk flag does not match the announced total, skipped...")
			return nil, false
		}
		if !transfer.TotalKnown && highestChunk(transfer) > index {
			log.Debug().Str("id", messageID).Int("index", index).Msg("Last chunk flag precedes received chunks, skipped...")
			return nil, false
		}
		transfer.LastSeen = true
		transfer.LastIndex = index
	}

	if _, ok := transfer.Chunks[index]; !ok {
		transfer.Chunks[index] = append([]byte(nil), data...)
		transfer.ReceivedCount++
	}

	if !transfer.TotalKnown {
		if transfer.LastSeen {
			transfer.TotalChunks = transfer.LastIndex + 1
		} else {
			transfer.TotalChunks = max(transfer.TotalChunks, index+1)
		}
	}

	return v.tryComplete(transfer)
}

func (v *ChunkReassembler) tryComplete(transfer *models.ChunkTransfer) (*models.AttachmentPayload, bool) {
	if transfer.Completed || !transfer.LastSeen || transfer.ReceivedCount != transfer.TotalChunks {
		return nil, false
	}

	var buf bytes.Buffer
	for idx := 0; idx < transfer.TotalChunks; idx++ {
		chunk, ok := transfer.Chunks[idx]
		if !ok {
			return nil, false
		}
		buf.Write(chunk)
	}

	transfer.Completed = true
	delete(v.transfers, transfer.MessageID)
	v.completed[transfer.MessageID] = struct{}{}

	data := buf.Bytes()
	mime := transfer.Mime
	if len(mime) == 0 || mime == "application/octet-stream" {
		mime = mimetype.Detect(data).String()
	}

	return &models.AttachmentPayload{
		MessageID: transfer.MessageID,
		Mime:      mime,
		Kind:      models.KindFromMime(mime),
		Data:      data,
	}, true
}

// Progress reports how many fragments of a pending transfer arrived.
func (v *ChunkReassembler) Progress(messageID string) (received int, total int, ok bool) {
	transfer, ok := v.transfers[messageID]
	if !ok {
		return 0, 0, false
	}
	return transfer.ReceivedCount, transfer.TotalChunks, true
}

func (v *ChunkReassembler) Pending() int {
	return len(v.transfers)
}

func (v *ChunkReassembler) Abandon(messageID string) {
	delete(v.transfers, messageID)
}

// AbandonAll discards every pending transfer and returns how many there were.
func (v *ChunkReassembler) AbandonAll() int {
	count := len(v.transfers)
	clear(v.transfers)
	return count
}

// Sweep discards transfers that have not received anything for longer than
// idle and returns their message ids.
func (v *ChunkReassembler) Sweep(idle time.Duration) []string {
	deadline := v.now().Add(-idle)
	stalled := lo.Filter(lo.Keys(v.transfers), func(item string, _ int) bool {
		return v.transfers[item].UpdatedAt.Before(deadline)
	})
	for _, id := range stalled {
		v.Abandon(id)
	}
	return stalled
}

func highestChunk(transfer *models.ChunkTransfer) int {
	if len(transfer.Chunks) == 0 {
		return -1
	}
	return lo.Max(lo.Keys(transfer.Chunks))
}
