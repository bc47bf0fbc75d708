package services

import (
	"errors"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// handle applies one inbound frame of the real-time channel. Frames are
// applied in arrival order; duplicates and late events are no-ops.
func (v *Conversation) handle(cmd models.UnifiedCommand) {
	if cmd.Action == "error" {
		log.Warn().Str("scope", v.scope.String()).Str("message", cmd.Message).Msg("Real-time channel reported an error.")
		return
	}

	event, err := models.DecodeEvent(cmd)
	if errors.Is(err, models.ErrUnknownEvent) {
		log.Debug().Str("action", cmd.Action).Msg("Unhandled event, skipped...")
		return
	} else if err != nil {
		log.Warn().Err(err).Str("action", cmd.Action).Msg("An error occurred when decoding event...")
		return
	}
	if event.ChannelScope() != v.scope {
		return
	}

	v.dispatch(event)
}

func (v *Conversation) dispatch(event models.Event) {
	switch event := event.(type) {
	case *models.MessageNewEvent:
		if len(event.Uuid) > 0 && v.store.Has(event.Uuid) {
			v.delivery.Confirm(event.Uuid, event.Message)
			return
		}
		v.ingest(event.Message)
	case *models.MessageEditEvent:
		v.ingest(event.Message)
	case *models.MessageConfirmEvent:
		v.delivery.Confirm(event.Uuid, event.Message)
	case *models.MessageRejectedEvent:
		v.delivery.Reject(event.Uuid, event.Code, event.Reason)
	case *models.MessageStatusEvent:
		id := v.resolver.Canonical(event.MessageID)
		if !v.tracker.Report(id, event.Status) && !v.store.Has(id) {
			log.Debug().Str("id", id).Msg("Status of unknown message, skipped...")
		}
	case *models.MessageReceiptEvent:
		id := v.resolver.Canonical(event.MessageID)
		switch event.Kind {
		case models.ReceiptKindDelivered:
			v.tracker.Deliver(id)
		case models.ReceiptKindRead:
			if event.Receipt == nil || len(event.Receipt.ReaderID) == 0 {
				v.tracker.Apply(id, StatusEvent{Kind: StatusEventRead})
				return
			}
			v.tracker.AddReceipt(id, *event.Receipt)
		}
	case *models.MessageDeleteEvent:
		ids := make([]string, 0, len(event.IDs))
		for _, raw := range event.IDs {
			id := v.resolver.Canonical(raw)
			ids = append(ids, id)
			// Transfers started before reconciliation stay keyed by the provisional id.
			for _, key := range lo.Uniq([]string{raw, id}) {
				v.chunks.Abandon(key)
				delete(v.pendingPayloads, key)
			}
		}
		v.deletion.Apply(ids)
	case *models.ChunkStartEvent:
		if payload, ok := v.chunks.OnStart(v.resolver.Canonical(event.MessageID), event.Total, event.Mime); ok {
			v.completeTransfer(payload)
		}
	case *models.ChunkEvent:
		if payload, ok := v.chunks.OnChunk(v.resolver.Canonical(event.MessageID), event.Index, event.Data, event.Last); ok {
			v.completeTransfer(payload)
		}
	case *models.TypingEvent:
		v.typing.Update(event.UserID, event.Name, event.Typing)
	case *models.MembersEvent:
		if len(event.Members) > 0 {
			v.tracker.SetMembers(event.Members)
		}
		if len(event.Left) > 0 {
			v.tracker.RemoveMembers(event.Left)
			v.typing.Forget(event.Left)
		}
	}
}
