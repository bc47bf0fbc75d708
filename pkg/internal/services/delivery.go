package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type SendOutcome = uint8

const (
	SendPending = SendOutcome(iota)
	SendConfirmed
	SendRejected
	SendFailed
)

// SendTicket follows one send action until the server settles it.
type SendTicket struct {
	ProvisionalID string

	path    string
	outcome SendOutcome
	message models.Message
	err     error
	done    chan struct{}
	once    sync.Once
}

func newSendTicket(provisionalID string) *SendTicket {
	return &SendTicket{
		ProvisionalID: provisionalID,
		done:          make(chan struct{}),
	}
}

func (v *SendTicket) settle(outcome SendOutcome, message models.Message, err error) {
	v.once.Do(func() {
		v.outcome = outcome
		v.message = message
		v.err = err
		close(v.done)
	})
}

func (v *SendTicket) Done() <-chan struct{} {
	return v.done
}

// Path is the channel that carried the message to the server.
func (v *SendTicket) Path() string {
	select {
	case <-v.done:
		return v.path
	default:
		return ""
	}
}

func (v *SendTicket) Outcome() SendOutcome {
	select {
	case <-v.done:
		return v.outcome
	default:
		return SendPending
	}
}

// Wait blocks until the send settles and returns the confirmed message.
func (v *SendTicket) Wait(ctx context.Context) (models.Message, error) {
	select {
	case <-v.done:
		return v.message, v.err
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

type NoticeKind = uint8

const (
	// NoticeRejected is shown when the content policy refused a message. It
	// is informational, not an error.
	NoticeRejected = NoticeKind(iota)
	NoticeFailed
)

// Notice is a user facing message about the outcome of an action.
type Notice struct {
	Kind      NoticeKind
	MessageID string
	Text      string
	Err       error
}

// DeliveryCoordinator turns drafts into messages and gets each of them to the
// server exactly once, over the real-time channel when it can and over the
// request/response API otherwise.
type DeliveryCoordinator struct {
	account  string
	store    *TimelineStore
	resolver *ProvisionalResolver
	tracker  *StatusTracker
	blobs    *BlobStore
	realtime Realtime
	rest     RestAPI
	resolve  URLResolver
	timeout  time.Duration

	post   func(task func()) bool
	notice func(notice Notice)

	tickets map[string]*SendTicket
}

// Send inserts the optimistic message and starts delivering it. It never
// waits for the network; the ticket settles once the server answers.
func (v *DeliveryCoordinator) Send(draft models.Draft) (models.Message, *SendTicket, error) {
	if len(strings.TrimSpace(draft.Text)) == 0 && (draft.Attachment == nil || len(draft.Attachment.Data) == 0) {
		return models.Message{}, nil, ErrEmptyDraft
	}

	message := v.compose(draft)
	v.tracker.Prepare(&message)
	message, err := v.store.Upsert(message)
	if err != nil {
		return message, nil, err
	}

	ticket := newSendTicket(message.ID)
	v.tickets[message.ID] = ticket

	req := models.CreateMessageRequest{
		Uuid:       message.ID,
		Channel:    v.store.Scope(),
		Kind:       message.Kind,
		Text:       draft.Text,
		Attachment: draft.Attachment,
	}
	if message.ReplyTo != nil {
		req.ReplyTo = message.ReplyTo.ID
	}

	if draft.Attachment != nil {
		// Attachments only travel over the request/response API.
		ticket.path = SendPathUpload
		v.fallback(req)
		return message, ticket, nil
	}

	if !v.realtime.IsConnected() {
		ticket.path = SendPathFallback
		v.fallback(req)
		return message, ticket, nil
	}

	err = v.realtime.Emit(models.UnifiedCommand{
		Action: models.CommandSendMessage,
		Payload: models.SendMessagePayload{
			Uuid:    req.Uuid,
			Channel: req.Channel,
			Kind:    req.Kind,
			Text:    req.Text,
			ReplyTo: req.ReplyTo,
		},
	})
	switch {
	case err == nil:
		ticket.path = SendPathRealtime
		sentMessages.WithLabelValues(SendPathRealtime).Inc()
	case IsTransportFault(err):
		log.Warn().Err(err).Str("id", message.ID).Msg("Real-time channel faulted, falling back to request...")
		ticket.path = SendPathFallback
		fallbackSends.Inc()
		v.fallback(req)
	default:
		v.fail(message.ID, err)
	}

	return message, ticket, nil
}

func (v *DeliveryCoordinator) compose(draft models.Draft) models.Message {
	message := models.Message{
		ID:        NewProvisionalID(),
		Scope:     v.store.Scope(),
		SenderID:  v.account,
		Timestamp: time.Now(),
		Kind:      lo.Ternary(len(draft.Kind) > 0, draft.Kind, models.MessageKindText),
		Payload:   models.PayloadRef{Text: draft.Text},
		Status:    models.MessageStatusComposing,
	}
	if draft.Attachment != nil {
		attachment := draft.Attachment
		message.Payload.Name = attachment.Name
		message.Payload.Mime = attachment.Mime
		message.Payload.Size = int64(len(attachment.Data))
		message.Payload.Blob = v.blobs.Put(attachment.Mime, attachment.Data)
		if len(draft.Kind) == 0 {
			message.Kind = models.KindFromMime(attachment.Mime)
		}
	}
	if draft.ReplyTo != nil {
		message.ReplyTo = &models.ReplySnapshot{
			ID:       draft.ReplyTo.ID,
			SenderID: draft.ReplyTo.SenderID,
			Preview:  draft.ReplyTo.Preview(),
		}
	}
	return message
}

// fallback issues the one request/response attempt of a send. The result is
// posted back to the conversation and dropped if it closed meanwhile.
func (v *DeliveryCoordinator) fallback(req models.CreateMessageRequest) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
		defer cancel()

		message, err := v.rest.CreateMessage(ctx, req)
		if err == nil && req.Attachment == nil {
			sentMessages.WithLabelValues(SendPathFallback).Inc()
		} else if err == nil {
			sentMessages.WithLabelValues(SendPathUpload).Inc()
		}

		posted := v.post(func() {
			if err != nil {
				v.fail(req.Uuid, err)
				return
			}
			v.Confirm(req.Uuid, message)
		})
		if !posted {
			log.Debug().Str("id", req.Uuid).Msg("Conversation closed before the send settled, result ignored...")
		}
	}()
}

// Confirm reconciles a provisional message with what the server stored.
func (v *DeliveryCoordinator) Confirm(provisionalID string, message models.Message) {
	if len(message.ID) == 0 {
		message.ID = provisionalID
	}
	message.Payload = v.resolve.ResolvePayload(message.Payload)
	message.Status = AdvanceStatus(message.Status, models.MessageStatusSent)
	v.tracker.Prepare(&message)
	if v.resolver.Resolve(provisionalID, message.ID, &message) {
		reconciledMessages.Inc()
	}
	v.tracker.Confirm(message.ID)
	v.dropLocalCopy(message.ID)

	if ticket, ok := v.tickets[provisionalID]; ok {
		delete(v.tickets, provisionalID)
		if stored, ok := v.store.Get(message.ID); ok {
			message = stored
		}
		ticket.settle(SendConfirmed, message, nil)
	}
}

// dropLocalCopy releases the optimistic blob of an attachment once the server
// gave it a remote URL.
func (v *DeliveryCoordinator) dropLocalCopy(id string) {
	message, ok := v.store.Get(id)
	if !ok || len(message.Payload.URL) == 0 || len(message.Payload.Blob) == 0 {
		return
	}
	handle := message.Payload.Blob
	v.store.Mutate(id, func(message *models.Message) bool {
		message.Payload.Blob = ""
		return true
	})
	v.blobs.Release(handle)
}

// Reject handles a refusal reported over the real-time channel.
func (v *DeliveryCoordinator) Reject(provisionalID, code, reason string) {
	if code == models.RejectCodeContentPolicy {
		v.fail(provisionalID, &ContentRejectedError{Reason: reason})
		return
	}
	v.fail(provisionalID, &APIError{Message: lo.Ternary(len(reason) > 0, reason, code)})
}

func (v *DeliveryCoordinator) fail(provisionalID string, err error) {
	if message, ok := v.store.Get(provisionalID); ok && len(message.Payload.Blob) > 0 {
		v.blobs.Release(message.Payload.Blob)
	}
	v.store.Remove([]string{provisionalID}, v.store.Scope())

	outcome := SendFailed
	notice := Notice{Kind: NoticeFailed, MessageID: provisionalID, Err: err}
	if IsContentRejected(err) {
		outcome = SendRejected
		rejectedMessages.Inc()
		notice.Kind = NoticeRejected
		notice.Text = "Your message was not sent because it goes against the community rules."
		log.Info().Str("id", provisionalID).Msg("Message was rejected by the content policy.")
	} else {
		failedSends.Inc()
		notice.Text = "Your message could not be sent."
		log.Error().Err(err).Str("id", provisionalID).Msg("An error occurred when sending message...")
	}

	if ticket, ok := v.tickets[provisionalID]; ok {
		delete(v.tickets, provisionalID)
		ticket.settle(outcome, models.Message{}, err)
	}
	if v.notice != nil {
		v.notice(notice)
	}
}

// Pending lists the provisional ids still waiting for the server.
func (v *DeliveryCoordinator) Pending() []string {
	return lo.Keys(v.tickets)
}

// abandon settles every open ticket when the conversation closes.
func (v *DeliveryCoordinator) abandon() {
	for id, ticket := range v.tickets {
		ticket.settle(SendFailed, models.Message{}, ErrConversationClosed)
		delete(v.tickets, id)
	}
}
