package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	EventMessageNew      = "messages.new"
	EventMessageEdit     = "messages.edit"
	EventMessageConfirm  = "messages.confirm"
	EventMessageRejected = "messages.rejected"
	EventMessageStatus   = "messages.status"
	EventMessageReceipt  = "messages.receipt"
	EventMessageDelete   = "messages.delete"
	EventChunkStart      = "attachments.start"
	EventChunk           = "attachments.chunk"
	EventTyping          = "status.typing"
	EventMembers         = "channels.members"
)

// Event is one decoded inbound event. Every action has its own type so the
// handlers can switch on it instead of poking around untyped maps.
type Event interface {
	EventName() string
	ChannelScope() Scope
}

type EventChannel struct {
	Channel Scope `json:"channel"`
}

func (v EventChannel) ChannelScope() Scope { return v.Channel }

// MessageNewEvent is a message entering the conversation. Uuid is set when
// the message echoes one of our own provisional sends.
type MessageNewEvent struct {
	EventChannel
	Uuid    string  `json:"uuid,omitempty"`
	Message Message `json:"message"`
}

type MessageEditEvent struct {
	EventChannel
	Message Message `json:"message"`
}

// MessageConfirmEvent tells the sender which server id its provisional
// message received.
type MessageConfirmEvent struct {
	EventChannel
	Uuid    string  `json:"uuid" validate:"required"`
	Message Message `json:"message"`
}

type MessageRejectedEvent struct {
	EventChannel
	Uuid   string `json:"uuid" validate:"required"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

const RejectCodeContentPolicy = "content_policy"

type MessageStatusEvent struct {
	EventChannel
	MessageID string        `json:"message_id" validate:"required"`
	Status    MessageStatus `json:"status"`
}

type ReceiptKind = string

const (
	ReceiptKindDelivered = ReceiptKind("delivered")
	ReceiptKindRead      = ReceiptKind("read")
)

type MessageReceiptEvent struct {
	EventChannel
	MessageID string      `json:"message_id" validate:"required"`
	Kind      ReceiptKind `json:"kind" validate:"required,oneof=delivered read"`
	Receipt   *Receipt    `json:"receipt,omitempty"`
}

type MessageDeleteEvent struct {
	EventChannel
	IDs  []string   `json:"ids" validate:"required,min=1,dive,required"`
	Mode DeleteMode `json:"mode"`
}

type ChunkStartEvent struct {
	EventChannel
	MessageID string `json:"message_id" validate:"required"`
	Total     int    `json:"total" validate:"gt=0"`
	Mime      string `json:"mime"`
}

type ChunkEvent struct {
	EventChannel
	MessageID string `json:"message_id" validate:"required"`
	Index     int    `json:"index" validate:"gte=0"`
	Data      []byte `json:"data"`
	Last      bool   `json:"last"`
}

type TypingEvent struct {
	EventChannel
	UserID string `json:"user_id" validate:"required"`
	Name   string `json:"name"`
	Typing bool   `json:"typing"`
}

type MembersEvent struct {
	EventChannel
	Members []ChannelMember `json:"members" validate:"dive"`
	Left    []string        `json:"left"`
}

func (MessageNewEvent) EventName() string      { return EventMessageNew }
func (MessageEditEvent) EventName() string     { return EventMessageEdit }
func (MessageConfirmEvent) EventName() string  { return EventMessageConfirm }
func (MessageRejectedEvent) EventName() string { return EventMessageRejected }
func (MessageStatusEvent) EventName() string   { return EventMessageStatus }
func (MessageReceiptEvent) EventName() string  { return EventMessageReceipt }
func (MessageDeleteEvent) EventName() string   { return EventMessageDelete }
func (ChunkStartEvent) EventName() string      { return EventChunkStart }
func (ChunkEvent) EventName() string           { return EventChunk }
func (TypingEvent) EventName() string          { return EventTyping }
func (MembersEvent) EventName() string         { return EventMembers }

var validate = validator.New()

func ValidateStruct(data any) error {
	return validate.Struct(data)
}

// ErrUnknownEvent is returned for actions the engine does not consume.
var ErrUnknownEvent = errors.New("unknown event")

// DecodeEvent turns a frame from the real-time channel into its typed event.
func DecodeEvent(cmd UnifiedCommand) (Event, error) {
	var out Event
	switch cmd.Action {
	case EventMessageNew:
		out = &MessageNewEvent{}
	case EventMessageEdit:
		out = &MessageEditEvent{}
	case EventMessageConfirm:
		out = &MessageConfirmEvent{}
	case EventMessageRejected:
		out = &MessageRejectedEvent{}
	case EventMessageStatus:
		out = &MessageStatusEvent{}
	case EventMessageReceipt:
		out = &MessageReceiptEvent{}
	case EventMessageDelete:
		out = &MessageDeleteEvent{}
	case EventChunkStart:
		out = &ChunkStartEvent{}
	case EventChunk:
		out = &ChunkEvent{}
	case EventTyping:
		out = &TypingEvent{}
	case EventMembers:
		out = &MembersEvent{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, cmd.Action)
	}

	if err := FitStruct(cmd.Payload, out); err != nil {
		return nil, fmt.Errorf("unable parse payload of %s: %v", cmd.Action, err)
	} else if err := ValidateStruct(out); err != nil {
		return nil, fmt.Errorf("invalid payload of %s: %v", cmd.Action, err)
	} else if out.ChannelScope().IsZero() {
		return nil, fmt.Errorf("invalid payload of %s: channel is required", cmd.Action)
	}

	return out, nil
}
