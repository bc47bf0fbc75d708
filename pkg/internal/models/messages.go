package models

import (
	"fmt"
	"strings"
	"time"
)

type MessageKind string

const (
	MessageKindText  = MessageKind("text")
	MessageKindImage = MessageKind("image")
	MessageKindVideo = MessageKind("video")
	MessageKindAudio = MessageKind("audio")
	MessageKindFile  = MessageKind("file")
)

// KindFromMime maps a mime type onto the attachment kind shown to the user.
func KindFromMime(mime string) MessageKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MessageKindImage
	case strings.HasPrefix(mime, "video/"):
		return MessageKindVideo
	case strings.HasPrefix(mime, "audio/"):
		return MessageKindAudio
	default:
		return MessageKindFile
	}
}

// MessageStatus is ordered: a message only ever moves to a greater value.
type MessageStatus uint8

const (
	MessageStatusComposing = MessageStatus(iota)
	MessageStatusSent
	MessageStatusDelivered
	MessageStatusRead
)

var messageStatusNames = []string{"composing", "sent", "delivered", "read"}

func (v MessageStatus) String() string {
	if int(v) < len(messageStatusNames) {
		return messageStatusNames[v]
	}
	return fmt.Sprintf("status(%d)", v)
}

func (v MessageStatus) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *MessageStatus) UnmarshalText(text []byte) error {
	for idx, name := range messageStatusNames {
		if name == string(text) {
			*v = MessageStatus(idx)
			return nil
		}
	}
	return fmt.Errorf("unknown message status %q", text)
}

// PayloadRef points at the content of a message. Text messages carry the text
// inline, attachments carry a local blob handle until the remote URL is known.
type PayloadRef struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
	Blob string `json:"blob,omitempty"`
	Name string `json:"name,omitempty"`
	Mime string `json:"mime,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// IsPlaceholder reports whether the attachment is only available locally.
func (v PayloadRef) IsPlaceholder() bool {
	return len(v.URL) == 0 && len(v.Blob) > 0
}

type Receipt struct {
	ReaderID string    `json:"reader_id" validate:"required"`
	ReadAt   time.Time `json:"read_at"`
}

// ReplySnapshot is what a reply shows about the message it quotes. It is
// copied when the reply is created so the quoted message may go away later.
type ReplySnapshot struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Preview  string `json:"preview"`
}

type Message struct {
	ID             string         `json:"id" validate:"required"`
	Scope          Scope          `json:"scope"`
	SenderID       string         `json:"sender_id" validate:"required"`
	Timestamp      time.Time      `json:"timestamp"`
	Kind           MessageKind    `json:"kind"`
	Payload        PayloadRef     `json:"payload"`
	Status         MessageStatus  `json:"status"`
	Receipts       []Receipt      `json:"receipts,omitempty"`
	RecipientTotal int            `json:"recipient_total"`
	ReplyTo        *ReplySnapshot `json:"reply_to,omitempty"`
}

// Preview returns a short text describing the message for replies and logs.
func (v Message) Preview() string {
	if v.Kind == MessageKindText || len(v.Kind) == 0 {
		text := []rune(v.Payload.Text)
		if len(text) > 64 {
			return string(text[:64]) + "…"
		}
		return string(text)
	}
	if len(v.Payload.Name) > 0 {
		return fmt.Sprintf("[%s] %s", v.Kind, v.Payload.Name)
	}
	return fmt.Sprintf("[%s]", v.Kind)
}

// HasReceipt reports whether the reader already acknowledged the message.
func (v Message) HasReceipt(reader string) bool {
	for _, item := range v.Receipts {
		if item.ReaderID == reader {
			return true
		}
	}
	return false
}

// Draft is what the user composed before the engine turns it into a Message.
type Draft struct {
	Kind       MessageKind
	Text       string
	Attachment *AttachmentUpload
	ReplyTo    *Message
}

type AttachmentUpload struct {
	Name string
	Mime string
	Data []byte
}
