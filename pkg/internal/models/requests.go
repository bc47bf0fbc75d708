package models

type DeleteMode = string

const (
	DeleteModeLocal  = DeleteMode("local")
	DeleteModeGlobal = DeleteMode("global")
)

// CreateMessageRequest is the body of the fallback create call. Uuid carries
// the provisional id so the server can drop a duplicate of the same intent.
type CreateMessageRequest struct {
	Uuid       string            `json:"uuid"`
	Channel    Scope             `json:"channel"`
	Kind       MessageKind       `json:"kind"`
	Text       string            `json:"text,omitempty"`
	ReplyTo    string            `json:"reply_to,omitempty"`
	Attachment *AttachmentUpload `json:"-"`
}

type DeleteMessagesRequest struct {
	Channel Scope      `json:"channel"`
	IDs     []string   `json:"ids"`
	Mode    DeleteMode `json:"mode"`
}

type ReadAnchorRequest struct {
	Channel   Scope  `json:"channel"`
	MessageID string `json:"message_id"`
}
