package models

import jsoniter "github.com/json-iterator/go"

// UnifiedCommand is the frame exchanged over the real-time channel in both
// directions.
type UnifiedCommand struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func UnifiedCommandFromError(err error) UnifiedCommand {
	return UnifiedCommand{
		Action:  "error",
		Message: err.Error(),
	}
}

func (v UnifiedCommand) Marshal() []byte {
	data, _ := jsoniter.Marshal(v)
	return data
}

func ParseUnifiedCommand(raw []byte) (UnifiedCommand, error) {
	var cmd UnifiedCommand
	err := jsoniter.Unmarshal(raw, &cmd)
	return cmd, err
}

const (
	CommandSubscribe   = "channels.subscribe"
	CommandUnsubscribe = "channels.unsubscribe"
	CommandSendMessage = "messages.send"
	CommandTyping      = "status.typing"
)

type SubscribePayload struct {
	Channel Scope `json:"channel"`
}

type SendMessagePayload struct {
	Uuid    string      `json:"uuid"`
	Channel Scope       `json:"channel"`
	Kind    MessageKind `json:"kind"`
	Text    string      `json:"text"`
	ReplyTo string      `json:"reply_to,omitempty"`
}

type TypingPayload struct {
	Channel Scope `json:"channel"`
}
