package services

import (
	"context"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
)

// Subscription is the handle returned for one scope filter on the shared
// real-time connection.
type Subscription interface {
	Unsubscribe()
}

// Realtime is the process-wide real-time channel. Conversations only filter
// events of their own scope and never own the connection.
type Realtime interface {
	IsConnected() bool
	Status() models.ConnectionStatus
	// Emit writes a frame. It fails with a *TransportError when the channel
	// is down or the write faults.
	Emit(cmd models.UnifiedCommand) error
	Subscribe(scope models.Scope, handler func(cmd models.UnifiedCommand)) Subscription
	OnStatus(handler func(status models.ConnectionStatus)) Subscription
}

//go:generate mockgen -destination=mocks/rest.go -package=mocks . RestAPI

// RestAPI is the request/response fallback of the messaging service.
type RestAPI interface {
	ListMessages(ctx context.Context, scope models.Scope) ([]models.Message, error)
	ListMembers(ctx context.Context, scope models.Scope) ([]models.ChannelMember, error)
	CreateMessage(ctx context.Context, req models.CreateMessageRequest) (models.Message, error)
	MarkRead(ctx context.Context, req models.ReadAnchorRequest) error
	DeleteMessages(ctx context.Context, req models.DeleteMessagesRequest) error
}

// URLResolver rewrites server-relative attachment paths into fetchable URLs.
type URLResolver func(path string) string

func (v URLResolver) Resolve(path string) string {
	if v == nil {
		return path
	}
	return v(path)
}

// ResolvePayload rewrites the remote URL of ref, if it has one.
func (v URLResolver) ResolvePayload(ref models.PayloadRef) models.PayloadRef {
	if len(ref.URL) > 0 {
		ref.URL = v.Resolve(ref.URL)
	}
	return ref
}
