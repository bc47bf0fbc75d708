package services

import (
	"context"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

type readingAnchor struct {
	MessageID string
	At        time.Time
}

// ReadingAnchors queues the newest read message of every conversation until
// the next flush persists it.
type ReadingAnchors struct {
	rest  RestAPI
	queue map[models.Scope]readingAnchor
	lock  sync.Mutex
}

func NewReadingAnchors(rest RestAPI) *ReadingAnchors {
	return &ReadingAnchors{
		rest:  rest,
		queue: make(map[models.Scope]readingAnchor),
	}
}

// Set queues messageID unless a newer message was already read.
func (v *ReadingAnchors) Set(scope models.Scope, messageID string, at time.Time) {
	if IsProvisionalID(messageID) {
		return
	}
	v.lock.Lock()
	defer v.lock.Unlock()
	v.set(scope, readingAnchor{MessageID: messageID, At: at})
}

func (v *ReadingAnchors) set(scope models.Scope, anchor readingAnchor) {
	if val, ok := v.queue[scope]; ok && val.At.After(anchor.At) {
		return
	}
	v.queue[scope] = anchor
}

func (v *ReadingAnchors) Pending(scope models.Scope) (string, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()
	anchor, ok := v.queue[scope]
	return anchor.MessageID, ok
}

// Flush persists every queued anchor. Anchors that fail stay queued for the
// next flush.
func (v *ReadingAnchors) Flush(ctx context.Context) {
	v.lock.Lock()
	if len(v.queue) == 0 {
		v.lock.Unlock()
		return
	}
	pending := v.queue
	v.queue = make(map[models.Scope]readingAnchor)
	v.lock.Unlock()

	for scope, anchor := range pending {
		v.flush(ctx, scope, anchor)
	}
}

// FlushScope persists the anchor of one conversation.
func (v *ReadingAnchors) FlushScope(ctx context.Context, scope models.Scope) {
	v.lock.Lock()
	anchor, ok := v.queue[scope]
	delete(v.queue, scope)
	v.lock.Unlock()

	if ok {
		v.flush(ctx, scope, anchor)
	}
}

func (v *ReadingAnchors) flush(ctx context.Context, scope models.Scope, anchor readingAnchor) {
	err := v.rest.MarkRead(ctx, models.ReadAnchorRequest{Channel: scope, MessageID: anchor.MessageID})
	if err == nil {
		return
	}
	log.Error().Err(err).Str("scope", scope.String()).Msg("An error occurred when flushing reading anchor...")
	v.lock.Lock()
	v.set(scope, anchor)
	v.lock.Unlock()
}
