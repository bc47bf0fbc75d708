package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Conversation is one open conversation view. Every mutation of its state
// runs to completion on a single event loop; network calls run outside of it
// and post their results back.
type Conversation struct {
	scope   models.Scope
	account string
	session *Session

	store    *TimelineStore
	resolver *ProvisionalResolver
	tracker  *StatusTracker
	chunks   *ChunkReassembler
	blobs    *BlobStore
	delivery *DeliveryCoordinator
	deletion *DeletionManager
	typing   *TypingPresence

	// Attachments that completed before their message arrived.
	pendingPayloads map[string]*models.AttachmentPayload

	noticeObservers map[uint64]func(notice Notice)
	observerSeed    uint64

	subscription Subscription
	statusWatch  Subscription

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// Depth of observer and notice callbacks running on the loop, and a
	// Close requested from inside one of them.
	callbacks      atomic.Int32
	closeRequested atomic.Bool
}

func newConversation(session *Session, scope models.Scope) *Conversation {
	options := session.options
	store := NewTimelineStore(scope)
	resolver := NewProvisionalResolver(store)
	tracker := NewStatusTracker(store)

	v := &Conversation{
		scope:           scope,
		account:         options.Account,
		session:         session,
		store:           store,
		resolver:        resolver,
		tracker:         tracker,
		chunks:          NewChunkReassembler(options.PlaceholderTotal),
		blobs:           NewBlobStore(),
		deletion:        NewDeletionManager(options.Account, store, resolver, tracker),
		typing:          NewTypingPresence(options.Account, options.TypingInterval),
		pendingPayloads: make(map[string]*models.AttachmentPayload),
		noticeObservers: make(map[uint64]func(notice Notice)),
		tasks:           make(chan func(), 64),
		quit:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	v.delivery = &DeliveryCoordinator{
		account:  options.Account,
		store:    store,
		resolver: resolver,
		tracker:  tracker,
		blobs:    v.blobs,
		realtime: session.realtime,
		rest:     session.rest,
		resolve:  session.resolve,
		timeout:  options.RequestTimeout,
		post:     v.post,
		notice:   v.notify,
		tickets:  make(map[string]*SendTicket),
	}

	go v.run()
	return v
}

func (v *Conversation) run() {
	defer close(v.done)
	for {
		select {
		case task := <-v.tasks:
			task()
			if v.closeRequested.Load() && !v.closed.Load() {
				v.teardown()
				close(v.quit)
				v.session.forget(v)
				return
			}
			if v.closed.Load() {
				return
			}
		case <-v.quit:
			return
		}
	}
}

// post queues task on the event loop. It reports false when the conversation
// is closed and the task will never run.
func (v *Conversation) post(task func()) bool {
	if v.closed.Load() {
		return false
	}
	select {
	case v.tasks <- task:
		return true
	case <-v.quit:
		return false
	}
}

// do runs fn on the event loop and waits for it.
func (v *Conversation) do(fn func()) error {
	finished := make(chan struct{})
	if !v.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrConversationClosed
	}
	select {
	case <-finished:
		return nil
	case <-v.done:
		return ErrConversationClosed
	}
}

// bind attaches the conversation to the shared real-time connection.
func (v *Conversation) bind() {
	realtime := v.session.realtime
	v.subscription = realtime.Subscribe(v.scope, func(cmd models.UnifiedCommand) {
		v.post(func() { v.handle(cmd) })
	})
	v.statusWatch = realtime.OnStatus(func(status models.ConnectionStatus) {
		if status == models.ConnectionConnected {
			v.post(v.subscribe)
		}
	})
	if realtime.IsConnected() {
		v.post(v.subscribe)
	}
}

func (v *Conversation) subscribe() {
	err := v.session.realtime.Emit(models.UnifiedCommand{
		Action:  models.CommandSubscribe,
		Payload: models.SubscribePayload{Channel: v.scope},
	})
	if err != nil {
		log.Warn().Err(err).Str("scope", v.scope.String()).Msg("An error occurred when subscribing channel...")
	}
}

// Load fetches the members and persisted messages of the conversation and
// merges them into the timeline. Either half is applied even when the other
// one failed; the first error is returned.
func (v *Conversation) Load(ctx context.Context) error {
	members, memberErr := v.session.rest.ListMembers(ctx, v.scope)
	if memberErr != nil {
		log.Warn().Err(memberErr).Str("scope", v.scope.String()).Msg("An error occurred when fetching members...")
	}
	messages, messageErr := v.session.rest.ListMessages(ctx, v.scope)
	if messageErr != nil {
		log.Warn().Err(messageErr).Str("scope", v.scope.String()).Msg("An error occurred when fetching messages...")
	}

	if err := v.do(func() {
		if memberErr == nil && !v.scope.IsDirect() {
			v.tracker.SetMembers(members)
		}
		if messageErr == nil {
			for _, message := range messages {
				v.ingest(message)
			}
		}
	}); err != nil {
		return err
	}
	return lo.Ternary(memberErr != nil, memberErr, messageErr)
}

func (v *Conversation) Scope() models.Scope {
	return v.scope
}

// Messages returns the timeline in display order.
func (v *Conversation) Messages() []models.Message {
	var out []models.Message
	_ = v.do(func() { out = v.store.List() })
	return out
}

// Message returns the entry stored under id. A reconciled provisional id
// resolves to nothing; use Canonical to follow it.
func (v *Conversation) Message(id string) (models.Message, bool) {
	var out models.Message
	var ok bool
	_ = v.do(func() { out, ok = v.store.Get(id) })
	return out, ok
}

// Canonical returns the id a message is stored under now.
func (v *Conversation) Canonical(id string) string {
	out := id
	_ = v.do(func() { out = v.resolver.Canonical(id) })
	return out
}

func (v *Conversation) Indicator(id string) (StatusIndicator, bool) {
	var out StatusIndicator
	var ok bool
	_ = v.do(func() {
		var message models.Message
		if message, ok = v.resolver.Lookup(id); ok {
			out = Indicator(message.Status, message.Receipts, message.RecipientTotal)
		}
	})
	return out, ok
}

func (v *Conversation) Members() []models.ChannelMember {
	var out []models.ChannelMember
	_ = v.do(func() { out = append(out, v.tracker.Members()...) })
	return out
}

func (v *Conversation) Typers() []Typer {
	var out []Typer
	_ = v.do(func() { out = v.typing.Typers() })
	return out
}

// Blob returns the bytes behind a local blob handle.
func (v *Conversation) Blob(handle string) (Blob, bool) {
	var out Blob
	var ok bool
	_ = v.do(func() { out, ok = v.blobs.Get(handle) })
	return out, ok
}

// Observe registers fn for timeline changes. It runs on the event loop and
// must not call back into blocking Conversation methods; read through the
// store it is given instead. Close is the exception.
func (v *Conversation) Observe(fn TimelineObserver) (func(), error) {
	var cancel func()
	if err := v.do(func() {
		cancel = v.store.Observe(func(change TimelineChange, store *TimelineStore) {
			v.callbacks.Add(1)
			defer v.callbacks.Add(-1)
			fn(change, store)
		})
	}); err != nil {
		return nil, err
	}
	return func() { v.post(cancel) }, nil
}

// OnNotice registers fn for user facing notices. It runs on the event loop.
func (v *Conversation) OnNotice(fn func(notice Notice)) (func(), error) {
	var id uint64
	err := v.do(func() {
		v.observerSeed++
		id = v.observerSeed
		v.noticeObservers[id] = fn
	})
	if err != nil {
		return nil, err
	}
	return func() { v.post(func() { delete(v.noticeObservers, id) }) }, nil
}

func (v *Conversation) notify(notice Notice) {
	v.callbacks.Add(1)
	defer v.callbacks.Add(-1)
	for _, fn := range v.noticeObservers {
		fn(notice)
	}
}

// Send inserts the optimistic message and returns it at once together with
// the ticket that settles when the server answers.
func (v *Conversation) Send(draft models.Draft) (models.Message, *SendTicket, error) {
	var message models.Message
	var ticket *SendTicket
	var err error
	if e := v.do(func() { message, ticket, err = v.delivery.Send(draft) }); e != nil {
		return message, nil, e
	}
	return message, ticket, err
}

// Reply sends draft as a reply to the message with id.
func (v *Conversation) Reply(id string, draft models.Draft) (models.Message, *SendTicket, error) {
	var message models.Message
	var ticket *SendTicket
	var err error
	if e := v.do(func() {
		if target, ok := v.resolver.Lookup(id); ok {
			draft.ReplyTo = &target
		}
		message, ticket, err = v.delivery.Send(draft)
	}); e != nil {
		return message, nil, e
	}
	return message, ticket, err
}

// DeleteScoped deletes the messages for this user only or for everyone. The
// entries stay until the server accepted the deletion.
func (v *Conversation) DeleteScoped(ctx context.Context, ids []string, mode models.DeleteMode) error {
	var req models.DeleteMessagesRequest
	var err error
	if e := v.do(func() { req, err = v.deletion.Prepare(ids, mode) }); e != nil {
		return e
	} else if err != nil {
		return err
	}

	if err := v.session.rest.DeleteMessages(ctx, req); err != nil {
		log.Error().Err(err).Str("scope", v.scope.String()).Msg("An error occurred when deleting messages...")
		v.post(func() {
			v.notify(Notice{Kind: NoticeFailed, Text: "The messages could not be deleted.", Err: err})
		})
		return err
	}

	if e := v.do(func() { v.deletion.Apply(req.IDs) }); e != nil {
		log.Debug().Strs("ids", req.IDs).Msg("Conversation closed before deletion applied, skipped...")
	}
	return nil
}

func (v *Conversation) Select(id string) bool {
	var ok bool
	_ = v.do(func() { ok = v.deletion.Select(id) })
	return ok
}

func (v *Conversation) Deselect(id string) {
	_ = v.do(func() { v.deletion.Deselect(id) })
}

func (v *Conversation) Toggle(id string) bool {
	var ok bool
	_ = v.do(func() { ok = v.deletion.Toggle(id) })
	return ok
}

func (v *Conversation) Selected() []string {
	var out []string
	_ = v.do(func() { out = v.deletion.Selected() })
	return out
}

// CommitSelection deletes the selected messages in one call. The selection
// is cleared whatever the outcome.
func (v *Conversation) CommitSelection(ctx context.Context, mode models.DeleteMode) error {
	var ids []string
	if err := v.do(func() { ids = v.deletion.TakeSelection() }); err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrEmptySelection
	}
	return v.DeleteScoped(ctx, ids, mode)
}

// SetTyping tells the other participants that we are typing. Signals more
// frequent than the configured interval are dropped.
func (v *Conversation) SetTyping() error {
	var err error
	if e := v.do(func() {
		if !v.typing.Allow() {
			return
		}
		err = v.session.realtime.Emit(typingCommand(v.scope))
	}); e != nil {
		return e
	}
	return err
}

// MarkRead moves the reading anchor of this conversation to id.
func (v *Conversation) MarkRead(id string) {
	_ = v.do(func() {
		message, ok := v.resolver.Lookup(id)
		if !ok {
			return
		}
		v.session.anchors.Set(v.scope, message.ID, message.Timestamp)
	})
}

// Close detaches the conversation. Pending transfers are discarded and late
// network results are ignored; requests already issued are not cancelled.
//
// Called from an observer or notice callback, Close returns at once and the
// conversation shuts down as soon as the callback returns.
func (v *Conversation) Close() {
	v.closeOnce.Do(func() {
		if v.callbacks.Load() > 0 {
			v.closeRequested.Store(true)
			return
		}
		_ = v.do(v.teardown)
		v.closed.Store(true)
		close(v.quit)
		<-v.done
		v.session.forget(v)
	})
}

func (v *Conversation) teardown() {
	v.closed.Store(true)

	if v.subscription != nil {
		v.subscription.Unsubscribe()
	}
	if v.statusWatch != nil {
		v.statusWatch.Unsubscribe()
	}
	if v.session.realtime.IsConnected() {
		err := v.session.realtime.Emit(models.UnifiedCommand{
			Action:  models.CommandUnsubscribe,
			Payload: models.SubscribePayload{Channel: v.scope},
		})
		if err != nil {
			log.Debug().Err(err).Msg("Unable to unsubscribe channel, skipped...")
		}
	}

	if count := v.chunks.AbandonAll(); count > 0 {
		transfersFinished.WithLabelValues("abandoned").Add(float64(count))
		log.Debug().Int("count", count).Str("scope", v.scope.String()).Msg("Discarded pending transfers...")
	}
	v.delivery.abandon()
	v.typing.Clear()
	clear(v.pendingPayloads)
	clear(v.noticeObservers)
	v.blobs.Clear()

	anchors := v.session.anchors
	scope := v.scope
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.session.options.RequestTimeout)
		defer cancel()
		anchors.FlushScope(ctx, scope)
	}()
}

// sweep discards transfers that stalled for longer than idle.
func (v *Conversation) sweep(idle time.Duration) {
	v.post(func() {
		stalled := v.chunks.Sweep(idle)
		if len(stalled) == 0 {
			return
		}
		transfersFinished.WithLabelValues("stalled").Add(float64(len(stalled)))
		for _, id := range stalled {
			delete(v.pendingPayloads, id)
		}
		log.Debug().Strs("ids", stalled).Str("scope", v.scope.String()).Msg("Discarded stalled transfers...")
	})
}

// ingest merges a message the server knows about into the timeline.
func (v *Conversation) ingest(message models.Message) {
	if message.Scope.IsZero() {
		message.Scope = v.scope
	}
	if message.Scope != v.scope {
		log.Debug().Str("id", message.ID).Msg("Message of another conversation, skipped...")
		return
	}
	message.Payload = v.session.resolve.ResolvePayload(message.Payload)
	message.Status = AdvanceStatus(message.Status, models.MessageStatusSent)
	v.tracker.Prepare(&message)

	if payload, ok := v.pendingPayloads[message.ID]; ok {
		delete(v.pendingPayloads, message.ID)
		message.Payload = v.attachPayload(message.Payload, payload)
		message.Kind = lo.Ternary(message.Kind == models.MessageKindText || len(message.Kind) == 0, payload.Kind, message.Kind)
	}

	if _, err := v.store.Upsert(message); err != nil {
		log.Warn().Err(err).Str("id", message.ID).Msg("An error occurred when storing message...")
	}
}

func (v *Conversation) attachPayload(ref models.PayloadRef, payload *models.AttachmentPayload) models.PayloadRef {
	if len(ref.Blob) > 0 {
		v.blobs.Release(ref.Blob)
	}
	ref.Blob = v.blobs.Put(payload.Mime, payload.Data)
	ref.Mime = lo.Ternary(len(ref.Mime) > 0 && ref.Mime != "application/octet-stream", ref.Mime, payload.Mime)
	ref.Size = int64(len(payload.Data))
	return ref
}

// completeTransfer stores a reassembled attachment on its message, or keeps
// it until the message arrives.
func (v *Conversation) completeTransfer(payload *models.AttachmentPayload) {
	transfersFinished.WithLabelValues("completed").Inc()
	id := v.resolver.Canonical(payload.MessageID)
	updated := v.store.Mutate(id, func(message *models.Message) bool {
		message.Payload = v.attachPayload(message.Payload, payload)
		if message.Kind == models.MessageKindText || len(message.Kind) == 0 {
			message.Kind = payload.Kind
		}
		return true
	})
	if !updated {
		v.pendingPayloads[id] = payload
	}
}
