package services

import (
	"fmt"
	"sort"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
)

type ChangeKind = uint8

const (
	ChangeUpsert = ChangeKind(iota)
	ChangeRemove
	ChangeRename
)

// TimelineChange describes one mutation of a TimelineStore. For renames IDs
// holds the old id followed by the new one.
type TimelineChange struct {
	Kind ChangeKind
	IDs  []string
}

// TimelineObserver runs synchronously after each mutation. It receives the
// store itself so it can read without going back through the conversation.
type TimelineObserver func(change TimelineChange, store *TimelineStore)

type timelineEntry struct {
	message models.Message
	seq     uint64
}

// TimelineStore is the deduplicated, chronologically ordered set of messages
// of one conversation. It is not safe for concurrent use; a Conversation
// only touches it from its event loop.
type TimelineStore struct {
	scope   models.Scope
	entries map[string]*timelineEntry
	order   []*timelineEntry
	seq     uint64

	observers    map[uint64]TimelineObserver
	observerSeed uint64
}

func NewTimelineStore(scope models.Scope) *TimelineStore {
	return &TimelineStore{
		scope:     scope,
		entries:   make(map[string]*timelineEntry),
		observers: make(map[uint64]TimelineObserver),
	}
}

func (v *TimelineStore) Scope() models.Scope {
	return v.scope
}

// Observe registers fn and returns the function that removes it again.
func (v *TimelineStore) Observe(fn TimelineObserver) func() {
	v.observerSeed++
	id := v.observerSeed
	v.observers[id] = fn
	return func() {
		delete(v.observers, id)
	}
}

func (v *TimelineStore) notify(kind ChangeKind, ids ...string) {
	change := TimelineChange{Kind: kind, IDs: ids}
	keys := lo.Keys(v.observers)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		if fn, ok := v.observers[key]; ok {
			fn(change, v)
		}
	}
}

// Upsert inserts the message or merges it into the entry with the same id.
// Applying the same record twice leaves a single, unchanged entry.
func (v *TimelineStore) Upsert(message models.Message) (models.Message, error) {
	if len(message.ID) == 0 {
		return message, fmt.Errorf("message id is required")
	}
	if message.Scope.IsZero() {
		message.Scope = v.scope
	} else if message.Scope != v.scope {
		return message, fmt.Errorf("message %s belongs to %s, not %s", message.ID, message.Scope, v.scope)
	}

	if entry, ok := v.entries[message.ID]; ok {
		merged := MergeMessage(entry.message, message)
		v.replace(entry, merged)
	} else {
		v.insert(message, 0)
	}

	v.notify(ChangeUpsert, message.ID)
	return v.entries[message.ID].message, nil
}

// Remove drops the given ids when they belong to scope and reports how many
// entries went away.
func (v *TimelineStore) Remove(ids []string, scope models.Scope) int {
	if scope != v.scope {
		return 0
	}

	var removed []string
	for _, id := range lo.Uniq(ids) {
		entry, ok := v.entries[id]
		if !ok {
			continue
		}
		v.detach(entry)
		delete(v.entries, id)
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		v.notify(ChangeRemove, removed...)
	}
	return len(removed)
}

// Rename moves the entry stored under from to the id to, storing message as
// its content. An entry already present under to is replaced. The renamed
// entry keeps the earliest arrival position of the two.
func (v *TimelineStore) Rename(from, to string, message models.Message) bool {
	source, ok := v.entries[from]
	if !ok || len(to) == 0 {
		return false
	}

	seq := source.seq
	if target, ok := v.entries[to]; ok {
		seq = min(seq, target.seq)
		v.detach(target)
		delete(v.entries, to)
	}
	v.detach(source)
	delete(v.entries, from)

	message.ID = to
	message.Scope = v.scope
	v.insert(message, seq)

	v.notify(ChangeRename, from, to)
	return true
}

// Mutate applies fn to the stored message and notifies observers when fn
// reports a change. The id and scope of the message cannot be changed.
func (v *TimelineStore) Mutate(id string, fn func(message *models.Message) bool) bool {
	entry, ok := v.entries[id]
	if !ok {
		return false
	}

	next := entry.message
	next.Receipts = append([]models.Receipt(nil), entry.message.Receipts...)
	if !fn(&next) {
		return false
	}
	next.ID = entry.message.ID
	next.Scope = entry.message.Scope
	v.replace(entry, next)

	v.notify(ChangeUpsert, id)
	return true
}

func (v *TimelineStore) Get(id string) (models.Message, bool) {
	if entry, ok := v.entries[id]; ok {
		return entry.message, true
	}
	return models.Message{}, false
}

func (v *TimelineStore) Has(id string) bool {
	_, ok := v.entries[id]
	return ok
}

func (v *TimelineStore) Len() int {
	return len(v.order)
}

// List returns the messages ordered by timestamp, ties broken by arrival.
func (v *TimelineStore) List() []models.Message {
	return lo.Map(v.order, func(item *timelineEntry, _ int) models.Message {
		return item.message
	})
}

func (v *TimelineStore) insert(message models.Message, seq uint64) {
	if seq == 0 {
		v.seq++
		seq = v.seq
	}
	entry := &timelineEntry{message: message, seq: seq}
	v.entries[message.ID] = entry

	idx := sort.Search(len(v.order), func(i int) bool {
		return entryBefore(entry, v.order[i])
	})
	v.order = append(v.order, nil)
	copy(v.order[idx+1:], v.order[idx:])
	v.order[idx] = entry
}

func (v *TimelineStore) replace(entry *timelineEntry, message models.Message) {
	moved := !entry.message.Timestamp.Equal(message.Timestamp)
	if !moved {
		entry.message = message
		return
	}
	v.detach(entry)
	delete(v.entries, entry.message.ID)
	v.insert(message, entry.seq)
}

func (v *TimelineStore) detach(entry *timelineEntry) {
	for idx, item := range v.order {
		if item == entry {
			v.order = append(v.order[:idx], v.order[idx+1:]...)
			return
		}
	}
}

func entryBefore(a, b *timelineEntry) bool {
	if a.message.Timestamp.Equal(b.message.Timestamp) {
		return a.seq < b.seq
	}
	return a.message.Timestamp.Before(b.message.Timestamp)
}

// MergeMessage combines two records of the same logical message. Non-empty
// fields of incoming win, the status never moves backwards, receipts are
// united and the reply snapshot taken first is kept.
func MergeMessage(base, incoming models.Message) models.Message {
	out := base
	if len(out.ID) == 0 {
		out.ID = incoming.ID
	}
	if out.Scope.IsZero() {
		out.Scope = incoming.Scope
	}
	if len(incoming.SenderID) > 0 {
		out.SenderID = incoming.SenderID
	}
	if !incoming.Timestamp.IsZero() {
		out.Timestamp = incoming.Timestamp
	}
	if len(incoming.Kind) > 0 {
		out.Kind = incoming.Kind
	}
	out.Payload = mergePayload(base.Payload, incoming.Payload)
	out.Status = AdvanceStatus(base.Status, incoming.Status)
	out.Receipts = mergeReceipts(base.Receipts, incoming.Receipts)
	if incoming.RecipientTotal > 0 {
		out.RecipientTotal = incoming.RecipientTotal
	}
	if out.ReplyTo == nil && incoming.ReplyTo != nil {
		out.ReplyTo = lo.ToPtr(*incoming.ReplyTo)
	}
	return out
}

func mergePayload(base, incoming models.PayloadRef) models.PayloadRef {
	out := base
	if len(incoming.Text) > 0 {
		out.Text = incoming.Text
	}
	if len(incoming.URL) > 0 {
		out.URL = incoming.URL
	}
	if len(incoming.Blob) > 0 {
		out.Blob = incoming.Blob
	}
	if len(incoming.Name) > 0 {
		out.Name = incoming.Name
	}
	if len(incoming.Mime) > 0 {
		out.Mime = incoming.Mime
	}
	if incoming.Size > 0 {
		out.Size = incoming.Size
	}
	return out
}

func mergeReceipts(base, incoming []models.Receipt) []models.Receipt {
	if len(incoming) == 0 {
		return base
	}
	out := append([]models.Receipt(nil), base...)
	for _, item := range incoming {
		if !lo.ContainsBy(out, func(r models.Receipt) bool { return r.ReaderID == item.ReaderID }) {
			out = append(out, item)
		}
	}
	return out
}
