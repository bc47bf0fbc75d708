package services

import (
	"fmt"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
)

type StatusEventKind = uint8

const (
	// StatusEventConfirmed is the server accepting the message, either via the
	// fallback response or the first echo over the real-time channel.
	StatusEventConfirmed = StatusEventKind(iota)
	StatusEventDelivered
	StatusEventRead
	// StatusEventReported carries a status the server computed itself.
	StatusEventReported
	// StatusEventReceipts re-evaluates the receipt count against the total.
	StatusEventReceipts
)

type StatusEvent struct {
	Kind     StatusEventKind
	Target   models.MessageStatus
	Receipts int
	Total    int
}

// AdvanceStatus returns the later of the two statuses.
func AdvanceStatus(current, next models.MessageStatus) models.MessageStatus {
	return max(current, next)
}

// InferStatus derives a status from how many recipients read the message.
// Without any receipt nothing can be inferred and composing is returned.
func InferStatus(receipts, total int) models.MessageStatus {
	switch {
	case receipts <= 0:
		return models.MessageStatusComposing
	case total > 0 && receipts >= total:
		return models.MessageStatusRead
	default:
		return models.MessageStatusDelivered
	}
}

// NextStatus is the transition function of the message lifecycle. It never
// returns a status before current.
func NextStatus(current models.MessageStatus, event StatusEvent) models.MessageStatus {
	var target models.MessageStatus
	switch event.Kind {
	case StatusEventConfirmed:
		target = models.MessageStatusSent
	case StatusEventDelivered:
		target = models.MessageStatusDelivered
	case StatusEventRead:
		target = models.MessageStatusRead
	case StatusEventReported:
		target = event.Target
	case StatusEventReceipts:
		target = InferStatus(event.Receipts, event.Total)
	default:
		return current
	}
	return AdvanceStatus(current, target)
}

type StatusIndicator struct {
	Icon   string
	Label  string
	ReadBy int
	Of     int
}

// Indicator is what the UI draws next to a message. It depends on nothing but
// its arguments.
func Indicator(status models.MessageStatus, receipts []models.Receipt, total int) StatusIndicator {
	readBy := len(lo.UniqBy(receipts, func(item models.Receipt) string { return item.ReaderID }))
	out := StatusIndicator{ReadBy: readBy, Of: total}
	switch status {
	case models.MessageStatusComposing:
		out.Icon, out.Label = "clock", "Sending"
	case models.MessageStatusSent:
		out.Icon, out.Label = "check", "Sent"
	case models.MessageStatusDelivered:
		out.Icon = "check-double"
		if readBy > 0 && total > 1 {
			out.Label = fmt.Sprintf("Read by %d of %d", readBy, total)
		} else {
			out.Label = "Delivered"
		}
	default:
		out.Icon, out.Label = "check-double-filled", "Read"
	}
	return out
}

// StatusTracker keeps the lifecycle status of the messages in one store in
// line with receipts and membership.
type StatusTracker struct {
	store   *TimelineStore
	members []models.ChannelMember
	known   bool
}

func NewStatusTracker(store *TimelineStore) *StatusTracker {
	return &StatusTracker{store: store}
}

// RecipientTotal is the number of members who should read a message of
// sender. Direct conversations always have exactly one recipient.
func (v *StatusTracker) RecipientTotal(sender string) int {
	if v.store.Scope().IsDirect() {
		return 1
	}
	if !v.known {
		return 0
	}
	return lo.CountBy(v.members, func(item models.ChannelMember) bool {
		return item.AccountID != sender
	})
}

func (v *StatusTracker) Members() []models.ChannelMember {
	return v.members
}

func (v *StatusTracker) Member(account string) (models.ChannelMember, bool) {
	return lo.Find(v.members, func(item models.ChannelMember) bool {
		return item.AccountID == account
	})
}

// Prepare fills in the recipient total of a message about to be stored and
// derives its status from the receipts it already carries.
func (v *StatusTracker) Prepare(message *models.Message) {
	if message.RecipientTotal <= 0 {
		message.RecipientTotal = v.RecipientTotal(message.SenderID)
	}
	message.Status = NextStatus(message.Status, StatusEvent{
		Kind:     StatusEventReceipts,
		Receipts: countReceipts(*message),
		Total:    message.RecipientTotal,
	})
}

func (v *StatusTracker) Apply(id string, event StatusEvent) bool {
	return v.store.Mutate(id, func(message *models.Message) bool {
		next := NextStatus(message.Status, event)
		if next == message.Status {
			return false
		}
		message.Status = next
		return true
	})
}

func (v *StatusTracker) Confirm(id string) bool {
	return v.Apply(id, StatusEvent{Kind: StatusEventConfirmed})
}

func (v *StatusTracker) Report(id string, status models.MessageStatus) bool {
	return v.Apply(id, StatusEvent{Kind: StatusEventReported, Target: status})
}

func (v *StatusTracker) Deliver(id string) bool {
	return v.Apply(id, StatusEvent{Kind: StatusEventDelivered})
}

// AddReceipt records that a reader has seen the message. Receipts of the
// sender itself are ignored.
func (v *StatusTracker) AddReceipt(id string, receipt models.Receipt) bool {
	return v.store.Mutate(id, func(message *models.Message) bool {
		if receipt.ReaderID == message.SenderID || message.HasReceipt(receipt.ReaderID) {
			return false
		}
		message.Receipts = append(message.Receipts, receipt)
		if message.RecipientTotal <= 0 {
			message.RecipientTotal = v.RecipientTotal(message.SenderID)
		}
		message.Status = NextStatus(message.Status, StatusEvent{
			Kind:     StatusEventReceipts,
			Receipts: countReceipts(*message),
			Total:    message.RecipientTotal,
		})
		return true
	})
}

// SetMembers replaces the member list and recomputes the recipient totals.
// Messages already read stay read; the others are measured against the new
// total, which can move them forward but never back.
func (v *StatusTracker) SetMembers(members []models.ChannelMember) {
	v.members = lo.UniqBy(members, func(item models.ChannelMember) string {
		return item.AccountID
	})
	v.known = true
	v.recompute()
}

// RemoveMembers drops departed accounts and recomputes the totals.
func (v *StatusTracker) RemoveMembers(accounts []string) {
	v.members = lo.Reject(v.members, func(item models.ChannelMember, _ int) bool {
		return lo.Contains(accounts, item.AccountID)
	})
	v.recompute()
}

func (v *StatusTracker) recompute() {
	for _, message := range v.store.List() {
		if message.Status == models.MessageStatusRead {
			continue
		}
		total := v.RecipientTotal(message.SenderID)
		v.store.Mutate(message.ID, func(message *models.Message) bool {
			if message.RecipientTotal == total {
				return false
			}
			message.RecipientTotal = total
			message.Status = NextStatus(message.Status, StatusEvent{
				Kind:     StatusEventReceipts,
				Receipts: countReceipts(*message),
				Total:    total,
			})
			return true
		})
	}
}

func countReceipts(message models.Message) int {
	return lo.CountBy(message.Receipts, func(item models.Receipt) bool {
		return item.ReaderID != message.SenderID
	})
}
