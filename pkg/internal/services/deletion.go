package services

import (
	"fmt"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DeletionManager checks and applies scoped deletions and keeps the bulk
// selection of one conversation.
type DeletionManager struct {
	account  string
	store    *TimelineStore
	resolver *ProvisionalResolver
	tracker  *StatusTracker

	selection map[string]struct{}
}

func NewDeletionManager(account string, store *TimelineStore, resolver *ProvisionalResolver, tracker *StatusTracker) *DeletionManager {
	return &DeletionManager{
		account:   account,
		store:     store,
		resolver:  resolver,
		tracker:   tracker,
		selection: make(map[string]struct{}),
	}
}

// Prepare builds the persistence request for a scoped deletion. Ids the
// server does not know yet are left out. Global deletion is only allowed
// for the author of every message or a community owner.
func (v *DeletionManager) Prepare(ids []string, mode models.DeleteMode) (models.DeleteMessagesRequest, error) {
	req := models.DeleteMessagesRequest{Channel: v.store.Scope(), Mode: mode}
	if mode != models.DeleteModeLocal && mode != models.DeleteModeGlobal {
		return req, fmt.Errorf("unknown delete mode %q", mode)
	}

	req.IDs = lo.Uniq(lo.FilterMap(ids, func(item string, _ int) (string, bool) {
		id := v.resolver.Canonical(item)
		if IsProvisionalID(id) {
			log.Debug().Str("id", id).Msg("Message is not confirmed yet, skipped deletion...")
			return "", false
		}
		return id, true
	}))
	if len(req.IDs) == 0 {
		return req, ErrEmptySelection
	}

	if mode == models.DeleteModeGlobal && !v.canDeleteGlobally(req.IDs) {
		return req, ErrForbidden
	}
	return req, nil
}

func (v *DeletionManager) canDeleteGlobally(ids []string) bool {
	if !v.store.Scope().IsDirect() {
		if member, ok := v.tracker.Member(v.account); ok && member.PowerLevel >= models.PowerLevelOwner {
			return true
		}
	}
	return lo.EveryBy(ids, func(item string) bool {
		message, ok := v.store.Get(item)
		return ok && message.SenderID == v.account
	})
}

// Apply removes the ids once the server accepted the deletion, and when a
// deletion broadcast arrives.
func (v *DeletionManager) Apply(ids []string) int {
	for _, id := range ids {
		delete(v.selection, id)
	}
	return v.store.Remove(ids, v.store.Scope())
}

func (v *DeletionManager) Select(id string) bool {
	id = v.resolver.Canonical(id)
	if !v.store.Has(id) {
		return false
	}
	v.selection[id] = struct{}{}
	return true
}

func (v *DeletionManager) Deselect(id string) {
	delete(v.selection, v.resolver.Canonical(id))
}

// Toggle flips the selection of id and reports whether it is selected now.
func (v *DeletionManager) Toggle(id string) bool {
	id = v.resolver.Canonical(id)
	if _, ok := v.selection[id]; ok {
		delete(v.selection, id)
		return false
	}
	return v.Select(id)
}

// Selected lists the selection in timeline order. Entries that left the
// timeline are dropped from the selection.
func (v *DeletionManager) Selected() []string {
	var out []string
	for _, message := range v.store.List() {
		if _, ok := v.selection[message.ID]; ok {
			out = append(out, message.ID)
		}
	}
	for id := range v.selection {
		if !v.store.Has(id) {
			delete(v.selection, id)
		}
	}
	return out
}

// TakeSelection returns the selection and clears it.
func (v *DeletionManager) TakeSelection() []string {
	out := v.Selected()
	clear(v.selection)
	return out
}
