package services

import (
	"strings"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const provisionalPrefix = "local:"

// NewProvisionalID mints a time ordered id for a message not yet known to the
// server.
func NewProvisionalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return provisionalPrefix + uuid.NewString()
	}
	return provisionalPrefix + id.String()
}

func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// ProvisionalResolver replaces provisional entries with their confirmed
// server counterpart. It remembers every pair it saw so callers holding an
// old id can still find the message.
type ProvisionalResolver struct {
	store   *TimelineStore
	aliases map[string]string
}

func NewProvisionalResolver(store *TimelineStore) *ProvisionalResolver {
	return &ProvisionalResolver{
		store:   store,
		aliases: make(map[string]string),
	}
}

// Canonical returns the id the message is stored under now.
func (v *ProvisionalResolver) Canonical(id string) string {
	if next, ok := v.aliases[id]; ok {
		return next
	}
	return id
}

// Lookup finds a message by its current or any of its former ids.
func (v *ProvisionalResolver) Lookup(id string) (models.Message, bool) {
	return v.store.Get(v.Canonical(id))
}

// Resolve reconciles provisionalID with serverID. The confirmed record, when
// present, is merged as the most recent source. It reports whether the store
// changed; calling it again with the same pair is a no-op.
func (v *ProvisionalResolver) Resolve(provisionalID, serverID string, confirmed *models.Message) bool {
	if len(provisionalID) == 0 || len(serverID) == 0 {
		return false
	}
	if provisionalID != serverID {
		v.aliases[provisionalID] = serverID
	}

	local, ok := v.store.Get(provisionalID)
	if !ok {
		log.Debug().
			Str("provisional", provisionalID).
			Str("id", serverID).
			Msg("Provisional message already reconciled or gone, skipped...")
		return false
	}
	if provisionalID == serverID {
		if confirmed == nil {
			return false
		}
		_, err := v.store.Upsert(*confirmed)
		return err == nil
	}

	merged := local
	if remote, ok := v.store.Get(serverID); ok {
		merged = MergeMessage(merged, remote)
	}
	if confirmed != nil {
		merged = MergeMessage(merged, *confirmed)
	}
	merged.ID = serverID

	return v.store.Rename(provisionalID, serverID, merged)
}
