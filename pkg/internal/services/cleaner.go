package services

import (
	"github.com/rs/zerolog/log"
)

func (v *Session) DoStalledTransferCleanup() {
	conversations := v.snapshot()
	log.Debug().Int("conversations", len(conversations)).Dur("idle", v.options.StallTimeout).Msg("Now cleaning up stalled transfers...")

	for _, conversation := range conversations {
		conversation.sweep(v.options.StallTimeout)
	}
}
