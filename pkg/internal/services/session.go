package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type SessionOptions struct {
	Account          string
	RequestTimeout   time.Duration
	PlaceholderTotal int
	StallTimeout     time.Duration
	TypingInterval   time.Duration
	FlushAnchors     string
	SweepTransfers   string
}

func (v SessionOptions) withDefaults() SessionOptions {
	v.RequestTimeout = lo.Ternary(v.RequestTimeout > 0, v.RequestTimeout, 10*time.Second)
	v.PlaceholderTotal = max(v.PlaceholderTotal, 1)
	v.StallTimeout = lo.Ternary(v.StallTimeout > 0, v.StallTimeout, 2*time.Minute)
	v.FlushAnchors = lo.Ternary(len(v.FlushAnchors) > 0, v.FlushAnchors, "@every 5s")
	v.SweepTransfers = lo.Ternary(len(v.SweepTransfers) > 0, v.SweepTransfers, "@every 30s")
	return v
}

// Session owns everything shared by the open conversations of one account:
// the real-time connection, the REST client, the reading anchors and the
// scheduled jobs.
type Session struct {
	options  SessionOptions
	realtime Realtime
	rest     RestAPI
	resolve  URLResolver
	anchors  *ReadingAnchors
	quartz   *cron.Cron

	conversations map[models.Scope]*Conversation
	lock          sync.Mutex
}

func NewSession(options SessionOptions, realtime Realtime, rest RestAPI, resolve URLResolver) *Session {
	return &Session{
		options:       options.withDefaults(),
		realtime:      realtime,
		rest:          rest,
		resolve:       resolve,
		anchors:       NewReadingAnchors(rest),
		quartz:        cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger))),
		conversations: make(map[models.Scope]*Conversation),
	}
}

func (v *Session) Account() string {
	return v.options.Account
}

func (v *Session) Realtime() Realtime {
	return v.realtime
}

// Start schedules the background jobs.
func (v *Session) Start() error {
	if _, err := v.quartz.AddFunc(v.options.FlushAnchors, v.FlushReadingAnchors); err != nil {
		return fmt.Errorf("unable schedule reading anchor flush: %v", err)
	}
	if _, err := v.quartz.AddFunc(v.options.SweepTransfers, v.DoStalledTransferCleanup); err != nil {
		return fmt.Errorf("unable schedule transfer cleanup: %v", err)
	}
	v.quartz.Start()
	return nil
}

// Open returns the conversation for scope, opening and loading it first when
// needed. A failed initial load is logged; the conversation still follows
// the real-time channel.
func (v *Session) Open(ctx context.Context, scope models.Scope) (*Conversation, error) {
	if scope.IsZero() {
		return nil, fmt.Errorf("scope is required")
	}
	if scope.IsDirect() && !scope.Includes(v.options.Account) {
		return nil, ErrForbidden
	}

	v.lock.Lock()
	if conversation, ok := v.conversations[scope]; ok {
		v.lock.Unlock()
		return conversation, nil
	}
	conversation := newConversation(v, scope)
	v.conversations[scope] = conversation
	v.lock.Unlock()

	conversation.bind()
	if err := conversation.Load(ctx); err != nil {
		log.Warn().Err(err).Str("scope", scope.String()).Msg("An error occurred when loading conversation...")
	}
	return conversation, nil
}

func (v *Session) Conversation(scope models.Scope) (*Conversation, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()
	conversation, ok := v.conversations[scope]
	return conversation, ok
}

func (v *Session) forget(conversation *Conversation) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.conversations[conversation.scope] == conversation {
		delete(v.conversations, conversation.scope)
	}
}

func (v *Session) snapshot() []*Conversation {
	v.lock.Lock()
	defer v.lock.Unlock()
	return lo.Values(v.conversations)
}

func (v *Session) FlushReadingAnchors() {
	ctx, cancel := context.WithTimeout(context.Background(), v.options.RequestTimeout)
	defer cancel()
	v.anchors.Flush(ctx)
}

// Close closes every conversation, persists the reading anchors and stops
// the scheduled jobs.
func (v *Session) Close() {
	for _, conversation := range v.snapshot() {
		conversation.Close()
	}
	<-v.quartz.Stop().Done()
	v.FlushReadingAnchors()
}
