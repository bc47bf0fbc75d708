package services

import (
	"slices"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

type Typer struct {
	UserID string
	Name   string
	Since  time.Time
}

// TypingPresence tracks who is typing in one conversation and throttles our
// own typing signals. Entries leave on an explicit stop or when the user
// leaves the conversation.
type TypingPresence struct {
	account string
	typers  map[string]Typer
	limiter *rate.Limiter
	now     func() time.Time
}

func NewTypingPresence(account string, interval time.Duration) *TypingPresence {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &TypingPresence{
		account: account,
		typers:  make(map[string]Typer),
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Update applies an inbound typing signal and reports whether the set changed.
func (v *TypingPresence) Update(user, name string, typing bool) bool {
	if user == v.account {
		return false
	}
	current, ok := v.typers[user]
	if !typing {
		if ok {
			delete(v.typers, user)
		}
		return ok
	}
	name = lo.Ternary(len(name) > 0, name, user)
	if ok && current.Name == name {
		return false
	}
	since := v.now()
	if ok {
		since = current.Since
	}
	v.typers[user] = Typer{UserID: user, Name: name, Since: since}
	return true
}

// Forget removes departed users.
func (v *TypingPresence) Forget(users []string) bool {
	changed := false
	for _, user := range users {
		if _, ok := v.typers[user]; ok {
			delete(v.typers, user)
			changed = true
		}
	}
	return changed
}

func (v *TypingPresence) Clear() {
	clear(v.typers)
}

// Typers lists the typing users, longest typing first.
func (v *TypingPresence) Typers() []Typer {
	out := lo.Values(v.typers)
	slices.SortFunc(out, func(a, b Typer) int {
		if c := a.Since.Compare(b.Since); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}

// Allow reports whether our own typing signal may go out now.
func (v *TypingPresence) Allow() bool {
	return v.limiter.AllowN(v.now(), 1)
}

func typingCommand(scope models.Scope) models.UnifiedCommand {
	return models.UnifiedCommand{
		Action:  models.CommandTyping,
		Payload: models.TypingPayload{Channel: scope},
	}
}
