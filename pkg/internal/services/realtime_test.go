package services

import (
	"sync"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/samber/lo"
)

type fakeSubscription struct {
	cancel func()
}

func (v *fakeSubscription) Unsubscribe() { v.cancel() }

// fakeRealtime records emitted frames and lets tests push inbound frames to
// the subscribers of a scope.
type fakeRealtime struct {
	connected bool
	emitErr   error
	emitted   []models.UnifiedCommand

	subscribers    map[int]func(cmd models.UnifiedCommand)
	scopes         map[int]models.Scope
	statusHandlers map[int]func(status models.ConnectionStatus)
	seed           int
	lock           sync.Mutex
}

func newFakeRealtime(connected bool) *fakeRealtime {
	return &fakeRealtime{
		connected:      connected,
		subscribers:    make(map[int]func(cmd models.UnifiedCommand)),
		scopes:         make(map[int]models.Scope),
		statusHandlers: make(map[int]func(status models.ConnectionStatus)),
	}
}

func (v *fakeRealtime) IsConnected() bool {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.connected
}

func (v *fakeRealtime) Status() models.ConnectionStatus {
	if v.IsConnected() {
		return models.ConnectionConnected
	}
	return models.ConnectionDisconnected
}

func (v *fakeRealtime) Emit(cmd models.UnifiedCommand) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if !v.connected {
		return &TransportError{Op: cmd.Action, Err: ErrNotConnected}
	}
	if v.emitErr != nil {
		return v.emitErr
	}
	v.emitted = append(v.emitted, cmd)
	return nil
}

func (v *fakeRealtime) Subscribe(scope models.Scope, handler func(cmd models.UnifiedCommand)) Subscription {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.seed++
	id := v.seed
	v.subscribers[id] = handler
	v.scopes[id] = scope
	return &fakeSubscription{cancel: func() {
		v.lock.Lock()
		defer v.lock.Unlock()
		delete(v.subscribers, id)
		delete(v.scopes, id)
	}}
}

func (v *fakeRealtime) OnStatus(handler func(status models.ConnectionStatus)) Subscription {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.seed++
	id := v.seed
	v.statusHandlers[id] = handler
	return &fakeSubscription{cancel: func() {
		v.lock.Lock()
		defer v.lock.Unlock()
		delete(v.statusHandlers, id)
	}}
}

func (v *fakeRealtime) push(scope models.Scope, action string, payload any) {
	v.lock.Lock()
	var handlers []func(cmd models.UnifiedCommand)
	for id, handler := range v.subscribers {
		if v.scopes[id] == scope {
			handlers = append(handlers, handler)
		}
	}
	v.lock.Unlock()

	for _, handler := range handlers {
		handler(models.UnifiedCommand{Action: action, Payload: payload})
	}
}

func (v *fakeRealtime) setConnected(connected bool) {
	v.lock.Lock()
	v.connected = connected
	handlers := lo.Values(v.statusHandlers)
	v.lock.Unlock()

	status := models.ConnectionDisconnected
	if connected {
		status = models.ConnectionConnected
	}
	for _, handler := range handlers {
		handler(status)
	}
}

func (v *fakeRealtime) sent(action string) []models.UnifiedCommand {
	v.lock.Lock()
	defer v.lock.Unlock()
	return lo.Filter(v.emitted, func(item models.UnifiedCommand, _ int) bool {
		return item.Action == action
	})
}

func (v *fakeRealtime) subscriberCount() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return len(v.subscribers)
}
