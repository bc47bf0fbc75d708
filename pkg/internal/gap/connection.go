package gap

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Link is one established connection to the messaging gateway.
type Link interface {
	// Read blocks until the next frame arrives or the link breaks.
	Read() (models.UnifiedCommand, error)
	Write(cmd models.UnifiedCommand) error
	Close() error
}

// Transport opens links to the gateway.
type Transport interface {
	Dial(ctx context.Context) (Link, error)
}

type subscriber struct {
	scope   models.Scope
	handler func(cmd models.UnifiedCommand)
}

// Connection is the process-wide real-time channel. It keeps one link open,
// reconnecting with backoff, and fans inbound frames out to the subscribers
// of their scope.
type Connection struct {
	transport  Transport
	minBackoff time.Duration
	maxBackoff time.Duration

	status models.ConnectionStatus
	link   Link

	subscribers    map[uint64]subscriber
	statusHandlers map[uint64]func(status models.ConnectionStatus)
	seed           uint64

	lock      sync.RWMutex
	writeLock sync.Mutex
}

func NewConnection(transport Transport, minBackoff, maxBackoff time.Duration) *Connection {
	minBackoff = lo.Ternary(minBackoff > 0, minBackoff, time.Second)
	return &Connection{
		transport:      transport,
		minBackoff:     minBackoff,
		maxBackoff:     max(maxBackoff, minBackoff),
		status:         models.ConnectionDisconnected,
		subscribers:    make(map[uint64]subscriber),
		statusHandlers: make(map[uint64]func(status models.ConnectionStatus)),
	}
}

func (v *Connection) IsConnected() bool {
	return v.Status() == models.ConnectionConnected
}

func (v *Connection) Status() models.ConnectionStatus {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.status
}

func (v *Connection) setStatus(status models.ConnectionStatus, link Link) {
	v.lock.Lock()
	changed := v.status != status
	v.status = status
	v.link = link
	handlers := lo.Values(v.statusHandlers)
	v.lock.Unlock()

	if !changed {
		return
	}
	for _, handler := range handlers {
		handler(status)
	}
}

// Run keeps the connection alive until ctx is done.
func (v *Connection) Run(ctx context.Context) {
	backoff := v.minBackoff
	for {
		v.setStatus(models.ConnectionReconnecting, nil)
		link, err := v.transport.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn().Err(err).Dur("retry", backoff).Msg("An error occurred when connecting to real-time channel...")
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, v.maxBackoff)
				continue
			case <-ctx.Done():
			}
			break
		}

		backoff = v.minBackoff
		v.setStatus(models.ConnectionConnected, link)
		log.Info().Msg("Real-time channel connected.")

		stop := context.AfterFunc(ctx, func() { _ = link.Close() })
		v.consume(link)
		stop()
		_ = link.Close()

		if ctx.Err() != nil {
			break
		}
		log.Warn().Msg("Real-time channel lost, reconnecting...")
	}

	v.setStatus(models.ConnectionDisconnected, nil)
}

func (v *Connection) consume(link Link) {
	for {
		cmd, err := link.Read()
		if err != nil {
			log.Debug().Err(err).Msg("Real-time link closed.")
			return
		}
		v.dispatch(cmd)
	}
}

func (v *Connection) dispatch(cmd models.UnifiedCommand) {
	var target models.EventChannel
	if cmd.Payload != nil {
		if err := models.FitStruct(cmd.Payload, &target); err != nil {
			log.Warn().Err(err).Str("action", cmd.Action).Msg("An error occurred when routing frame...")
			return
		}
	}

	v.lock.RLock()
	handlers := lo.FilterMap(lo.Values(v.subscribers), func(item subscriber, _ int) (func(cmd models.UnifiedCommand), bool) {
		return item.handler, target.Channel.IsZero() || item.scope == target.Channel
	})
	v.lock.RUnlock()

	for _, handler := range handlers {
		handler(cmd)
	}
}

// Emit writes cmd on the current link. Failing to reach the gateway is
// reported as a *services.TransportError.
func (v *Connection) Emit(cmd models.UnifiedCommand) error {
	v.lock.RLock()
	link, status := v.link, v.status
	v.lock.RUnlock()

	if status != models.ConnectionConnected || link == nil {
		return &services.TransportError{Op: cmd.Action, Err: services.ErrNotConnected}
	}

	v.writeLock.Lock()
	defer v.writeLock.Unlock()
	if err := link.Write(cmd); err != nil {
		_ = link.Close()
		return &services.TransportError{Op: cmd.Action, Err: err}
	}
	return nil
}

type handle struct {
	once   sync.Once
	cancel func()
}

func (v *handle) Unsubscribe() {
	v.once.Do(v.cancel)
}

// Subscribe delivers the frames of scope to handler. Frames without a
// channel, such as errors, go to every subscriber.
func (v *Connection) Subscribe(scope models.Scope, handler func(cmd models.UnifiedCommand)) services.Subscription {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.seed++
	id := v.seed
	v.subscribers[id] = subscriber{scope: scope, handler: handler}
	return &handle{cancel: func() {
		v.lock.Lock()
		defer v.lock.Unlock()
		delete(v.subscribers, id)
	}}
}

// OnStatus calls handler whenever the connection status changes.
func (v *Connection) OnStatus(handler func(status models.ConnectionStatus)) services.Subscription {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.seed++
	id := v.seed
	v.statusHandlers[id] = handler
	return &handle{cancel: func() {
		v.lock.Lock()
		defer v.lock.Unlock()
		delete(v.statusHandlers, id)
	}}
}

// ErrLinkClosed is returned by links read after Close.
var ErrLinkClosed = errors.New("link was closed")
