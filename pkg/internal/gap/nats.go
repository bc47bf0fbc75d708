package gap

import (
	"context"
	"fmt"
	"sync"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NatsTransport reaches the gateway through a NATS server. Frames for the
// account arrive on <subject>.accounts.<account>; commands are published to
// <subject>.commands.<account>.
type NatsTransport struct {
	URL         string
	Subject     string
	Account     string
	AccessToken string
}

func (v *NatsTransport) inboxSubject() string {
	return fmt.Sprintf("%s.accounts.%s", v.Subject, v.Account)
}

func (v *NatsTransport) commandSubject() string {
	return fmt.Sprintf("%s.commands.%s", v.Subject, v.Account)
}

func (v *NatsTransport) Dial(ctx context.Context) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	link := &natsLink{
		subject: v.commandSubject(),
		inbox:   make(chan *nats.Msg, 256),
		closed:  make(chan struct{}),
	}

	opts := []nats.Option{
		nats.Name("chatsync"),
		// The connection manager owns reconnecting.
		nats.NoReconnect(),
		nats.Timeout(writeWait),
		nats.ClosedHandler(func(_ *nats.Conn) { link.markClosed() }),
	}
	if len(v.AccessToken) > 0 {
		opts = append(opts, nats.Token(v.AccessToken))
	}

	nc, err := nats.Connect(v.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	sub, err := nc.ChanSubscribe(v.inboxSubject(), link.inbox)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to '%s': %w", v.inboxSubject(), err)
	}

	link.nc = nc
	link.sub = sub
	return link, nil
}

type natsLink struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	inbox   chan *nats.Msg

	closed    chan struct{}
	closeOnce sync.Once
}

func (v *natsLink) markClosed() {
	v.closeOnce.Do(func() { close(v.closed) })
}

func (v *natsLink) Read() (models.UnifiedCommand, error) {
	for {
		select {
		case msg := <-v.inbox:
			cmd, err := models.ParseUnifiedCommand(msg.Data)
			if err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject).Msg("An error occurred when parsing frame, skipped...")
				continue
			}
			return cmd, nil
		case <-v.closed:
			return models.UnifiedCommand{}, ErrLinkClosed
		}
	}
}

func (v *natsLink) Write(cmd models.UnifiedCommand) error {
	if err := v.nc.Publish(v.subject, cmd.Marshal()); err != nil {
		return fmt.Errorf("failed to publish to '%s': %w", v.subject, err)
	}
	return v.nc.FlushTimeout(writeWait)
}

func (v *natsLink) Close() error {
	if v.sub != nil {
		_ = v.sub.Unsubscribe()
	}
	if v.nc != nil {
		v.nc.Close()
	}
	v.markClosed()
	return nil
}
