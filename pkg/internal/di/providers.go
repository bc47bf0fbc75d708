package di

import (
	"fmt"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/gap"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/spf13/viper"
)

// App is everything the console needs from one account session.
type App struct {
	Session    *services.Session
	Connection *gap.Connection
}

func ProvideSessionOptions() (services.SessionOptions, error) {
	account := viper.GetString("account.id")
	if len(account) == 0 {
		return services.SessionOptions{}, fmt.Errorf("account.id is required")
	}
	return services.SessionOptions{
		Account:          account,
		RequestTimeout:   viper.GetDuration("rest.timeout"),
		PlaceholderTotal: viper.GetInt("transfers.placeholder_total"),
		StallTimeout:     viper.GetDuration("transfers.stall_timeout"),
		TypingInterval:   viper.GetDuration("typing.interval"),
		FlushAnchors:     viper.GetString("schedules.flush_anchors"),
		SweepTransfers:   viper.GetString("schedules.sweep_transfers"),
	}, nil
}

func ProvideTransport(options services.SessionOptions) (gap.Transport, error) {
	switch driver := viper.GetString("realtime.driver"); driver {
	case "", "websocket":
		return &gap.WebsocketTransport{
			Endpoint:    viper.GetString("realtime.endpoint"),
			AccessToken: viper.GetString("security.access_token"),
		}, nil
	case "nats":
		return &gap.NatsTransport{
			URL:         viper.GetString("realtime.nats_url"),
			Subject:     viper.GetString("realtime.nats_subject"),
			Account:     options.Account,
			AccessToken: viper.GetString("security.access_token"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown realtime driver %q", driver)
	}
}

func ProvideConnection(transport gap.Transport) *gap.Connection {
	return gap.NewConnection(
		transport,
		viper.GetDuration("realtime.reconnect_min"),
		viper.GetDuration("realtime.reconnect_max"),
	)
}

func ProvideRestClient() *gap.RestClient {
	return &gap.RestClient{
		Endpoint:    viper.GetString("rest.endpoint"),
		AccessToken: viper.GetString("security.access_token"),
		Timeout:     viper.GetDuration("rest.timeout"),
	}
}

func ProvideURLResolver() services.URLResolver {
	return gap.NewAttachmentResolver(viper.GetString("attachments.endpoint"))
}
