//go:build wireinject
// +build wireinject

package di

import (
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/gap"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/google/wire"
)

func InitializeApp() (*App, error) {
	wire.Build(
		ProvideSessionOptions,
		ProvideTransport,
		ProvideConnection,
		ProvideRestClient,
		ProvideURLResolver,
		wire.Bind(new(services.Realtime), new(*gap.Connection)),
		wire.Bind(new(services.RestAPI), new(*gap.RestClient)),
		services.NewSession,
		wire.Struct(new(App), "*"),
	)
	return &App{}, nil
}
