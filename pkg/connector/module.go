package connector

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/DBCDK/opencat-business-connector/pkg/config"
)

// ObserverGroup is the fx value group collecting extra call observers.
const ObserverGroup = "opencat_call_observers"

// ModuleParams are the dependencies of the connector module
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.ConnectorConfig
	Logger    *zap.Logger    `optional:"true"`
	Observers []CallObserver `group:"opencat_call_observers"`
}

// Module provides a shared *Connector built from *config.ConnectorConfig and
// closes it when the application stops.
func Module() fx.Option {
	return fx.Module("opencat_business_connector",
		fx.Provide(ProvideConnector),
	)
}

// ProvideConnector builds the connector and registers its shutdown hook.
func ProvideConnector(p ModuleParams) (*Connector, error) {
	opts := make([]Option, 0, len(p.Observers))
	for _, o := range p.Observers {
		opts = append(opts, WithObserver(o))
	}
	c, err := NewFromConfig(p.Config, p.Logger, opts...)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
	return c, nil
}
