// Package transport builds the broker connection a Service runs on from the
// service configuration.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/procflow/internal/runtime/config"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	publictransport "github.com/drblury/procflow/transport"

	_ "github.com/drblury/procflow/transport/transports"
)

// Transport is a publisher, subscriber and capability set.
type Transport = publictransport.Transport

// Capabilities describes the delivery guarantees of a transport.
type Capabilities = publictransport.Capabilities

// Factory abstracts how a Service obtains its transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory builds transports from the default registry, which holds
// every built-in broker.
func DefaultFactory() Factory {
	return RegistryFactory(publictransport.DefaultRegistry)
}

// RegistryFactory builds transports from reg.
func RegistryFactory(reg *publictransport.Registry) Factory {
	return FactoryFunc(func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		if conf == nil {
			return Transport{}, errspkg.ErrConfigRequired
		}
		return reg.Build(ctx, conf, logger)
	})
}
