package internal

import "github.com/willingning/minote-sync/internal/gateway"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	gateway gateway.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithGateway overrides the remote gateway, used by tests and by
// front ends that manage their own session handling.
func WithGateway(gw gateway.Client) Option {
	return func(a *application) {
		a.gateway = gw
	}
}
