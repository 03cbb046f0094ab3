// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/shelfscan/internal/ingest"
	"github.com/jackzampolin/shelfscan/internal/registry"
	"github.com/jackzampolin/shelfscan/internal/results"
	"github.com/jackzampolin/shelfscan/internal/session"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Dispatcher   *ingest.Dispatcher
	Store        *results.Store
	ConnRegistry *registry.Registry
	Hub          *session.Hub
	Logger       *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DispatcherFrom extracts the ingest dispatcher from context.
func DispatcherFrom(ctx context.Context) *ingest.Dispatcher {
	if s := ServicesFrom(ctx); s != nil {
		return s.Dispatcher
	}
	return nil
}

// StoreFrom extracts the result store from context.
func StoreFrom(ctx context.Context) *results.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// ConnRegistryFrom extracts the connection registry from context.
func ConnRegistryFrom(ctx context.Context) *registry.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConnRegistry
	}
	return nil
}

// HubFrom extracts the session hub from context.
func HubFrom(ctx context.Context) *session.Hub {
	if s := ServicesFrom(ctx); s != nil {
		return s.Hub
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
