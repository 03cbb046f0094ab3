package endpoints

import "github.com/jackzampolin/shelfscan/internal/api"

// Config carries per-endpoint settings that don't come from the service
// context.
type Config struct {
	MaxUploadBytes int64
}

// All returns every gateway endpoint.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&ScanEndpoint{MaxUploadBytes: cfg.MaxUploadBytes},
		&ResultsEndpoint{},
		NewWSEndpoint(),
	}
}
