package relay

import (
	"time"

	"github.com/markb/chatlite/internal/auth"
	"github.com/markb/chatlite/internal/observability"
	"github.com/markb/chatlite/internal/store"
)

// Config holds relay tuning knobs.
type Config struct {
	// SendInterval is the minimum gap between accepted chat sends per
	// connection.
	SendInterval time.Duration

	// MaxMessageLen caps chat message text, in runes.
	MaxMessageLen int

	// SendBuffer is the per-connection outbound queue size.
	SendBuffer int
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		SendInterval:  650 * time.Millisecond,
		MaxMessageLen: 2000,
		SendBuffer:    256,
	}
}

func (c *Config) norm() {
	if c.SendInterval <= 0 {
		c.SendInterval = 650 * time.Millisecond
	}
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = 2000
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
}

// Service ties the relay together: handshake authentication, the hub,
// and the storage collaborator.
type Service struct {
	hub      *Hub
	store    store.Store
	verifier *auth.Verifier
}

// NewService creates a relay service. metrics may be nil.
func NewService(st store.Store, verifier *auth.Verifier, cfg Config, metrics *observability.Metrics) *Service {
	cfg.norm()
	return &Service{
		hub:      NewHub(st, cfg, metrics),
		store:    st,
		verifier: verifier,
	}
}

// Hub returns the connection hub.
func (s *Service) Hub() *Hub { return s.hub }

// Stats returns relay statistics.
func (s *Service) Stats() HubStats { return s.hub.Stats() }

// Shutdown closes every live connection.
func (s *Service) Shutdown() { s.hub.CloseAll() }
