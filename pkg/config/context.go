package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gcpassist/gcpassist/pkg/logger"
)

// ContextKey is an alias used for storing values in context
type ContextKey string

const ManagerCtxKey ContextKey = "config_manager"

// Manager holds the active configuration behind an atomic pointer.
type Manager struct {
	Service Service
	current atomic.Pointer[Config]
}

// NewManager creates a new configuration manager.
func NewManager(service Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{Service: service}
}

// Load loads configuration from sources and makes it current.
func (m *Manager) Load(ctx context.Context, sources ...Source) (*Config, error) {
	cfg, err := m.Service.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	m.current.Store(cfg)
	return cfg, nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// ContextWithManager stores the configuration manager in the context
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, ManagerCtxKey, m)
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// ManagerFromContext retrieves the manager from the context, falling back to
// a lazily loaded manager built from defaults and the environment.
func ManagerFromContext(ctx context.Context) *Manager {
	if ctx != nil {
		if m, ok := ctx.Value(ManagerCtxKey).(*Manager); ok && m != nil {
			return m
		}
	}
	return getDefaultManager(ctx)
}

// FromContext returns the active configuration for the provided context.
func FromContext(ctx context.Context) *Config {
	cfg := ManagerFromContext(ctx).Get()
	if cfg == nil {
		return Default()
	}
	return cfg
}

func getDefaultManager(ctx context.Context) *Manager {
	defaultManagerOnce.Do(func() {
		m := NewManager(NewService())
		if _, err := m.Load(ctx); err != nil {
			logger.FromContext(ctx).Warn("failed to load default configuration, using built-in defaults", "error", err)
		}
		defaultManager = m
	})
	return defaultManager
}
