// Package container wires the gateway's components together and manages
// their lifecycle: ordered initialization and reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/dispatcher"
	"github.com/mstrand/ai-mailtriage/internal/application/hitl"
	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/config"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
	httpiface "github.com/mstrand/ai-mailtriage/internal/interfaces/http"
	"github.com/mstrand/ai-mailtriage/internal/report"
	"github.com/mstrand/ai-mailtriage/pkg/database"
)

// Container manages all application dependencies and lifecycle.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	db      *database.DB
	history port.HistoryRepository

	// Infrastructure - External
	transport port.Transport
	messenger port.MessageSender

	// Infrastructure - Storage
	fileStorage port.FileStorage
	exporter    *report.Exporter

	// Application
	dispatcher dispatcher.Dispatcher
	publisher  *hitl.Publisher
	store      *session.Store
	engine     *hitl.Engine

	// Interfaces
	server *httpiface.Server

	// Lifecycle
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and the history repository
// 2. Backend transport client
// 3. Storage and report exporter
// 4. Dispatcher, engine and event subscribers
// 5. HTTP gateway
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(c.ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	c.initTransport()
	c.logger.Info("Backend transport initialized")

	c.initStorage()
	c.logger.Info("Storage initialized")

	if err := c.initEngine(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	c.logger.Info("Decision engine initialized")

	c.initServer()
	c.logger.Info("HTTP gateway initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			c.logger.Error("Failed to stop HTTP server", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
	}

	// The dispatcher waits for in-flight async subscribers, so the history
	// recorder finishes its writes before the database goes away.
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.db != nil {
		if err := c.db.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.engine != nil {
		status.Components["engine"] = ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("tracked sessions: %d", len(c.engine.Sessions())),
		}
	} else {
		status.Components["engine"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	return status
}

// Getters for accessing container components

// Engine returns the decision engine.
func (c *Container) Engine() *hitl.Engine {
	return c.engine
}

// History returns the history repository.
func (c *Container) History() port.HistoryRepository {
	return c.history
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Server returns the HTTP gateway.
func (c *Container) Server() *httpiface.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
