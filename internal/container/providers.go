package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/dispatcher"
	"github.com/mstrand/ai-mailtriage/internal/application/hitl"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
	"github.com/mstrand/ai-mailtriage/internal/history"
	httpiface "github.com/mstrand/ai-mailtriage/internal/interfaces/http"
	"github.com/mstrand/ai-mailtriage/internal/notify"
	"github.com/mstrand/ai-mailtriage/internal/report"
	"github.com/mstrand/ai-mailtriage/internal/repository"
	"github.com/mstrand/ai-mailtriage/internal/storage"
	"github.com/mstrand/ai-mailtriage/internal/transport"
	"github.com/mstrand/ai-mailtriage/pkg/database"
)

// initDatabase opens the SQLite connection, applies migrations and builds
// the history repository.
func (c *Container) initDatabase(ctx context.Context) error {
	db, err := database.Open(database.Config{
		Path:            c.config.History.DatabasePath,
		MaxOpenConns:    c.config.History.MaxOpenConns,
		MaxIdleConns:    c.config.History.MaxIdleConns,
		ConnMaxLifetime: c.config.History.ConnMaxLifetime,
	}, c.logger)
	if err != nil {
		return err
	}

	migrator := database.NewMigrator(db, c.logger)
	if err := migrator.Run(ctx, c.config.History.MigrationsDir); err != nil {
		db.Close()
		return fmt.Errorf("run migrations: %w", err)
	}

	c.db = db
	c.history = repository.NewHistoryRepository(db, c.logger)
	return nil
}

// initTransport builds the backend workflow client.
func (c *Container) initTransport() {
	c.transport = transport.NewClient(c.config.Backend.BaseURL,
		transport.WithTimeout(c.config.Backend.Timeout),
		transport.WithAPIKey(c.config.Backend.APIKey),
		transport.WithLogger(c.logger.Named("transport")),
	)
}

// initStorage builds the report archive storage and the exporter.
func (c *Container) initStorage() {
	c.fileStorage = storage.NewLocalFileStorage(c.config.History.ReportsDir, c.logger)
	c.exporter = report.NewExporter(c.fileStorage, c.logger.Named("report"))
}

// initEngine builds the dispatcher, the decision engine with its event
// publisher, and registers the history recorder and notifier subscribers.
func (c *Container) initEngine() error {
	c.dispatcher = dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapKVLogger{logger: c.logger.Named("dispatcher")}),
	)
	c.publisher = hitl.NewPublisher(c.dispatcher)

	c.store = session.NewStore()
	c.engine = hitl.NewEngine(c.transport, c.store, c.logger.Named("engine"),
		hitl.WithObserver(c.publisher),
		hitl.WithPolling(c.config.Engine.PollAttempts, c.config.Engine.PollInterval),
	)

	recorder := history.NewRecorder(c.history, c.db, c.logger.Named("history"))
	recorder.Register(c.dispatcher)

	if c.config.NotificationsEnabled() {
		c.messenger = notify.NewLarkMessenger(notify.LarkConfig{
			AppID:     c.config.Lark.AppID,
			AppSecret: c.config.Lark.AppSecret,
		}, c.logger.Named("notify"))
	} else {
		c.logger.Info("Notifications disabled, no messenger credentials configured")
		c.messenger = notify.NopSender{}
	}
	notifier := notify.NewNotifier(c.messenger, c.config.Lark.ChatID, c.logger.Named("notify"))
	notifier.Register(c.dispatcher)

	return nil
}

// initServer builds the HTTP gateway.
func (c *Container) initServer() {
	handlers := httpiface.NewHandlers(c.engine, c.history, c.exporter, c.publisher,
		c.logger.Named("http"))

	c.server = httpiface.NewServer(httpiface.ServerConfig{
		Host:          c.config.Server.Host,
		Port:          c.config.Server.Port,
		ReadTimeout:   c.config.Server.ReadTimeout,
		WriteTimeout:  c.config.Server.WriteTimeout,
		AllowedOrigin: c.config.Server.AllowedOrigin,
	}, handlers, c.logger.Named("http"))
}

// zapKVLogger adapts zap.Logger to the dispatcher's key-value logger.
type zapKVLogger struct {
	logger *zap.Logger
}

func (a *zapKVLogger) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, toZapFields(keysAndValues...)...)
}

func (a *zapKVLogger) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, toZapFields(keysAndValues...)...)
}

func toZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
