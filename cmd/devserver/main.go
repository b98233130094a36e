// The devserver is a self-contained reference backend for the triage
// gateway. It implements the workflow wire protocol with either a rule-based
// classifier or, when OPENAI_API_KEY is set, the OpenAI classifier.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/classify"
	"github.com/mstrand/ai-mailtriage/internal/devserver"
	"github.com/mstrand/ai-mailtriage/pkg/utils"
)

func main() {
	host := flag.String("host", "0.0.0.0", "listen host")
	listenPort := flag.Int("port", 9091, "listen port")
	model := flag.String("model", "gpt-4o-mini", "OpenAI model for classification")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	_ = gotenv.Load()

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      *logLevel,
		OutputPath: "stdout",
		Format:     "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var classifier port.EmailClassifier
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		logger.Info("Using OpenAI classifier", zap.String("model", *model))
		classifier = classify.NewClassifier(apiKey, *model, 0.2, logger)
	} else {
		logger.Info("Using rule-based classifier, set OPENAI_API_KEY for the OpenAI one")
		classifier = classify.NewHeuristic()
	}

	cfg := devserver.DefaultServerConfig()
	cfg.Host = *host
	cfg.Port = *listenPort

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := devserver.NewServer(cfg, classifier, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Devserver exited with error", zap.Error(err))
	}

	logger.Info("Devserver exited successfully")
}
