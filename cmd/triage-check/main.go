// triage-check is a connectivity diagnostic: it starts a sample workflow
// against the configured backend, drives it to its first pause and prints
// what the backend answered.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/hitl"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
	"github.com/mstrand/ai-mailtriage/internal/transport"
)

func main() {
	backendURL := flag.String("backend", "http://127.0.0.1:9091", "backend base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "overall check timeout")
	flag.Parse()

	_ = gotenv.Load()

	logger := zap.NewNop()
	client := transport.NewClient(*backendURL,
		transport.WithAPIKey(os.Getenv("BACKEND_API_KEY")),
		transport.WithLogger(logger),
	)

	engine := hitl.NewEngine(client, session.NewStore(), logger,
		hitl.WithPolling(20, 500*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("Checking backend at %s ...\n", *backendURL)

	sess, err := engine.StartWorkflow(ctx, email.Context{
		Subject: "Connectivity check: lunch on Friday?",
		Sender:  "diagnostics@example.com",
		Body:    "Hi, just checking in. Are you free for lunch on Friday at noon?",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Workflow started: %s\n", sess.WorkflowID)
	fmt.Printf("Status: %s\n", sess.Status)

	if c := sess.Classification; c != nil {
		fmt.Printf("Classified as %s (%.0f%% confidence)\n", c.Category, c.Confidence*100)
		if c.ProposedReply != "" {
			fmt.Printf("Proposed reply: %s\n", c.ProposedReply)
		}
		for _, q := range c.ClarifyingQuestions {
			fmt.Printf("Clarifying question: %s\n", q)
		}
	}

	if in := sess.Interrupt; in != nil {
		fmt.Printf("Interrupt: %s\n", in.Type)
		fmt.Print("Available decisions:")
		for _, d := range in.AvailableDecisions {
			fmt.Printf(" %s", d)
		}
		fmt.Println()
	}

	switch sess.Status {
	case session.StatusAwaitingDecision, session.StatusCompleted:
		fmt.Println("OK: backend is reachable and the triage protocol works")
	default:
		fmt.Fprintf(os.Stderr, "FAIL: workflow settled in %s\n", sess.Status)
		os.Exit(1)
	}
}
