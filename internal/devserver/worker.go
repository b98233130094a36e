package devserver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
	"github.com/mstrand/ai-mailtriage/internal/protocol"
)

const (
	defaultWorkerCount   = 2
	defaultQueueSize     = 64
	defaultAutoThreshold = 0.9
)

// classifyJob is one unit of classification work. Continuations re-enqueue
// the workflow with the extra context the user supplied.
type classifyJob struct {
	workflowID string
	answers    string
	forceReply bool
}

// ClassifyWorker consumes queued workflows, runs the classifier and moves each
// workflow to its next pause or terminal state.
type ClassifyWorker struct {
	store      *stateStore
	classifier port.EmailClassifier
	jobs       chan classifyJob
	logger     *zap.Logger

	workerCount   int
	autoThreshold float64
	latency       time.Duration

	mu             sync.Mutex
	isRunning      bool
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	processedCount int
}

// NewClassifyWorker creates a classification worker pool.
func NewClassifyWorker(store *stateStore, classifier port.EmailClassifier, logger *zap.Logger) *ClassifyWorker {
	return &ClassifyWorker{
		store:         store,
		classifier:    classifier,
		jobs:          make(chan classifyJob, defaultQueueSize),
		logger:        logger,
		workerCount:   defaultWorkerCount,
		autoThreshold: defaultAutoThreshold,
	}
}

// SetLatency adds a fixed delay before each classification to simulate a slow
// backend.
func (w *ClassifyWorker) SetLatency(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latency = d
}

// SetAutoCompleteThreshold overrides the confidence bound above which ignore
// classifications complete without an interrupt.
func (w *ClassifyWorker) SetAutoCompleteThreshold(threshold float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.autoThreshold = threshold
}

// Name identifies the worker in logs.
func (w *ClassifyWorker) Name() string {
	return "classify-worker"
}

// Start launches the worker goroutines.
func (w *ClassifyWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("Classify worker started",
		zap.Int("worker_count", w.workerCount),
		zap.Int("queue_size", cap(w.jobs)))

	for i := 0; i < w.workerCount; i++ {
		w.wg.Add(1)
		go w.loop()
	}
	return nil
}

// Stop signals the workers and waits for them to drain.
func (w *ClassifyWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	w.logger.Info("Classify worker stopped",
		zap.Int("processed_count", w.processedCount))
	return nil
}

// Enqueue schedules a workflow for classification.
func (w *ClassifyWorker) Enqueue(j classifyJob) error {
	select {
	case w.jobs <- j:
		return nil
	default:
		return fmt.Errorf("classification queue full")
	}
}

func (w *ClassifyWorker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			w.process(j)
			w.mu.Lock()
			w.processedCount++
			w.mu.Unlock()
		}
	}
}

func (w *ClassifyWorker) process(j classifyJob) {
	w.mu.Lock()
	latency := w.latency
	threshold := w.autoThreshold
	w.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		select {
		case <-w.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	st, ok := w.store.get(j.workflowID)
	if !ok {
		w.logger.Warn("Workflow vanished before classification",
			zap.String("workflow_id", j.workflowID))
		return
	}

	em := st.Email
	if j.answers != "" {
		em.Body = em.Body + "\n\nAdditional context from the recipient:\n" + j.answers
	}

	result, err := w.classifier.Classify(w.ctx, em)
	if err != nil {
		w.logger.Error("Classification failed",
			zap.String("workflow_id", j.workflowID),
			zap.Error(err))
		w.store.mutate(j.workflowID, func(st *workflowState) {
			st.Status = statusError
			st.Error = fmt.Sprintf("classification failed: %v", err)
		})
		return
	}

	if j.forceReply && result.Category == session.CategoryIgnore {
		result.Category = session.CategoryAutoReply
		if result.ProposedReply == "" {
			result.ProposedReply = draftFallbackReply(st.Email.Sender)
		}
		result.Reasoning = "recipient requested a reply for this email"
	}

	// Once the recipient has answered, the workflow must not ask again; the
	// continuation always lands on a reply draft.
	if j.answers != "" && result.Category == session.CategoryInformationNeeded {
		result.Category = session.CategoryAutoReply
		if result.ProposedReply == "" {
			result.ProposedReply = draftFallbackReply(st.Email.Sender)
		}
		result.Reasoning = "reply drafted from the recipient's answers"
		result.ClarifyingQuestions = nil
	}

	w.settle(j.workflowID, result, threshold)
}

// settle records the classification outcome: either the workflow completes on
// its own or it pauses on the interrupt matching the category.
func (w *ClassifyWorker) settle(workflowID string, result *port.ClassificationResult, threshold float64) {
	w.store.mutate(workflowID, func(st *workflowState) {
		st.Classification = result

		switch result.Category {
		case session.CategoryIgnore:
			if result.Confidence >= threshold {
				st.Status = statusCompleted
				st.CompletedAt = time.Now()
				st.Result = &protocol.ResultPayload{FinalAction: "ignored"}
				st.Interrupt = nil
				return
			}
			st.Status = statusAwaitingDecision
			st.Interrupt = &protocol.InterruptPayload{
				Type:               "ignore_approval_needed",
				AvailableDecisions: []string{"approve_ignore", "process_instead"},
			}

		case session.CategoryAutoReply:
			st.Status = statusAwaitingDecision
			st.Interrupt = &protocol.InterruptPayload{
				Type:               "auto_reply_approval_needed",
				AvailableDecisions: []string{"approve_send", "edit_reply", "convert_to_ignore"},
			}

		case session.CategoryInformationNeeded:
			st.Status = statusAwaitingDecision
			st.Interrupt = &protocol.InterruptPayload{
				Type:               "information_needed",
				AvailableDecisions: []string{"provide_answers", "custom_reply", "convert_to_ignore"},
			}
		}
	})

	w.logger.Info("Workflow classified",
		zap.String("workflow_id", workflowID),
		zap.String("category", string(result.Category)),
		zap.Float64("confidence", result.Confidence))
}

func draftFallbackReply(sender string) string {
	name := sender
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return fmt.Sprintf("Hi %s,\n\nThanks for your email. I will take a look and get back to you shortly.\n\nBest regards", name)
}
