// Package worker scores applications submitted on the event bus in async mode.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

// GlobalTenant is the subscription tenant used when no tenants are configured.
// Messages carry their own tenant in that case.
const GlobalTenant = "_global"

// Message outcomes reported to the Recorder.
const (
	OutcomeScored   = "scored"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder receives per-message outcomes.
type Recorder interface {
	ObserveWorkerMessage(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveWorkerMessage(string) {}

// Worker consumes TopicApplicationSubmitted, scores each application and
// publishes the decision plus any applicant notification.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	processor *underwriting.Processor
	recorder  Recorder
	evalTTL   time.Duration

	mu            sync.Mutex
	subscriptions []domain.Subscription
	jobs          chan job
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

type job struct {
	tenantID string
	msg      *domain.Message
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs lists the tenants to subscribe for; empty uses GlobalTenant.
	TenantIDs []string

	// WorkerCount is the number of concurrent scoring goroutines.
	WorkerCount int
}

// Route returns the bus tenant a submission for tenantID is published
// under so that a worker started with c receives it.
func (c Config) Route(tenantID string) string {
	if len(c.TenantIDs) == 0 {
		return GlobalTenant
	}
	return tenantID
}

// Option configures a Worker.
type Option func(*Worker)

// WithCache stores scored evaluations in c for read-through lookups.
func WithCache(c domain.Cache, ttl time.Duration) Option {
	return func(w *Worker) {
		w.cache = c
		w.evalTTL = ttl
	}
}

// WithRecorder reports message outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// NewWorker creates a new async worker. repo may be nil.
func NewWorker(eventBus domain.EventBus, repo domain.Repository, processor *underwriting.Processor, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		bus:       eventBus,
		repo:      repo,
		processor: processor,
		recorder:  nopRecorder{},
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the scoring goroutines and subscribes for the given tenants.
func (w *Worker) Start(cfg Config) error {
	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}

	w.mu.Lock()
	if w.jobs != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.jobs = make(chan job, count)
	w.mu.Unlock()

	for i := 0; i < count; i++ {
		w.wg.Add(1)
		go w.run()
	}

	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenant}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant subscriptions could be started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"worker_count", count,
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicApplicationSubmitted, func(ctx context.Context, msg *domain.Message) error {
		select {
		case w.jobs <- job{tenantID: tenantID, msg: msg}:
			return nil
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicApplicationSubmitted,
	)
	return nil
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			outcome := OutcomeScored
			if err := w.processApplication(w.ctx, j.tenantID, j.msg); err != nil {
				outcome = OutcomeFailed
				if errors.Is(err, domain.ErrValidation) || errors.Is(err, errMalformed) {
					outcome = OutcomeRejected
				}
				slog.Error("application processing failed",
					"tenant_id", j.tenantID,
					"message_id", j.msg.ID,
					"outcome", outcome,
					"error", err,
				)
			}
			w.recorder.ObserveWorkerMessage(outcome)
		}
	}
}

var errMalformed = errors.New("malformed application message")

// processApplication scores one submitted application.
func (w *Worker) processApplication(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var appMsg domain.ApplicationMessage
	if err := json.Unmarshal(msg.Payload, &appMsg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	// The global subscription relies on the message for its tenant.
	if appMsg.TenantID != "" {
		tenantID = appMsg.TenantID
	}
	if tenantID == GlobalTenant {
		if msg.TenantID == "" || msg.TenantID == GlobalTenant {
			return fmt.Errorf("%w: tenantId is required", errMalformed)
		}
		tenantID = msg.TenantID
	}

	eval, err := w.processor.ScoreApplication(ctx, tenantID, appMsg.Features)
	if err != nil {
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
			return fmt.Errorf("failed to save evaluation: %w", err)
		}
	}
	if w.cache != nil {
		if err := w.cache.SetEvaluation(ctx, tenantID, eval, w.evalTTL); err != nil {
			slog.Warn("failed to cache evaluation",
				"evaluation_id", eval.ID,
				"error", err,
			)
		}
	}

	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicDecision, eval.ToResponse()); err != nil {
		slog.Error("failed to publish decision",
			"evaluation_id", eval.ID,
			"error", err,
		)
	}

	if n := NotificationFor(eval); n != nil {
		if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicNotification, n); err != nil {
			slog.Error("failed to publish notification",
				"evaluation_id", eval.ID,
				"template", n.Template,
				"error", err,
			)
		}
	}

	slog.Info("application processed",
		"application_id", eval.ApplicationID,
		"tenant_id", tenantID,
		"decision", eval.Score.Decision,
		"status", eval.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// NotificationFor returns the applicant notification an evaluation calls
// for, or nil for a clean approval.
func NotificationFor(eval *domain.Evaluation) *domain.Notification {
	if eval == nil || eval.Score == nil {
		return nil
	}

	n := &domain.Notification{
		EvaluationID:  eval.ID,
		ApplicationID: eval.ApplicationID,
		ApplicantID:   eval.ApplicantID,
		Decision:      eval.Score.Decision,
	}

	switch {
	case eval.Score.Decision == domain.DecisionDenied:
		n.Template = domain.TemplateAdverseAction
		n.Items = eval.Score.DenialReasons
	case eval.ManualReview():
		n.Template = domain.TemplateReviewPending
		n.Items = eval.PolicyReasons()
	case eval.Score.Decision == domain.DecisionPendingReview:
		n.Template = domain.TemplateReviewPending
		n.Items = eval.Score.RiskFactors
	case eval.Score.Decision == domain.DecisionApprovedWithConditions:
		n.Template = domain.TemplateConditionsNotice
		n.Items = eval.Score.Conditions
	default:
		return nil
	}
	return n
}

// Stop unsubscribes and waits for in-flight applications to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
