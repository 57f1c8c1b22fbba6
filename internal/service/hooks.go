package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/notify"
	"github.com/noah-isme/openrecords-api/pkg/jobs"
)

// Change describes a committed workflow mutation.
type Change struct {
	Request   *models.Request
	Event     *models.Event
	Response  *models.Response
	ActorGUID string
	// Batched changes are announced through a sweep digest, not one by one.
	Batched bool
}

// SweepTransition is one status change made by a sweep.
type SweepTransition struct {
	RequestID string               `json:"request_id"`
	From      models.RequestStatus `json:"from"`
	To        models.RequestStatus `json:"to"`
	DueDate   time.Time            `json:"due_date"`
}

// SweepDigest batches the transitions of one agency in one sweep.
type SweepDigest struct {
	AgencyEIN   string            `json:"agency_ein"`
	RanAt       time.Time         `json:"ran_at"`
	Transitions []SweepTransition `json:"transitions"`
	Recipients  []string          `json:"recipients,omitempty"`
}

// Hooks receive notifications after a transaction commits. Implementations
// must not block and must not fail the caller.
type Hooks interface {
	RequestChanged(ctx context.Context, change Change)
	SweepCompleted(ctx context.Context, digest SweepDigest)
}

// NopHooks discards every notification.
type NopHooks struct{}

func (NopHooks) RequestChanged(context.Context, Change)      {}
func (NopHooks) SweepCompleted(context.Context, SweepDigest) {}

// NotificationPublisher delivers messages to the notification sink.
type NotificationPublisher interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// RequestIndexer keeps the search index current.
type RequestIndexer interface {
	IndexRequest(ctx context.Context, request models.Request) error
}

type requestInvalidator interface {
	InvalidateRequest(ctx context.Context, id string) error
}

const (
	jobNotify = "notify"
	jobIndex  = "index"
)

// PostCommitHooks invalidates the request cache inline and fans notifications
// and search updates out to a background job queue.
type PostCommitHooks struct {
	publisher NotificationPublisher
	indexer   RequestIndexer
	cache     requestInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	queue     *jobs.Queue
	retries   int
}

// NewPostCommitHooks builds the hooks and their worker queue. Nil collaborators are skipped.
func NewPostCommitHooks(publisher NotificationPublisher, indexer RequestIndexer, cache requestInvalidator, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *PostCommitHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger
	h := &PostCommitHooks{publisher: publisher, indexer: indexer, cache: cache, metrics: metrics, logger: logger, retries: cfg.MaxRetries}
	h.queue = jobs.NewQueue("post-commit", h.handle, cfg)
	return h
}

// Start launches the workers.
func (h *PostCommitHooks) Start(ctx context.Context) {
	h.queue.Start(ctx)
}

// Stop drains queued notifications and stops the workers.
func (h *PostCommitHooks) Stop() {
	h.queue.Stop()
}

// RequestChanged implements Hooks.
func (h *PostCommitHooks) RequestChanged(ctx context.Context, change Change) {
	if change.Request == nil {
		return
	}
	if h.cache != nil {
		if err := h.cache.InvalidateRequest(ctx, change.Request.ID); err != nil {
			h.metrics.RecordHookFailure("cache")
			h.logger.Warn("cache invalidation failed", zap.String("request_id", change.Request.ID), zap.Error(err))
		}
	}
	if h.indexer != nil {
		h.enqueue(jobIndex, *change.Request)
	}
	if h.publisher != nil && !change.Batched {
		msg := notify.Message{
			Kind:       notify.KindRequestChanged,
			AgencyEIN:  change.Request.AgencyEIN,
			RequestID:  change.Request.ID,
			Status:     string(change.Request.Status),
			ActorGUID:  change.ActorGUID,
			OccurredAt: time.Now().UTC(),
		}
		due := change.Request.DueDate
		msg.DueDate = &due
		if change.Event != nil {
			msg.EventType = string(change.Event.Type)
			msg.OccurredAt = change.Event.Timestamp
		}
		h.enqueue(jobNotify, msg)
	}
}

// SweepCompleted implements Hooks.
func (h *PostCommitHooks) SweepCompleted(_ context.Context, digest SweepDigest) {
	if h.publisher == nil || len(digest.Transitions) == 0 {
		return
	}
	msg := notify.Message{
		Kind:        notify.KindSweepDigest,
		AgencyEIN:   digest.AgencyEIN,
		OccurredAt:  digest.RanAt,
		Transitions: make([]notify.Transition, 0, len(digest.Transitions)),
		Recipients:  digest.Recipients,
	}
	for _, t := range digest.Transitions {
		msg.Transitions = append(msg.Transitions, notify.Transition{
			RequestID: t.RequestID,
			From:      string(t.From),
			To:        string(t.To),
			DueDate:   t.DueDate,
		})
	}
	h.enqueue(jobNotify, msg)
}

func (h *PostCommitHooks) enqueue(kind string, payload interface{}) {
	if err := h.queue.TryEnqueue(jobs.Job{Type: kind, Payload: payload}); err != nil {
		h.metrics.RecordHookFailure(kind)
		h.logger.Warn("post-commit job dropped", zap.String("type", kind), zap.Error(err))
	}
}

func (h *PostCommitHooks) handle(ctx context.Context, job jobs.Job) error {
	var err error
	switch payload := job.Payload.(type) {
	case notify.Message:
		err = h.publisher.Publish(ctx, payload)
	case models.Request:
		err = h.indexer.IndexRequest(ctx, payload)
	default:
		err = fmt.Errorf("unsupported post-commit job %s (%T)", job.Type, job.Payload)
	}
	if err != nil && job.Attempt >= h.retries {
		h.metrics.RecordHookFailure(job.Type)
	}
	return err
}
