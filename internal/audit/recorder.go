package audit

import (
	"github.com/google/uuid"
	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

// RequestInfo is everything the ingress adapter observes about one
// completed request.
type RequestInfo struct {
	Method     string
	Path       string
	Status     int
	ActorID    string
	TenantID   string
	IPAddress  string
	UserAgent  string
	DurationMs int64
	ErrorCode  string
	Details    map[string]any // raw query/body payload; sanitized here
}

// Recorder is the pipeline entry point: classify, sanitize, enqueue.
// It never fails the originating request; every error is logged and
// swallowed.
type Recorder struct {
	classifier *Classifier
	writer     *Writer
	log        *zap.Logger
}

func NewRecorder(classifier *Classifier, writer *Writer, log *zap.Logger) *Recorder {
	return &Recorder{classifier: classifier, writer: writer, log: log}
}

// Record classifies one completed request and enqueues the resulting
// entry. Requests matching no rule are dropped silently.
func (r *Recorder) Record(info RequestInfo) {
	cls, ok := r.classifier.Classify(info.Method, info.Path, info.Status)
	if !ok {
		return
	}

	actorID := info.ActorID
	if actorID == "" {
		actorID = models.ActorAnonymous
	}
	tenantID := info.TenantID
	if tenantID == "" {
		tenantID = models.ActorAnonymous
	}

	entry := models.LogEntry{
		ID:           uuid.New(),
		ActorID:      actorID,
		TenantID:     tenantID,
		Action:       cls.Action,
		Category:     cls.Category,
		Method:       info.Method,
		Endpoint:     info.Path,
		ResourceType: cls.ResourceType,
		ResourceID:   cls.ResourceID,
		Details:      Sanitize(info.Details),
		IPAddress:    info.IPAddress,
		UserAgent:    info.UserAgent,
		DurationMs:   info.DurationMs,
		IsSuccess:    info.Status < 400,
		ErrorCode:    info.ErrorCode,
	}

	if err := r.writer.Enqueue(entry); err != nil {
		r.log.Error("failed to enqueue audit entry",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
