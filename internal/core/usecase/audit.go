package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/ports"
)

const auditPublishTimeout = 5 * time.Second

// AuditDispatcher hands audit records to the transport on a background
// goroutine. The request path never waits on it; a full queue drops the
// record and a failed publish is logged and swallowed.
type AuditDispatcher struct {
	publisher ports.AuditPublisher
	queue     chan domain.AuditRecord
	done      chan struct{}
}

func NewAuditDispatcher(publisher ports.AuditPublisher, queueSize int) *AuditDispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &AuditDispatcher{
		publisher: publisher,
		queue:     make(chan domain.AuditRecord, queueSize),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue never blocks the caller.
func (d *AuditDispatcher) Enqueue(record domain.AuditRecord) {
	select {
	case d.queue <- record:
	default:
		slog.Warn("audit_queue_full", "dropped_record_id", record.ID)
	}
}

// Close drains queued records and stops the worker.
func (d *AuditDispatcher) Close() {
	close(d.queue)
	<-d.done
}

func (d *AuditDispatcher) run() {
	defer close(d.done)
	for record := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), auditPublishTimeout)
		if err := d.publisher.PublishAnswerAudit(ctx, record); err != nil {
			slog.Warn("audit_publish_failed", "record_id", record.ID, "error", err)
		}
		cancel()
	}
}
