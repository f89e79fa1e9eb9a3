package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quillbooks/quillbooks/internal/uuid"
	"github.com/quillbooks/quillbooks/ledger"
)

// auditQueueSize is the bounded channel capacity for pending audit writes.
const auditQueueSize = 1024

// auditRecorder appends audit records after successful mutations. Writes
// are fire-and-forget: the record is enqueued non-blockingly and persisted
// by a background goroutine, so a slow or failing audit store can never
// fail or roll back the mutation it describes. The background write runs
// detached from the request context — a client disconnect must not cancel
// an audit write already in flight.
type auditRecorder struct {
	store   *ledger.Store
	logger  *slog.Logger
	webhook *auditWebhook
	events  chan ledger.AuditRecord
	wg      sync.WaitGroup
}

func newAuditRecorder(store *ledger.Store, logger *slog.Logger, webhook *auditWebhook) *auditRecorder {
	rec := &auditRecorder{
		store:   store,
		logger:  logger.With("component", "audit"),
		webhook: webhook,
		events:  make(chan ledger.AuditRecord, auditQueueSize),
	}
	rec.wg.Add(1)
	go rec.loop()
	return rec
}

// record builds and enqueues exactly one audit record for a successful
// mutation. Never blocks; a full queue drops the record with a warning.
func (rec *auditRecorder) record(r *http.Request, rc *RequestContext, entry ledger.AuditRecord) {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()
	entry.IP = clientIP(r)
	entry.UserAgent = r.UserAgent()
	if entry.ActorType == "" {
		entry.ActorType = ledger.ActorUser
	}
	if entry.ActorID == "" && rc.User != nil {
		entry.ActorID = rc.User.UserID
	}

	select {
	case rec.events <- entry:
	default:
		rec.logger.Warn("audit queue full, dropping record",
			"ledger_id", entry.LedgerID, "action", entry.Action)
	}
}

// close drains the queue and stops the background writer.
func (rec *auditRecorder) close() {
	close(rec.events)
	rec.wg.Wait()
	if rec.webhook != nil {
		rec.webhook.close()
	}
}

func (rec *auditRecorder) loop() {
	defer rec.wg.Done()
	for entry := range rec.events {
		if err := rec.store.AppendAudit(entry); err != nil {
			// Logged and dropped: never retried synchronously, never
			// surfaced to the request that triggered it.
			rec.logger.Warn("audit write failed",
				"ledger_id", entry.LedgerID, "action", entry.Action, "error", err)
		}
		if rec.webhook != nil {
			rec.webhook.enqueue(entry)
		}
	}
}

// ---------------------------------------------------------------------------
// Security event log
// ---------------------------------------------------------------------------

// securityEvent identifies the kind of pipeline rejection being logged.
type securityEvent string

const (
	securityCSRFRejected securityEvent = "csrf_rejected"
	securityRateLimited  securityEvent = "rate_limited"
)

// securityLogger writes structured entries for rejected requests. Distinct
// from the audit recorder: these are not tenant-visible records, just
// operator telemetry.
type securityLogger struct {
	logger *slog.Logger
}

func newSecurityLogger(logger *slog.Logger) *securityLogger {
	return &securityLogger{logger: logger.With("component", "security")}
}

func (sl *securityLogger) logFailure(event securityEvent, r *http.Request, reason string) {
	sl.logger.LogAttrs(r.Context(), slog.LevelWarn, "security",
		slog.String("event", string(event)),
		slog.String("reason", reason),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", requestIDFromContext(r.Context())),
	)
}
