package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quillbooks/quillbooks/ledger"
)

// webhookQueueSize is the bounded channel capacity for outbound mirror events.
const webhookQueueSize = 1024

// auditWebhook mirrors audit records to an external HTTP sink so tenants
// can stream their trail into a SIEM. Records are enqueued non-blockingly
// and sent by a background goroutine; a full queue drops the event.
type auditWebhook struct {
	url        string
	authHeader string // "Header: Value" form, e.g. "Authorization: Bearer xxx"
	client     *http.Client
	events     chan ledger.AuditRecord
	wg         sync.WaitGroup
}

// newAuditWebhook creates a webhook dispatcher and starts its background loop.
func newAuditWebhook(url, authHeader string) *auditWebhook {
	w := &auditWebhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		events:     make(chan ledger.AuditRecord, webhookQueueSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// enqueue adds a record to the dispatch queue. Never blocks.
func (w *auditWebhook) enqueue(entry ledger.AuditRecord) {
	select {
	case w.events <- entry:
	default:
		slog.Warn("audit webhook: queue full, dropping event", "action", entry.Action)
	}
}

// close shuts down the dispatcher, draining any remaining events.
func (w *auditWebhook) close() {
	close(w.events)
	w.wg.Wait()
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for entry := range w.events {
		w.send(entry)
	}
}

// send POSTs the record to the configured URL with one retry on 5xx.
func (w *auditWebhook) send(entry ledger.AuditRecord) {
	body, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("audit webhook: marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(1 * time.Second)
		}

		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			slog.Warn("audit webhook: request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Quillbooks-Audit-Webhook/1.0")

		if w.authHeader != "" {
			parts := strings.SplitN(w.authHeader, ":", 2)
			if len(parts) == 2 {
				req.Header.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
			}
		}

		resp, err := w.client.Do(req)
		if err != nil {
			slog.Warn("audit webhook: request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		if resp.StatusCode >= 500 {
			slog.Warn("audit webhook: server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		// 4xx: the sink rejected the payload; retrying won't help.
		slog.Warn("audit webhook: client error", "status", resp.StatusCode)
		return
	}
}
