package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Action is a single request to the external ledger engine's action RPC
// surface. The engine owns double-entry correctness; this layer only submits
// validated inputs with a deduplication key.
type Action struct {
	Type           string          `json:"type"`
	LedgerID       string          `json:"ledger_id"`
	Livemode       bool            `json:"livemode"`
	IdempotencyKey string          `json:"idempotency_key"`
	Params         json.RawMessage `json:"params,omitempty"`
}

// ActionResult carries the engine's response: derived identifiers for the
// created entity plus the raw result payload.
type ActionResult struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Engine is the ledger engine collaborator. Implementations must never
// silently allow: a transport failure or timeout surfaces as
// ErrEngineUnavailable, which callers map to a 5xx.
type Engine interface {
	Do(ctx context.Context, action Action) (*ActionResult, error)
}

// HTTPEngine calls a remote ledger engine over HTTP JSON.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

var _ Engine = (*HTTPEngine)(nil)

// NewHTTPEngine returns an engine client with a bounded request timeout.
func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type engineErrorBody struct {
	Error string `json:"error"`
}

// Do submits the action and decodes the result. 5xx and transport errors
// are transient (ErrEngineUnavailable); 4xx means the engine refused the
// action outright (ErrEngineRejected).
func (e *HTTPEngine) Do(ctx context.Context, action Action) (*ActionResult, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/actions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", action.IdempotencyKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: engine returned %d", ErrEngineUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var eb engineErrorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrEngineRejected, eb.Error)
		}
		return nil, fmt.Errorf("%w: engine returned %d", ErrEngineRejected, resp.StatusCode)
	}

	var result ActionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding result: %v", ErrEngineUnavailable, err)
	}
	return &result, nil
}
