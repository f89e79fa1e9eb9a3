package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// idempotencyKeyHeader lets a caller supply an explicit deduplication token
// when the operation has no natural key of its own.
const idempotencyKeyHeader = "Idempotency-Key"

// deriveIdempotencyKey builds the deduplication key forwarded to the ledger
// engine. The natural key is digested so arbitrary-length client references
// become a fixed-width key component.
//
// With no natural key the fallback is a timestamp, which is NOT idempotent
// across true retries: a retry after a failure mints a new timestamp and
// thus a new key. Routes that cannot supply a natural key should require
// the Idempotency-Key header instead (see idempotencyKeyFromRequest).
func deriveIdempotencyKey(namespace, ledgerID, naturalKey string) string {
	if naturalKey != "" {
		sum := blake2b.Sum256([]byte(naturalKey))
		return fmt.Sprintf("%s:%s:%s", namespace, ledgerID, hex.EncodeToString(sum[:16]))
	}
	return fmt.Sprintf("%s:%s:%s", namespace, ledgerID, strconv.FormatInt(time.Now().UnixNano(), 10))
}

// idempotencyKeyFromRequest prefers the caller-supplied header over the
// timestamp fallback when no natural key exists.
func idempotencyKeyFromRequest(r *http.Request, namespace, ledgerID, naturalKey string) string {
	if naturalKey != "" {
		return deriveIdempotencyKey(namespace, ledgerID, naturalKey)
	}
	if supplied := r.Header.Get(idempotencyKeyHeader); supplied != "" {
		return deriveIdempotencyKey(namespace, ledgerID, supplied)
	}
	return deriveIdempotencyKey(namespace, ledgerID, "")
}
