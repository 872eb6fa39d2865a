package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/coinledger/internal/usecase"
)

// IdempotencyKeyHeader is the header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyMiddleware makes POST and PUT requests carrying an
// Idempotency-Key safe to retry. The first request reserves the key. A
// success or a server-side failure is stored and replayed to later requests
// with the same key; a client error releases the key.
type IdempotencyMiddleware struct {
	store usecase.IdempotencyStore
	ttl   time.Duration
}

// NewIdempotencyMiddleware creates a new IdempotencyMiddleware. A zero ttl
// falls back to usecase.IdempotencyKeyTTL.
func NewIdempotencyMiddleware(store usecase.IdempotencyStore, ttl time.Duration) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = usecase.IdempotencyKeyTTL
	}
	return &IdempotencyMiddleware{store: store, ttl: ttl}
}

type storedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// Wrap wraps an http.Handler with idempotency checking.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(IdempotencyKeyHeader)
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Scoped to the endpoint so a reused key cannot replay another
		// route's response.
		key := r.Method + " " + r.URL.Path + " " + header
		log := zerolog.Ctx(r.Context()).With().Str("idempotency_key", header).Logger()

		exists, cached, err := m.store.CheckAndSet(r.Context(), key, nil, m.ttl)
		if err != nil {
			log.Error().Err(err).Msg("idempotency check failed")
			writeJSONError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
			return
		}

		if exists {
			if cached == nil || string(cached) == usecase.IdempotencyPending {
				writeJSONError(w, http.StatusConflict, "request with this idempotency key is in progress")
				return
			}

			replay(w, cached)
			return
		}

		// The outcome must be recorded even if the client has gone away.
		finishCtx := context.WithoutCancel(r.Context())
		release := func() {
			if err := m.store.Release(finishCtx, key); err != nil {
				log.Warn().Err(err).Msg("failed to release idempotency key")
			}
		}

		defer func() {
			if rec := recover(); rec != nil {
				release()
				panic(rec)
			}
		}()

		var body bytes.Buffer
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&body)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		// A 5xx may follow a write whose outcome is unknown, so the key stays
		// bound to it. A 4xx changed nothing and the key can be reused.
		if status < 200 || (status >= 300 && status < 500) {
			release()
			return
		}

		payload, err := json.Marshal(storedResponse{Status: status, Body: body.Bytes()})
		if err == nil {
			err = m.store.Update(finishCtx, key, payload, m.ttl)
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to store idempotent response")
		}
	})
}

func replay(w http.ResponseWriter, cached []byte) {
	var stored storedResponse
	if err := json.Unmarshal(cached, &stored); err != nil || stored.Status == 0 {
		stored = storedResponse{Status: http.StatusOK, Body: cached}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotency-Replay", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
