package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/iho/coinledger/internal/infrastructure/logger"
)

const internalErrorBody = `{"error":"internal server error"}`

// Recovery turns a handler panic into a 500 and logs the stack with the
// request's logger.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			// net/http uses this panic to abort a response on purpose.
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			l := logger.FromContext(r.Context(), log.Logger)
			l.Error().
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("route", routePattern(r)).
				Msg("handler panicked")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(internalErrorBody))
		}()

		next.ServeHTTP(w, r)
	})
}
