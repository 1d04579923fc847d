package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "appointease/pkg/errors"
	httputil "appointease/pkg/http"
	"appointease/pkg/logger"
)

func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.Error("Panic recovered",
					"request_id", requestID(r),
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				appErr := apperrors.Internal("An unexpected error occurred", fmt.Errorf("panic: %v", rec))
				_ = httputil.WriteError(w, appErr)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
