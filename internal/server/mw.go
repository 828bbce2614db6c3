/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

package server

import (
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/i-core/consentd/internal/logger"
	"go.uber.org/zap"
)

type traceResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *traceResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// logw returns a middleware that places a request's ID and logger to a request's context, and logs the request.
func logw(log *zap.SugaredLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				log = log.With("requestID", uuid.Must(uuid.NewV4()).String())
				ctx = logger.WithLogger(r.Context(), log)
			)
			log.Infow("New request", "method", r.Method, "url", r.URL.String())

			start := time.Now()
			tw := &traceResponseWriter{w, http.StatusOK}
			next.ServeHTTP(tw, r.WithContext(ctx))

			log.Debugw("The request is handled", "httpStatus", tw.statusCode, "duration", time.Since(start))
		})
	}
}
