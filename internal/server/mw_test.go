/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTraceResponseWriter(t *testing.T) {
	wantStatus := http.StatusBadRequest
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(wantStatus)
	})
	r, err := http.NewRequest("GET", "http://foo.bar", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	tw := &traceResponseWriter{ResponseWriter: httptest.NewRecorder()}
	h.ServeHTTP(tw, r)
	if tw.statusCode != wantStatus {
		t.Errorf("invalid HTTP status code %d; want %d", tw.statusCode, wantStatus)
	}
}
