// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/linkhoard/linkhoard/pkg/errutil"
)

// Middleware resolves the session before next runs and commits it exactly
// once: when next first writes the response, or when it returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		store, err := m.Load(r)
		if err != nil {
			errutil.LogError(ctx, m.logger, "session load failed", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		cw := &commitWriter{ResponseWriter: w}
		cw.commit = func() error { return m.commit(ctx, store, w) }
		defer cw.commitOnce()

		next.ServeHTTP(cw, r.WithContext(NewContext(ctx, store)))
	})
}

func (m *Manager) commit(ctx context.Context, store *Store, w http.ResponseWriter) error {
	err := store.Commit(ctx, w)
	if err != nil {
		errutil.LogError(ctx, m.logger, "session commit failed", err)
	}
	return err
}

// commitWriter commits the session just before the response headers go out.
// A failed commit answers 500 and discards whatever the handler writes.
type commitWriter struct {
	http.ResponseWriter
	once   sync.Once
	commit func() error
	err    error
}

func (w *commitWriter) commitOnce() {
	w.once.Do(func() {
		if w.err = w.commit(); w.err != nil {
			w.Header().Del("Location")
			http.Error(w.ResponseWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}

func (w *commitWriter) WriteHeader(code int) {
	w.commitOnce()
	if w.err != nil {
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.commitOnce()
	if w.err != nil {
		return 0, w.err
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher when the underlying writer does.
func (w *commitWriter) Flush() {
	w.commitOnce()
	if w.err != nil {
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
