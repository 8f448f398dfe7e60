package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"girochain/services/achievements-gateway/auth"
	"girochain/services/achievements-gateway/storage"
)

// WithIdempotency replays the cached response when a wallet repeats a request
// with the same Idempotency-Key, and rejects key reuse with a different body.
// Requests without the header pass through untouched.
func WithIdempotency(store *storage.SQLiteStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" || store == nil {
			next.ServeHTTP(w, r)
			return
		}
		wallet, _ := auth.WalletFromContext(r.Context())

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		hash := storage.HashRequest(body)

		cached, err := store.LookupIdempotency(r.Context(), wallet, key, hash)
		if err != nil {
			if errors.Is(err, storage.ErrIdempotencyMismatch) {
				http.Error(w, "idempotency key reused with different request body", http.StatusConflict)
				return
			}
			http.Error(w, "idempotency lookup failed", http.StatusInternalServerError)
			return
		}
		if cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cached.Status)
			_, _ = w.Write(cached.Body)
			return
		}

		recorder := &bufferingRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		_ = store.SaveIdempotency(r.Context(), wallet, key, hash, recorder.status, recorder.buf.Bytes())
		_ = store.InsertAuditLog(r.Context(), storage.AuditEntry{
			Wallet:         wallet,
			Method:         r.Method,
			Path:           r.URL.Path,
			RequestBody:    body,
			ResponseStatus: recorder.status,
			ResponseBody:   recorder.buf.Bytes(),
			Timestamp:      time.Now().UTC(),
		})
	})
}

type bufferingRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (r *bufferingRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *bufferingRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
