package handler

import (
	"net/http"
)

// HeaderDecorator adds or rewrites headers right before the status line is sent
type HeaderDecorator func(h http.Header)

// CORSHeaders sets the permissive CORS and no-cache headers sent with every response
func CORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

// responseWriter applies the decorator when the header is written and
// remembers the status and body size for logging. The file server drops
// Cache-Control on its error paths, so headers cannot be set up front.
type responseWriter struct {
	http.ResponseWriter
	decorate    HeaderDecorator
	status      int
	bytes       int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter, decorate HeaderDecorator) *responseWriter {
	return &responseWriter{ResponseWriter: w, decorate: decorate, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.status = code
	if rw.decorate != nil {
		rw.decorate(rw.Header())
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// finish sends the header for handlers that returned without writing anything.
func (rw *responseWriter) finish() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
