package middleware

import (
	"net/http"
)

// StreamingResponseWriter wraps http.ResponseWriter so Flush is always
// available to the SSE path even when other middleware has wrapped the
// writer.
type StreamingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func NewStreamingResponseWriter(w http.ResponseWriter) *StreamingResponseWriter {
	return &StreamingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *StreamingResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *StreamingResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *StreamingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *StreamingResponseWriter) StatusCode() int {
	return w.statusCode
}
