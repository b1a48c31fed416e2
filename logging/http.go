package logging

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader is stamped on every outbound request and echoed on every
// inbound response.
const RequestIDHeader = "X-Request-ID"

const defaultMaxBodySize = 10 * 1024

// Transport is an http.RoundTripper that tags outbound API calls with a
// request ID and logs their outcome under the "api" category.
type Transport struct {
	Base   http.RoundTripper
	Logger *Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Logger: logger}
}

// RoundTrip implements http.RoundTripper. The request is cloned before the
// request ID header is added.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, requestID)
	}

	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	fields := map[string]any{
		"method": req.Method,
		"host":   req.URL.Host,
		"path":   req.URL.Path,
		"query":  req.URL.RawQuery,
	}
	if headers := loggableHeaders(req.Header); len(headers) > 0 {
		fields["request_headers"] = headers
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     DEBUG.String(),
		Category:  "api",
		Fields:    fields,
		RequestID: requestID,
		Duration:  &duration,
	}
	level := DEBUG
	if err != nil {
		level = ERROR
		entry.Message = fmt.Sprintf("%s %s failed", req.Method, req.URL.Path)
		entry.Error = err.Error()
	} else {
		fields["status"] = resp.StatusCode
		fields["content_type"] = resp.Header.Get("Content-Type")
		entry.Message = fmt.Sprintf("%s %s %d", req.Method, req.URL.Path, resp.StatusCode)
		switch {
		case resp.StatusCode >= 500:
			level = ERROR
		case resp.StatusCode >= 400:
			level = WARN
		}
	}
	if t.Logger.Enabled(level) {
		entry.Level = level.String()
		t.Logger.write(entry)
	}
	return resp, err
}

// responseRecorder captures status and size for logging. It forwards Flush
// so event streams keep working behind the middleware.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
		r.ResponseWriter.WriteHeader(status)
	}
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (r *responseRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Middleware returns an HTTP middleware that logs inbound requests under the
// "http" category.
func Middleware(logger *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.New().String()
		}

		var requestBody string
		if r.Body != nil && r.ContentLength > 0 && r.ContentLength < defaultMaxBodySize {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, defaultMaxBodySize))
			if err == nil {
				requestBody = string(bodyBytes)
				r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}
		}

		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		recorder.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Milliseconds()
		fields := map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"query":       r.URL.RawQuery,
			"status":      recorder.status,
			"size":        recorder.size,
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		}
		if requestBody != "" {
			fields["request_body"] = truncate(requestBody, 1000)
		}
		if headers := loggableHeaders(r.Header); len(headers) > 0 {
			fields["request_headers"] = headers
		}

		level := INFO
		switch {
		case recorder.status >= 500:
			level = ERROR
		case recorder.status >= 400:
			level = WARN
		}
		if !logger.Enabled(level) {
			return
		}
		logger.write(Entry{
			Timestamp: time.Now().UTC(),
			Level:     level.String(),
			Category:  "http",
			Message:   fmt.Sprintf("%s %s %d", r.Method, r.URL.Path, recorder.status),
			Fields:    fields,
			RequestID: requestID,
			Duration:  &duration,
		})
	})
}

func loggableHeaders(h http.Header) map[string]string {
	headers := make(map[string]string)
	for name, values := range h {
		if !isSensitiveHeader(name) {
			headers[name] = strings.Join(values, ", ")
		}
	}
	return headers
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "auth") ||
		strings.Contains(lower, "token") ||
		strings.Contains(lower, "cookie") ||
		strings.Contains(lower, "key") ||
		strings.Contains(lower, "secret")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... [truncated]"
}
