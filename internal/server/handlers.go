package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Its-donkey/campus-portal/internal/apiclient"
	"github.com/Its-donkey/campus-portal/internal/assistant"
	"github.com/Its-donkey/campus-portal/internal/readmodel"
	"github.com/Its-donkey/campus-portal/internal/tables"
	"github.com/Its-donkey/campus-portal/logging"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type invalidateRequest struct {
	Names []string `json:"names"`
}

type deltaEvent struct {
	Content string `json:"content"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Detail: message})
}

// upstreamStatus maps a failure from the backend to the status we answer
// with: the backend's own status for API errors, 502 otherwise.
func upstreamStatus(err error) int {
	if status := apiclient.StatusCode(err); status != 0 {
		return status
	}
	if errors.Is(err, tables.ErrInvalidTableName) || errors.Is(err, assistant.ErrEmptyQuestion) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func upstreamMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func refreshRequested(r *http.Request) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("refresh"))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	listing, err := s.courseListing(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := listing.Reload(r.Context(), refreshRequested(r)); err != nil {
		respondError(w, upstreamStatus(err), upstreamMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, listing.Courses())
}

func (s *Server) handleGrades(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.URL.Query().Get("student"))
	ctx := tables.WithStore(r.Context(), s.store)
	grades, err := readmodel.NewStudentGrades(ctx, account)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := grades.Reload(ctx, refreshRequested(r)); err != nil {
		respondError(w, upstreamStatus(err), upstreamMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, grades.Grades())
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.store.Invalidate(req.Names...)
	w.WriteHeader(http.StatusNoContent)
}

// handleAssistant relays the assistant's answer as an event stream of
// {"content": ...} frames closed by [DONE]. The request must carry its own
// user_id. Failures before the first
// frame are answered as JSON errors with the upstream status; later
// failures become an "error" event.
func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		respondError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}
	var req assistant.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The process session belongs to the operator; callers must name themselves.
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}
	writeEvent := func(event string, v any) {
		data, _ := json.Marshal(v)
		if event != "" {
			fmt.Fprintf(w, "event: %s\n", event)
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	_, err := s.assistant.Send(r.Context(), req, func(text string) {
		start()
		writeEvent("", deltaEvent{Content: text})
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.logger.WithRequestID(w.Header().Get(logging.RequestIDHeader)).
			WithCategory(logCategory).
			WithField("started", started).
			Error("assistant relay failed", err)
		if !started {
			respondError(w, upstreamStatus(err), upstreamMessage(err))
			return
		}
		writeEvent("error", deltaEvent{Content: upstreamMessage(err)})
	}
	start()
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// handleLogs streams this process's log entries as server-sent events.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	level := logging.ParseLevel(r.URL.Query().Get("level"))

	ch := make(chan logging.Entry, 32)
	unsubscribe := s.logger.Subscribe(ch)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry := <-ch:
			if logging.ParseLevel(entry.Level) < level {
				continue
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
