package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// shippedEntry is the body accepted by the backend's frontend log endpoint.
type shippedEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Shipper forwards entries at or above a level to the backend log endpoint.
// Entries describing calls to that endpoint are never forwarded, otherwise a
// failing endpoint would feed itself.
type Shipper struct {
	endpoint string
	path     string
	client   *http.Client
	minLevel Level

	ch     chan Entry
	cancel func()
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewShipper subscribes to logger and starts forwarding entries. The client
// should not use a logging Transport bound to the same logger.
func NewShipper(logger *Logger, endpoint string, client *http.Client, minLevel Level) *Shipper {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	path := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Path != "" {
		path = u.Path
	}
	s := &Shipper{
		endpoint: endpoint,
		path:     path,
		client:   client,
		minLevel: minLevel,
		ch:       make(chan Entry, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.cancel = logger.Subscribe(s.ch)
	go s.run()
	return s
}

func (s *Shipper) run() {
	defer close(s.done)
	for {
		select {
		case entry := <-s.ch:
			if s.shouldShip(entry) {
				s.post(entry)
			}
		case <-s.stop:
			// drain what was queued before Close
			for {
				select {
				case entry := <-s.ch:
					if s.shouldShip(entry) {
						s.post(entry)
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Shipper) shouldShip(entry Entry) bool {
	if ParseLevel(entry.Level) < s.minLevel {
		return false
	}
	if p, ok := entry.Fields["path"].(string); ok && strings.HasSuffix(p, s.path) {
		return false
	}
	return true
}

func (s *Shipper) post(entry Entry) {
	data := make(map[string]any, len(entry.Fields)+2)
	for k, v := range entry.Fields {
		data[k] = v
	}
	if entry.Category != "" {
		data["category"] = entry.Category
	}
	if entry.Error != "" {
		data["error"] = entry.Error
	}
	body, err := json.Marshal(shippedEntry{
		Level:     strings.ToLower(entry.Level),
		Message:   entry.Message,
		Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
		Data:      data,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// Close unsubscribes and waits for queued entries to be sent.
func (s *Shipper) Close() {
	s.once.Do(func() {
		s.cancel()
		close(s.stop)
		<-s.done
	})
}
