// Package assistant consumes the AI assistant's answer stream. Answers
// arrive either as a server-sent event stream of text deltas or, when the
// backend cannot stream, as a single JSON or plain-text body.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Its-donkey/campus-portal/internal/apiclient"
	"github.com/Its-donkey/campus-portal/internal/payload"
	"github.com/Its-donkey/campus-portal/logging"
)

const (
	eventStreamType = "text/event-stream"
	readChunkSize   = 4096
	logCategory     = "assistant"
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("assistant: question is empty")

// Sink receives answer text in stream order. It is called on the goroutine
// that called Consume.
type Sink func(text string)

// Request is the body of a streaming question.
type Request struct {
	UserID      string `json:"user_id"`
	Question    string `json:"question"`
	HistoryFlag bool   `json:"history_flag"`
	Model       string `json:"model,omitempty"`
	CourseID    int    `json:"course_id,omitempty"`
	Workflow    string `json:"workflow,omitempty"`
}

// UserSource supplies the signed-in user's id for Ask.
type UserSource interface {
	UserID() string
}

// Reader issues assistant questions and feeds the answer to a Sink.
type Reader struct {
	client     *apiclient.Client
	streamPath string
	users      UserSource
	logger     *logging.Logger
}

// NewReader builds a Reader. streamPath is used by Ask; Consume accepts any
// endpoint.
func NewReader(client *apiclient.Client, streamPath string, users UserSource) *Reader {
	return &Reader{
		client:     client,
		streamPath: streamPath,
		users:      users,
		logger:     client.Logger(),
	}
}

// AskOptions are the optional fields of a question.
type AskOptions struct {
	History  bool
	Model    string
	CourseID int
	Workflow string
}

// Ask sends question on behalf of the session user to the configured stream
// path.
func (r *Reader) Ask(ctx context.Context, question string, opts AskOptions, sink Sink) (bool, error) {
	return r.Send(ctx, Request{
		Question:    question,
		HistoryFlag: opts.History,
		Model:       strings.TrimSpace(opts.Model),
		CourseID:    opts.CourseID,
		Workflow:    strings.TrimSpace(opts.Workflow),
	}, sink)
}

// Send posts a prepared request to the configured stream path. A blank
// user id is filled from the session.
func (r *Reader) Send(ctx context.Context, req Request, sink Sink) (bool, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return false, ErrEmptyQuestion
	}
	if strings.TrimSpace(req.UserID) == "" && r.users != nil {
		req.UserID = r.users.UserID()
	}
	return r.Consume(ctx, r.streamPath, req, sink)
}

// Consume posts req to endpoint and delivers the answer to sink. It reports
// whether the sink received any non-empty text.
//
// An error is returned when the request does not complete, when the server
// answers with a non-success status (*apiclient.Error), when the stream
// breaks mid-way, or when ctx is cancelled. After cancellation the sink is
// not called again.
func (r *Reader) Consume(ctx context.Context, endpoint string, req Request, sink Sink) (bool, error) {
	httpReq, err := r.client.NewRequest(ctx, http.MethodPost, endpoint, nil, req)
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Accept", eventStreamType)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if err := apiclient.CheckResponse(resp); err != nil {
		return false, err
	}

	d := &delivery{ctx: ctx, sink: sink}
	if !isEventStream(resp.Header.Get("Content-Type")) {
		return d.got, r.consumeSingle(resp.Body, d)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return false, nil
	}
	err = r.consumeStream(resp.Body, d)
	return d.got, err
}

// delivery guards sink calls: empty text is dropped and nothing is
// delivered once the caller's context is done.
type delivery struct {
	ctx  context.Context
	sink Sink
	got  bool
}

func (d *delivery) send(text string) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	d.got = true
	if d.sink != nil {
		d.sink(text)
	}
	return nil
}

func (r *Reader) consumeSingle(body io.Reader, d *delivery) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	return d.send(payload.TextOr(text, payload.AnswerFields...))
}

func (r *Reader) consumeStream(body io.Reader, d *delivery) error {
	// The decoder keeps partial code points between reads.
	decoded := transform.NewReader(body, unicode.UTF8.NewDecoder())
	var frames FrameBuffer
	chunk := make([]byte, readChunkSize)

	for {
		n, readErr := decoded.Read(chunk)
		if n > 0 {
			for _, raw := range frames.Feed(string(chunk[:n])) {
				if err := r.deliverFrame(raw, d); err != nil {
					return err
				}
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if err := d.ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("read answer stream: %w", readErr)
	}

	if rest := frames.Flush(); rest != "" {
		return r.deliverFrame(rest, d)
	}
	return nil
}

func (r *Reader) deliverFrame(raw string, d *delivery) error {
	frames := ParseFrame(raw)
	if len(frames) == 0 && strings.Contains(raw, dataPrefix) {
		r.logger.Debug(logCategory, "skipped frame without answer text", map[string]any{"frame": raw})
	}
	for _, frame := range frames {
		switch frame.Kind {
		case Done:
			continue
		case Failure:
			r.logger.Warn(logCategory, "assistant reported an error", map[string]any{"text": frame.Text})
		}
		if err := d.send(frame.Text); err != nil {
			return err
		}
	}
	return nil
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), eventStreamType)
	}
	return mediaType == eventStreamType
}

// Collect returns a Sink that appends every delta to b.
func Collect(b *strings.Builder) Sink {
	return func(text string) {
		b.WriteString(text)
	}
}
