package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Its-donkey/campus-portal/internal/apiclient"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type fixedUser string

func (u fixedUser) UserID() string { return string(u) }

// stubResponse answers every request with status, contentType and body.
func stubResponse(status int, contentType string, body io.Reader) roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		header := http.Header{}
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		var out io.ReadCloser = http.NoBody
		if body != nil {
			out = io.NopCloser(body)
		}
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     header,
			Body:       out,
			Request:    r,
		}, nil
	}
}

func newTestReader(rt http.RoundTripper) *Reader {
	client := apiclient.New(apiclient.Options{BaseURL: "http://portal.test/api", Transport: rt})
	return NewReader(client, "/ai_qa/qa/stream", fixedUser("42"))
}

func TestConsumeStreamsDeltasByteByByte(t *testing.T) {
	stream := "data: {\"content\":\"选课\"}\r\n\r\ndata: {\"content\":\"截止\"}\n\ndata: 周五\n\ndata: [DONE]\n\n"
	reader := newTestReader(stubResponse(http.StatusOK, "text/event-stream; charset=utf-8",
		iotest.OneByteReader(strings.NewReader(stream))))

	var deltas []string
	got, err := reader.Consume(context.Background(), "/ai_qa/qa/stream", Request{Question: "q"}, func(text string) {
		deltas = append(deltas, text)
	})
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, []string{"选课", "截止", "周五"}, deltas)
}

func TestConsumeFlushesUnterminatedTail(t *testing.T) {
	reader := newTestReader(stubResponse(http.StatusOK, "text/event-stream",
		strings.NewReader("data: first\n\ndata: {\"message\":\"last\"}")))

	var b strings.Builder
	got, err := reader.Consume(context.Background(), "/s", Request{}, Collect(&b))
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "firstlast", b.String())
}

func TestConsumeSingleShotAnswers(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
		got         bool
	}{
		{name: "content", contentType: "application/json", body: `{"content":"答案"}`, want: "答案", got: true},
		{name: "detail", contentType: "application/json", body: `{"detail":"暂无数据"}`, want: "暂无数据", got: true},
		{name: "unknown json", contentType: "application/json", body: `{"ok":true}`, want: `{"ok":true}`, got: true},
		{name: "plain", contentType: "text/plain", body: "  just text \n", want: "just text", got: true},
		{name: "empty", contentType: "application/json", body: "", want: "", got: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := newTestReader(stubResponse(http.StatusOK, tt.contentType, strings.NewReader(tt.body)))
			var b strings.Builder
			got, err := reader.Consume(context.Background(), "/s", Request{}, Collect(&b))
			require.NoError(t, err)
			assert.Equal(t, tt.got, got)
			assert.Equal(t, tt.want, b.String())
		})
	}
}

func TestConsumeNullBodyReportsNothing(t *testing.T) {
	reader := newTestReader(stubResponse(http.StatusOK, "text/event-stream", nil))
	called := false
	got, err := reader.Consume(context.Background(), "/s", Request{}, func(string) { called = true })
	require.NoError(t, err)
	assert.False(t, got)
	assert.False(t, called)
}

func TestConsumeOnlyDoneReportsNothing(t *testing.T) {
	reader := newTestReader(stubResponse(http.StatusOK, "text/event-stream",
		strings.NewReader("data: [DONE]\n\n")))
	got, err := reader.Consume(context.Background(), "/s", Request{}, nil)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestConsumeErrorStatus(t *testing.T) {
	reader := newTestReader(stubResponse(http.StatusUnauthorized, "application/json",
		strings.NewReader(`{"detail":"token expired"}`)))
	called := false
	got, err := reader.Consume(context.Background(), "/s", Request{}, func(string) { called = true })

	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "token expired", apiErr.Message)
	assert.False(t, got)
	assert.False(t, called)
}

func TestConsumeReturnsMidStreamReadError(t *testing.T) {
	broken := io.MultiReader(strings.NewReader("data: partial\n\ndata: lost"), iotest.ErrReader(errors.New("connection reset")))
	reader := newTestReader(stubResponse(http.StatusOK, "text/event-stream", broken))

	var b strings.Builder
	got, err := reader.Consume(context.Background(), "/s", Request{}, Collect(&b))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, got)
	assert.Equal(t, "partial", b.String())
}

func TestConsumeStopsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := newTestReader(stubResponse(http.StatusOK, "text/event-stream",
		strings.NewReader("data: one\n\ndata: two\n\ndata: three\n\n")))

	var deltas []string
	_, err := reader.Consume(ctx, "/s", Request{}, func(text string) {
		deltas = append(deltas, text)
		cancel()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"one"}, deltas)
}

func TestAskPostsQuestionWithSessionUser(t *testing.T) {
	var body Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ai_qa/qa/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"content\":\"hi\"}\n\n")
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := apiclient.New(apiclient.Options{BaseURL: srv.URL + "/api"})
	reader := NewReader(client, "/ai_qa/qa/stream", fixedUser("42"))

	var b strings.Builder
	got, err := reader.Ask(context.Background(), "  what is due?  ", AskOptions{History: true, CourseID: 7}, Collect(&b))
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "hi", b.String())
	assert.Equal(t, Request{UserID: "42", Question: "what is due?", HistoryFlag: true, CourseID: 7}, body)
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	reader := newTestReader(stubResponse(http.StatusOK, "text/plain", strings.NewReader("x")))
	_, err := reader.Ask(context.Background(), "   ", AskOptions{}, nil)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}
