package apiclient

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Its-donkey/campus-portal/internal/payload"
)

const maxErrorBody = 64 * 1024

// Error is a non-success response from the API.
type Error struct {
	Status     int
	StatusText string
	// Message is the most specific text available: the body's detail or
	// message field, the body itself, or the status text.
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status of err when it is an *Error, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// CheckResponse returns nil for 2xx responses. Otherwise it consumes the
// body and returns an *Error describing the failure.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusText := strings.TrimSpace(resp.Status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	}
	message := messageFromBody(string(body), resp.Header.Get("Content-Type"))
	if message == "" {
		message = statusText
	}
	return &Error{
		Status:     resp.StatusCode,
		StatusText: statusText,
		Message:    message,
	}
}

func messageFromBody(body, contentType string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if payload.IsJSON(body) {
		return strings.TrimSpace(payload.TextOr(body, payload.ErrorFields...))
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "text/html" || strings.HasPrefix(strings.ToLower(body), "<!doctype html") || strings.HasPrefix(strings.ToLower(body), "<html") {
		if text := htmlText(body); text != "" {
			return text
		}
	}
	return body
}

// htmlText reduces an HTML error page (proxy or gateway pages) to a short
// line: its title, or else the collapsed body text.
func htmlText(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return collapse(doc.Find("body").Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
