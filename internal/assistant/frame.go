package assistant

import (
	"strings"

	"github.com/Its-donkey/campus-portal/internal/payload"
)

// FrameKind classifies a parsed stream frame.
type FrameKind int

const (
	// Delta carries a piece of answer text.
	Delta FrameKind = iota
	// Done marks the [DONE] sentinel; it never reaches the sink.
	Done
	// Failure carries text from an "event: error" frame.
	Failure
)

func (k FrameKind) String() string {
	switch k {
	case Delta:
		return "delta"
	case Done:
		return "done"
	case Failure:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one unit of assistant output.
type Frame struct {
	Kind FrameKind
	Text string
}

const (
	dataPrefix  = "data:"
	eventPrefix = "event:"
	doneMarker  = "[DONE]"
)

// FrameBuffer reassembles event-stream frames from arbitrarily chunked
// text. Complete frames (terminated by a blank line) are returned by Feed;
// the incomplete tail stays buffered.
type FrameBuffer struct {
	pending string
}

// Feed appends chunk and returns every frame completed by it, in order.
// Line endings are normalised over the whole pending text, so a "\r\n" pair
// split across two chunks is still recognised.
func (b *FrameBuffer) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	b.pending = normaliseNewlines(b.pending + chunk)

	var frames []string
	for {
		idx := strings.Index(b.pending, "\n\n")
		if idx < 0 {
			break
		}
		frames = append(frames, b.pending[:idx])
		b.pending = b.pending[idx+2:]
	}
	return frames
}

// normaliseNewlines turns "\r\n" and lone "\r" into "\n". A trailing "\r"
// is kept as-is since the next chunk may start with its "\n".
func normaliseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !strings.Contains(s, "\r") {
		return s
	}
	if strings.HasSuffix(s, "\r") {
		return strings.ReplaceAll(s[:len(s)-1], "\r", "\n") + "\r"
	}
	return strings.ReplaceAll(s, "\r", "\n")
}

// Flush returns the buffered remainder (trimmed) and empties the buffer.
func (b *FrameBuffer) Flush() string {
	rest := strings.TrimSpace(b.pending)
	b.pending = ""
	return rest
}

// Pending reports how many bytes are waiting for a frame terminator.
func (b *FrameBuffer) Pending() int {
	return len(b.pending)
}

// ParseFrame extracts the frames carried by one raw event block. Only
// "data:" lines are considered. Each data line yields at most one frame:
// a JSON payload contributes the text of its content field, or of message
// when content is absent or null (an empty or zero content yields nothing),
// and any other payload is passed through verbatim.
func ParseFrame(raw string) []Frame {
	raw = strings.TrimSpace(normaliseNewlines(raw))
	if raw == "" {
		return nil
	}
	kind := Delta
	var frames []Frame
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, eventPrefix) {
			if strings.TrimSpace(line[len(eventPrefix):]) == "error" {
				kind = Failure
			}
			continue
		}
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimSpace(line[len(dataPrefix):])
		if data == "" {
			continue
		}
		if data == doneMarker {
			frames = append(frames, Frame{Kind: Done})
			continue
		}
		if payload.IsJSON(data) {
			if text, ok := payload.Coalesce(data, payload.DeltaFields...); ok {
				frames = append(frames, Frame{Kind: kind, Text: text})
			}
			continue
		}
		frames = append(frames, Frame{Kind: kind, Text: data})
	}
	return frames
}
