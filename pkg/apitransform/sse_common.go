package apitransform

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/loopwire/relay/pkg/apitypes"
	"github.com/loopwire/relay/pkg/jsonutil"
)

// finishReasonStop is the OpenAI-style finish_reason for a natural stop,
// shared by every codec that maps some other provider's "ended normally"
// signal onto the OpenAI vocabulary.
const finishReasonStop = "stop"

// sseEvent is one parsed Server-Sent Event frame: an optional event name plus
// its accumulated data payload (data: lines joined by newline, per the SSE spec).
type sseEvent struct {
	Event string
	ID    string
	Data  []byte
}

// sseEventParser assembles line-delimited SSE frames fed one line at a time.
// FeedLine returns (event, true, nil) when a blank line completes a frame; the
// caller drives the read loop and owns EOF handling via Flush.
type sseEventParser struct {
	event     string
	id        string
	dataLines [][]byte
}

func (p *sseEventParser) FeedLine(line []byte) (*sseEvent, bool, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		ev, ok := p.Flush()
		return ev, ok, nil
	}
	if bytes.HasPrefix(trimmed, []byte(":")) {
		// comment / keep-alive line, ignore
		return nil, false, nil
	}
	field, value, _ := bytes.Cut(trimmed, []byte(":"))
	value = bytes.TrimPrefix(value, []byte(" "))
	switch string(field) {
	case "event":
		p.event = string(value)
	case "id":
		p.id = string(value)
	case "data":
		p.dataLines = append(p.dataLines, value)
	default:
		// retry:, or unrecognized field — ignore
	}
	return nil, false, nil
}

// Flush completes whatever frame has been accumulated so far, if any. Callers
// invoke it on a blank line and again on EOF to drain a frame with no trailing
// blank line.
func (p *sseEventParser) Flush() (*sseEvent, bool) {
	if len(p.dataLines) == 0 && p.event == "" {
		return nil, false
	}
	ev := &sseEvent{
		Event: p.event,
		ID:    p.id,
		Data:  bytes.TrimSpace(bytes.Join(p.dataLines, []byte{'\n'})),
	}
	p.event = ""
	p.id = ""
	p.dataLines = nil
	if len(ev.Data) == 0 && ev.Event == "" {
		return nil, false
	}
	return ev, true
}

// readSSEFrames drives an sseEventParser across r line by line, calling onEvent
// for every completed frame (including the one flushed at EOF with no trailing
// blank line). Every provider-to-provider SSE transform shares this loop so the
// framing rules live in one place; only the per-provider event handling differs.
func readSSEFrames(r io.Reader, onEvent func(*sseEvent) error) error {
	p := &sseEventParser{}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			ev, ok, perr := p.FeedLine(line)
			if perr != nil {
				return perr
			}
			if ok && ev != nil {
				if herr := onEvent(ev); herr != nil {
					return herr
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				if ev, ok := p.Flush(); ok && ev != nil {
					if herr := onEvent(ev); herr != nil {
						return herr
					}
				}
				return nil
			}
			return err
		}
	}
}

// chunkEnvelope carries the identity fields every OpenAI-shaped
// chat.completion.chunk frame repeats: a stable id, a fixed created
// timestamp, and the upstream model name once it's known. Each SSE-to-chat
// codec embeds one instead of tracking chatID/created/model itself.
type chunkEnvelope struct {
	id      string
	created int64
	model   string
}

func newChunkEnvelope() chunkEnvelope {
	return chunkEnvelope{
		id:      newIDWithPrefix("chatcmpl_"),
		created: time.Now().Unix(),
	}
}

// newIDWithPrefix builds a synthetic identifier for a response object an
// upstream omitted one for, using a nanosecond timestamp for uniqueness
// within a single process.
func newIDWithPrefix(prefix string) string {
	return prefix + strconv.FormatInt(time.Now().UnixNano(), 10)
}

// setModel records the upstream model name the first time it is observed on
// a stream; later calls with a different value are ignored, matching every
// provider's behavior of naming the resolved model once near the start.
func (c *chunkEnvelope) setModel(model string) {
	if c.model == "" && strings.TrimSpace(model) != "" {
		c.model = model
	}
}

// build assembles one chat.completion.chunk object around choices, filling
// in the shared identity fields and, if extra is non-nil, merging additional
// top-level keys (e.g. "usage" on the terminal chunk).
func (c *chunkEnvelope) build(choices []any, extra apitypes.JSONObject) apitypes.JSONObject {
	chunk := apitypes.JSONObject{
		"id":      c.id,
		"object":  "chat.completion.chunk",
		"created": c.created,
		"choices": choices,
	}
	if c.model != "" {
		chunk["model"] = c.model
	}
	for k, v := range extra {
		chunk[k] = v
	}
	return chunk
}

// chatUsageTokens reads an OpenAI-shaped usage object under either its
// legacy prompt/completion_tokens names or the newer input/output_tokens
// names, preferring whichever is present, for codecs converting usage back
// onto a non-OpenAI wire format that only has one vocabulary.
func chatUsageTokens(u map[string]any) (input, output int) {
	input = jsonutil.FirstInt(
		jsonutil.GetIntByPath(u, "$.prompt_tokens"),
		jsonutil.GetIntByPath(u, "$.input_tokens"),
	)
	output = jsonutil.FirstInt(
		jsonutil.GetIntByPath(u, "$.completion_tokens"),
		jsonutil.GetIntByPath(u, "$.output_tokens"),
	)
	return input, output
}

// writeDone emits the terminal "data: [DONE]" frame OpenAI-shaped chat
// streams end with, at most once.
func writeDone(w io.Writer, sent *bool) error {
	if *sent {
		return nil
	}
	*sent = true
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write done: %w", err)
	}
	return nil
}

// writeSSEDataJSON marshals v and writes it as a single "data: ..." SSE frame
// followed by the required blank line.
func writeSSEDataJSON(w io.Writer, v apitypes.JSONObject) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse chunk: %w", err)
	}
	if _, err := io.WriteString(w, "data: "); err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n\n")
	return err
}

// writeSSEComment writes a bare ": comment" keep-alive frame; newlines in
// comment are replaced by spaces so the frame stays a single line.
func writeSSEComment(w io.Writer, comment string) error {
	comment = strings.ReplaceAll(comment, "\n", " ")
	_, err := io.WriteString(w, ": "+comment+"\n\n")
	return err
}
