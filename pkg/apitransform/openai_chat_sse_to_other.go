package apitransform

import (
	"bytes"
	"io"

	"github.com/loopwire/relay/pkg/apitypes"
)

// TransformOpenAIChatCompletionsSSEToClaudeMessagesSSE converts OpenAI chat
// SSE chunks into Claude-style SSE events, opened by a message_start frame
// and closed by a message_stop frame.
func TransformOpenAIChatCompletionsSSEToClaudeMessagesSSE(r io.Reader, w io.Writer) error {
	if _, err := w.Write([]byte(`data: {"type":"message_start","message":{"type":"message","role":"assistant","content":[]}}` + "\n\n")); err != nil {
		return err
	}
	err := relayOpenAIChatSSE(r, w, func(payload []byte) ([][]byte, error) {
		events, err := MapOpenAIChatCompletionsChunkToClaudeEventsObject(bytesToObject(payload))
		if err != nil {
			return nil, err
		}
		out := make([][]byte, 0, len(events))
		for _, ev := range events {
			b, err := ev.Marshal()
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(`data: {"type":"message_stop"}` + "\n\n"))
	return err
}

// TransformOpenAIChatCompletionsSSEToGeminiSSE converts OpenAI chat SSE
// chunks into Gemini-style SSE responses.
func TransformOpenAIChatCompletionsSSEToGeminiSSE(r io.Reader, w io.Writer) error {
	return relayOpenAIChatSSE(r, w, func(payload []byte) ([][]byte, error) {
		obj, emit, err := MapOpenAIChatCompletionsChunkToGeminiResponseObject(bytesToObject(payload))
		if err != nil || !emit {
			return nil, err
		}
		b, err := obj.Marshal()
		if err != nil {
			return nil, err
		}
		return [][]byte{b}, nil
	})
}

// chatChunkMapper turns one decoded OpenAI chat chunk payload into zero or
// more output frame bodies (Gemini emits at most one per chunk, Claude can
// emit several for a single tool-call chunk).
type chatChunkMapper func(payload []byte) ([][]byte, error)

// relayOpenAIChatSSE drives the shared SSE frame reader over an OpenAI chat
// stream, feeding each frame's payload through mapper and writing every
// resulting body back out as its own "data: ..." frame. The upstream
// "data: [DONE]" sentinel is swallowed rather than mapped — callers that
// need their own opening or terminal frame (Claude's message_start and
// message_stop) write it themselves before and after the relay; Gemini's
// stream simply ends.
func relayOpenAIChatSSE(r io.Reader, w io.Writer, mapper chatChunkMapper) error {
	return readSSEFrames(r, func(ev *sseEvent) error {
		payload := bytes.TrimSpace(ev.Data)
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			return nil
		}
		items, err := mapper(payload)
		if err != nil {
			return err
		}
		for _, item := range items {
			if len(item) == 0 {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := w.Write(item); err != nil {
				return err
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return err
			}
		}
		return nil
	})
}

func bytesToObject(payload []byte) map[string]any {
	root, err := apitypes.ParseJSONObject(payload, "openai chat chunk")
	if err != nil {
		return nil
	}
	return root
}
