package apitransform

import (
	"bytes"
	"io"
	"strings"

	"github.com/loopwire/relay/pkg/apitypes"
	"github.com/loopwire/relay/pkg/jsonutil"
)

// TransformGeminiSSEToOpenAIChatCompletionsSSE converts Gemini SSE responses
// into OpenAI chat.completions SSE chunks and appends a final data: [DONE].
//
// Gemini's stream carries no event names, only bare "data:" frames, so this
// relay reuses the same sseEventParser every other codec drives — a blank
// frame with an empty event name still flushes cleanly.
func TransformGeminiSSEToOpenAIChatCompletionsSSE(r io.Reader, w io.Writer) error {
	s := &geminiToChatRelay{w: w, envelope: newChunkEnvelope(), roleByIdx: map[int]bool{}}
	if err := readSSEFrames(r, s.onEvent); err != nil {
		return err
	}
	return writeDone(s.w, &s.doneSent)
}

type geminiToChatRelay struct {
	w        io.Writer
	envelope chunkEnvelope
	doneSent bool

	roleByIdx map[int]bool
}

func (s *geminiToChatRelay) onEvent(ev *sseEvent) error {
	payload := bytes.TrimSpace(ev.Data)
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return nil
	}
	root, err := apitypes.ParseJSONObject(payload, "gemini stream event")
	if err != nil {
		return nil
	}
	if model := jsonutil.CoerceString(root["modelVersion"]); model != "" {
		s.envelope.setModel(model)
	} else {
		s.envelope.setModel(jsonutil.CoerceString(root["model"]))
	}

	if err := s.emitCandidates(root); err != nil {
		return err
	}
	return s.emitUsage(root)
}

func (s *geminiToChatRelay) emitCandidates(root map[string]any) error {
	candidates, _ := root["candidates"].([]any)
	for i, raw := range candidates {
		cand, _ := raw.(map[string]any)
		if cand == nil {
			continue
		}
		idx := jsonutil.CoerceInt(cand["index"])
		if idx < 0 {
			idx = i
		}

		content, _ := cand["content"].(map[string]any)
		parts, _ := content["parts"].([]any)
		text := geminiPartsToText(parts)

		finish := ""
		if raw := strings.TrimSpace(jsonutil.CoerceString(cand["finishReason"])); raw != "" {
			finish = mapGeminiFinishToOpenAI(raw)
		}

		delta := apitypes.JSONObject{}
		if !s.roleByIdx[idx] {
			delta["role"] = openAIRoleAssistant
			s.roleByIdx[idx] = true
		}
		if text != "" {
			delta["content"] = text
		}
		if len(delta) == 0 && finish == "" {
			continue
		}

		choice := apitypes.JSONObject{"index": idx, "delta": delta}
		if finish != "" {
			choice["finish_reason"] = finish
		}
		if err := writeSSEDataJSON(s.w, s.envelope.build([]any{choice}, nil)); err != nil {
			return err
		}
	}
	return nil
}

func (s *geminiToChatRelay) emitUsage(root map[string]any) error {
	usage, _ := root["usageMetadata"].(map[string]any)
	if usage == nil {
		return nil
	}
	prompt := jsonutil.CoerceInt(usage["promptTokenCount"])
	completion := jsonutil.CoerceInt(usage["candidatesTokenCount"])
	total := jsonutil.CoerceInt(usage["totalTokenCount"])
	if total == 0 {
		total = prompt + completion
	}
	extra := apitypes.JSONObject{
		"usage": apitypes.JSONObject{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      total,
		},
	}
	return writeSSEDataJSON(s.w, s.envelope.build([]any{}, extra))
}

func geminiPartsToText(parts []any) string {
	var b strings.Builder
	for _, raw := range parts {
		p, _ := raw.(map[string]any)
		if p == nil {
			continue
		}
		if t := jsonutil.CoerceString(p["text"]); t != "" {
			b.WriteString(t)
		}
	}
	return b.String()
}
