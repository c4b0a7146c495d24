package apitransform

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/loopwire/relay/pkg/apitypes"
	"github.com/loopwire/relay/pkg/jsonutil"
)

// TransformClaudeMessagesSSEToOpenAIChatCompletionsSSE converts Anthropic
// /v1/messages SSE into OpenAI chat.completions SSE chunks and appends a
// final data: [DONE].
func TransformClaudeMessagesSSEToOpenAIChatCompletionsSSE(r io.Reader, w io.Writer) error {
	s := &claudeToChatRelay{w: w, envelope: newChunkEnvelope()}
	if err := readSSEFrames(r, s.onEvent); err != nil {
		return err
	}
	return writeDone(s.w, &s.doneSent)
}

// claudeToChatRelay tracks the running state needed to translate one
// Anthropic message stream into an OpenAI chunk stream: which content-block
// index owns which in-flight tool call, and whether the assistant role
// delta has already gone out.
type claudeToChatRelay struct {
	w        io.Writer
	envelope chunkEnvelope

	roleSent      bool
	doneSent      bool
	toolCallByIdx map[int]claudeStreamToolCall
}

type claudeStreamToolCall struct {
	id   string
	name string
}

func (s *claudeToChatRelay) onEvent(ev *sseEvent) error {
	if ev == nil {
		return nil
	}
	var anyRoot any
	if err := json.Unmarshal(ev.Data, &anyRoot); err != nil {
		return nil
	}
	root, _ := anyRoot.(map[string]any)
	if root == nil {
		return nil
	}

	name := strings.ToLower(strings.TrimSpace(ev.Event))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(jsonutil.CoerceString(root["type"])))
	}

	switch name {
	case "message_start":
		return s.onMessageStart(root)
	case "content_block_start":
		return s.onContentBlockStart(root)
	case "content_block_delta":
		return s.onContentBlockDelta(root)
	case "message_delta":
		return s.onMessageDelta(root)
	case "message_stop":
		return writeDone(s.w, &s.doneSent)
	default:
		return nil
	}
}

func (s *claudeToChatRelay) onMessageStart(root map[string]any) error {
	msg, _ := root["message"].(map[string]any)
	if msg == nil {
		return nil
	}
	if id := strings.TrimSpace(jsonutil.CoerceString(msg["id"])); id != "" {
		s.envelope.id = normalizeChatCompletionID(id)
	}
	s.envelope.setModel(jsonutil.CoerceString(msg["model"]))
	return s.emitRole()
}

func (s *claudeToChatRelay) onContentBlockStart(root map[string]any) error {
	contentBlock, _ := root["content_block"].(map[string]any)
	if contentBlock == nil {
		return nil
	}
	if strings.TrimSpace(jsonutil.CoerceString(contentBlock["type"])) != claudeContentTypeToolUse {
		return nil
	}
	if err := s.emitRole(); err != nil {
		return err
	}
	idx := jsonutil.CoerceInt(root["index"])
	id := strings.TrimSpace(jsonutil.CoerceString(contentBlock["id"]))
	name := strings.TrimSpace(jsonutil.CoerceString(contentBlock["name"]))
	if name == "" {
		return nil
	}

	if s.toolCallByIdx == nil {
		s.toolCallByIdx = map[int]claudeStreamToolCall{}
	}
	s.toolCallByIdx[idx] = claudeStreamToolCall{id: id, name: name}

	choice := apitypes.JSONObject{
		"index": 0,
		"delta": apitypes.JSONObject{
			"tool_calls": []any{
				apitypes.JSONObject{
					"index": idx,
					"id":    id,
					"type":  chatRoleFunction,
					"function": apitypes.JSONObject{
						"name":      name,
						"arguments": "",
					},
				},
			},
		},
	}
	return s.emit(choice)
}

func (s *claudeToChatRelay) onContentBlockDelta(root map[string]any) error {
	delta, _ := root["delta"].(map[string]any)
	if delta == nil {
		return nil
	}
	if err := s.emitRole(); err != nil {
		return err
	}
	switch strings.TrimSpace(jsonutil.CoerceString(delta["type"])) {
	case "text_delta":
		text := jsonutil.CoerceString(delta["text"])
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return s.emit(apitypes.JSONObject{
			"index": jsonutil.CoerceInt(root["index"]),
			"delta": apitypes.JSONObject{"content": text},
		})
	case "input_json_delta":
		partial := jsonutil.CoerceString(delta["partial_json"])
		if partial == "" {
			return nil
		}
		idx := jsonutil.CoerceInt(root["index"])
		tool := s.toolCallByIdx[idx]
		tc := apitypes.JSONObject{
			"index": idx,
			"function": apitypes.JSONObject{
				"arguments": partial,
			},
		}
		if tool.id != "" {
			tc["id"] = tool.id
			tc["type"] = chatRoleFunction
		}
		return s.emit(apitypes.JSONObject{
			"index": 0,
			"delta": apitypes.JSONObject{"tool_calls": []any{tc}},
		})
	default:
		return nil
	}
}

func (s *claudeToChatRelay) onMessageDelta(root map[string]any) error {
	delta, _ := root["delta"].(map[string]any)
	if delta == nil {
		return nil
	}
	stopReason := strings.TrimSpace(jsonutil.CoerceString(delta["stop_reason"]))
	if stopReason == "" {
		return nil
	}
	choice := apitypes.JSONObject{
		"index": 0,
		"delta": apitypes.JSONObject{},
	}
	if finish := mapClaudeStopToOpenAIFinish(stopReason); finish != "" {
		choice["finish_reason"] = finish
	}
	return s.emit(choice)
}

func (s *claudeToChatRelay) emitRole() error {
	if s.roleSent {
		return nil
	}
	s.roleSent = true
	return s.emit(apitypes.JSONObject{
		"index": 0,
		"delta": apitypes.JSONObject{"role": openAIRoleAssistant},
	})
}

func (s *claudeToChatRelay) emit(choice apitypes.JSONObject) error {
	return writeSSEDataJSON(s.w, s.envelope.build([]any{choice}, nil))
}

func mapClaudeStopToOpenAIFinish(stop string) string {
	switch strings.TrimSpace(stop) {
	case claudeStopReasonMax:
		return finishReasonLength
	case claudeContentTypeToolUse:
		return finishReasonToolCalls
	case "stop_sequence":
		return "content_filter"
	case "pause_turn", "refusal":
		return finishReasonStop
	default:
		return finishReasonStop
	}
}
