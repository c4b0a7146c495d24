package apitransform

import (
	"encoding/json"
	"strings"

	"github.com/loopwire/relay/pkg/apitypes"
	"github.com/loopwire/relay/pkg/jsonutil"
)

// MapOpenAIChatCompletionsChunkToGeminiResponse maps one OpenAI chat chunk JSON to
// a Gemini streamGenerateContent response fragment. The bool result reports
// whether the chunk carries a payload worth emitting at all — a chunk with an
// empty delta and no finish reason and no usage produces nothing.
func MapOpenAIChatCompletionsChunkToGeminiResponse(body []byte) ([]byte, bool, error) {
	root, err := apitypes.ParseJSONObject(body, "openai chat chunk")
	if err != nil {
		return nil, false, err
	}
	obj, ok, err := MapOpenAIChatCompletionsChunkToGeminiResponseObject(root)
	if err != nil || !ok {
		return nil, ok, err
	}
	buf, err := obj.Marshal()
	return buf, true, err
}

// MapOpenAIChatCompletionsChunkToGeminiResponseObject maps one OpenAI chat chunk
// object to a Gemini streamGenerateContent response fragment object.
func MapOpenAIChatCompletionsChunkToGeminiResponseObject(root apitypes.JSONObject) (apitypes.JSONObject, bool, error) {
	choices, _ := root["choices"].([]any)
	candidates := make([]any, 0, len(choices))

	for i, raw := range choices {
		ch, _ := raw.(map[string]any)
		if ch == nil {
			continue
		}
		idx := jsonutil.CoerceInt(ch["index"])
		if idx == 0 && i != 0 {
			idx = i
		}

		delta, _ := ch["delta"].(map[string]any)
		parts := make([]any, 0, 2)
		if delta != nil {
			if text := jsonutil.CoerceString(delta["content"]); text != "" {
				parts = append(parts, apitypes.JSONObject{"text": text})
			}
			if toolCalls, _ := delta["tool_calls"].([]any); len(toolCalls) > 0 {
				for _, tr := range toolCalls {
					tc, _ := tr.(map[string]any)
					if tc == nil {
						continue
					}
					fn, _ := tc["function"].(map[string]any)
					name := strings.TrimSpace(jsonutil.CoerceString(fn["name"]))
					if name == "" {
						continue
					}
					argObj := apitypes.JSONObject{}
					if rawArgs := strings.TrimSpace(jsonutil.CoerceString(fn["arguments"])); rawArgs != "" {
						var v any
						if err := json.Unmarshal([]byte(rawArgs), &v); err == nil {
							if m, ok := v.(map[string]any); ok && m != nil {
								argObj = m
							}
						}
					}
					parts = append(parts, apitypes.JSONObject{
						"functionCall": apitypes.JSONObject{
							"name": name,
							"args": argObj,
						},
					})
				}
			}
		}

		finish := strings.TrimSpace(jsonutil.CoerceString(ch["finish_reason"]))
		if len(parts) == 0 && finish == "" {
			continue
		}

		cand := apitypes.JSONObject{
			"index": idx,
			"content": apitypes.JSONObject{
				"role":  "model",
				"parts": parts,
			},
		}
		if finish != "" {
			cand["finishReason"] = mapOpenAIFinishToGemini(finish)
		}
		candidates = append(candidates, cand)
	}

	usage, hasUsage := root["usage"].(map[string]any)
	if len(candidates) == 0 && !hasUsage {
		return nil, false, nil
	}

	out := apitypes.JSONObject{}
	if len(candidates) > 0 {
		out["candidates"] = candidates
	}
	if model := strings.TrimSpace(jsonutil.CoerceString(root["model"])); model != "" {
		out["modelVersion"] = model
	}
	if hasUsage {
		p := jsonutil.CoerceInt(usage["prompt_tokens"])
		c := jsonutil.CoerceInt(usage["completion_tokens"])
		t := jsonutil.CoerceInt(usage["total_tokens"])
		if t == 0 {
			t = p + c
		}
		out["usageMetadata"] = apitypes.JSONObject{
			"promptTokenCount":     p,
			"candidatesTokenCount": c,
			"totalTokenCount":      t,
		}
	}
	return out, true, nil
}
