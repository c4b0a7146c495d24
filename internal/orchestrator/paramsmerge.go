package orchestrator

import (
	"github.com/loopwire/relay/internal/selector"
	"github.com/loopwire/relay/pkg/apitypes"
)

// mergeParams applies a selector's typed params onto the parsed ingress body,
// overriding any same-named field already present, per SPEC_FULL.md's
// "params overrides body" decision. It mutates and returns root.
func mergeParams(format WireFormat, root apitypes.JSONObject, p selector.Params) apitypes.JSONObject {
	switch format {
	case FormatOpenAIChat:
		mergeOpenAIParams(root, p)
	case FormatAnthropic:
		mergeAnthropicParams(root, p)
	case FormatGemini:
		mergeGeminiParams(root, p)
	}
	for k, v := range p.Extra {
		root[k] = v
	}
	return root
}

func mergeOpenAIParams(root apitypes.JSONObject, p selector.Params) {
	if p.Temperature != nil {
		root["temperature"] = *p.Temperature
	}
	if p.MaxTokens != nil {
		root["max_tokens"] = *p.MaxTokens
	}
	if p.TopP != nil {
		root["top_p"] = *p.TopP
	}
	if p.Seed != nil {
		root["seed"] = *p.Seed
	}
	if p.FrequencyPenalty != nil {
		root["frequency_penalty"] = *p.FrequencyPenalty
	}
	if p.PresencePenalty != nil {
		root["presence_penalty"] = *p.PresencePenalty
	}
	if len(p.Stop) > 0 {
		root["stop"] = p.Stop
	}
	if p.Effort != "" || p.ReasoningMaxTokens != nil || boolTrue(p.Reasoning) {
		reasoning := apitypes.JSONObject{}
		if p.Effort != "" {
			reasoning["effort"] = string(p.Effort)
		}
		if p.ReasoningMaxTokens != nil {
			reasoning["max_tokens"] = *p.ReasoningMaxTokens
		}
		if p.ReasoningExclude != nil {
			reasoning["exclude"] = *p.ReasoningExclude
		}
		root["reasoning"] = reasoning
	}
}

func mergeAnthropicParams(root apitypes.JSONObject, p selector.Params) {
	if p.Temperature != nil {
		root["temperature"] = *p.Temperature
	}
	if p.MaxTokens != nil {
		root["max_tokens"] = *p.MaxTokens
	}
	if p.TopP != nil {
		root["top_p"] = *p.TopP
	}
	if p.TopK != nil {
		root["top_k"] = *p.TopK
	}
	if len(p.Stop) > 0 {
		root["stop_sequences"] = p.Stop
	}
	if p.Think != nil {
		root["thinking"] = apitypes.JSONObject{
			"type":          "enabled",
			"budget_tokens": *p.Think,
		}
	}
}

func mergeGeminiParams(root apitypes.JSONObject, p selector.Params) {
	genConfig, _ := root["generationConfig"].(map[string]any)
	if genConfig == nil {
		genConfig = map[string]any{}
	}
	if p.Temperature != nil {
		genConfig["temperature"] = *p.Temperature
	}
	if p.MaxTokens != nil {
		genConfig["maxOutputTokens"] = *p.MaxTokens
	}
	if p.TopP != nil {
		genConfig["topP"] = *p.TopP
	}
	if p.TopK != nil {
		genConfig["topK"] = *p.TopK
	}
	if len(p.Stop) > 0 {
		genConfig["stopSequences"] = p.Stop
	}
	if p.Think != nil || boolTrue(p.Thoughts) {
		thinkingConfig := map[string]any{}
		if p.Think != nil {
			thinkingConfig["thinkingBudget"] = *p.Think
		}
		if p.Thoughts != nil {
			thinkingConfig["includeThoughts"] = *p.Thoughts
		}
		genConfig["thinkingConfig"] = thinkingConfig
	}
	root["generationConfig"] = genConfig
}

// applyVariant encodes an opaque provider-routing hint (e.g. OpenRouter's
// ":groq") as a provider-kind-specific body field, per the Design Notes'
// "small per-kind adapter keyed on selector.variant".
func applyVariant(kind, variant string, root apitypes.JSONObject) {
	if variant == "" {
		return
	}
	switch kind {
	case "openrouter":
		provider, _ := root["provider"].(map[string]any)
		if provider == nil {
			provider = map[string]any{}
		}
		provider["order"] = []string{variant}
		root["provider"] = provider
	}
}

func boolTrue(b *bool) bool {
	return b != nil && *b
}
