package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/loopwire/relay/pkg/pricing"
	"github.com/loopwire/relay/pkg/usageestimate"
)

// estimatorAPI maps this proxy's wire-format vocabulary onto the API names
// usageestimate's text extractors key their per-provider heuristics on.
func estimatorAPI(format WireFormat) string {
	switch format {
	case FormatGemini:
		return "gemini.generatecontent"
	case FormatAnthropic:
		return "claude.messages"
	default: // FormatOpenAIChat
		return "chat.completions"
	}
}

// usageCounters extracts the response's usage object per ingress format and
// hands it to usageestimate.Estimate, which fills in whichever side (or
// both) upstream omitted or reported as zero. This supplements §4.3's "usage
// counters map by closest equivalent" rule with the teacher's
// usageestimate/pricing packages rather than leaving missing usage
// unreported.
func usageCounters(cfg *usageestimate.Config, format WireFormat, modelID string, requestBody, responseBody []byte) (map[string]any, bool) {
	out := usageestimate.Estimate(cfg, usageestimate.Input{
		API:           estimatorAPI(format),
		Model:         modelID,
		UpstreamUsage: extractUsage(format, responseBody),
		RequestBody:   requestBody,
		ResponseBody:  responseBody,
	})
	if out.Usage == nil {
		return nil, false
	}
	usage := map[string]any{
		"input_tokens":  out.Usage.InputTokens,
		"output_tokens": out.Usage.OutputTokens,
	}
	if d := out.Usage.InputTokenDetails; d != nil {
		usage["cache_read_tokens"] = d.CachedTokens
		usage["cache_write_tokens"] = d.CacheWriteTokens
	}
	estimated := out.Stage != usageestimate.StageUpstream && out.Stage != ""
	return usage, estimated
}

// extractUsage reads the upstream-shaped usage object straight off the
// buffered response, per format, into usageestimate's own Usage type. A
// missing or unparsable body yields a nil Usage, which Estimate treats the
// same as upstream never reporting one.
func extractUsage(format WireFormat, body []byte) *usageestimate.Usage {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil
	}
	switch format {
	case FormatGemini:
		usage, _ := root["usageMetadata"].(map[string]any)
		if usage == nil {
			return nil
		}
		return &usageestimate.Usage{
			InputTokens:  intFromAny(usage["promptTokenCount"]),
			OutputTokens: intFromAny(usage["candidatesTokenCount"]),
			TotalTokens:  intFromAny(usage["totalTokenCount"]),
		}
	default: // openai_chat, anthropic_messages both use "usage"
		usage, _ := root["usage"].(map[string]any)
		if usage == nil {
			return nil
		}
		u := &usageestimate.Usage{
			InputTokens:  intFromAny(firstNonNil(usage["prompt_tokens"], usage["input_tokens"])),
			OutputTokens: intFromAny(firstNonNil(usage["completion_tokens"], usage["output_tokens"])),
			TotalTokens:  intFromAny(usage["total_tokens"]),
		}
		cacheRead := intFromAny(usage["cache_read_input_tokens"])
		cacheWrite := intFromAny(usage["cache_creation_input_tokens"])
		if cacheRead != 0 || cacheWrite != 0 {
			u.InputTokenDetails = &usageestimate.UsageTokenDetails{CachedTokens: cacheRead, CacheWriteTokens: cacheWrite}
		}
		return u
	}
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// costSummary formats a Resolver.Compute result for the eventsink Detail
// field, or "" if no pricing catalog is configured or the model is unpriced.
func costSummary(resolver *pricing.Resolver, providerKey, model string, usage map[string]any, estimated bool) string {
	if resolver == nil || usage == nil {
		return ""
	}
	result, ok := resolver.Compute(providerKey, "", model, usage)
	if !ok {
		return ""
	}
	tag := ""
	if estimated {
		tag = " (estimated)"
	}
	return fmt.Sprintf("usage in=%d out=%d cost_usd=%.6f%s", result.InputTokens, result.OutputTokens, result.TotalCost, tag)
}
