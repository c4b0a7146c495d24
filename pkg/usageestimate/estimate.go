package usageestimate

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Stage records which path Estimate took to produce a usage figure, mainly
// useful for logging/debugging why a cost line came out estimated.
const (
	StageUpstream           = "upstream"
	StageEstimateBoth       = "estimate_both"
	StageEstimatePrompt     = "estimate_prompt"
	StageEstimateCompletion = "estimate_completion"
)

// Usage is this package's own token-count shape, folding together the
// legacy OpenAI prompt/completion names and the newer input/output names so
// callers can read either without caring which upstream sent it.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	PromptTokens     int
	CompletionTokens int

	InputTokenDetails *UsageTokenDetails
}

// UsageTokenDetails captures the cache accounting some providers attach to
// their usage object.
type UsageTokenDetails struct {
	CachedTokens     int
	CacheWriteTokens int
}

type Input struct {
	API   string
	Model string

	UpstreamUsage *Usage

	// Upstream request/response bodies (JSON for non-stream, SSE for stream).
	RequestBody  []byte
	ResponseBody []byte
	StreamTail   []byte
}

type Output struct {
	Usage *Usage
	Stage string
}

// Estimate fills in whichever half of a usage figure the upstream omitted or
// reported as zero, deferring to whatever upstream actually reported
// otherwise. A wholly missing usage object is estimated on both sides; a
// usage object missing only one side (a provider that reports prompt tokens
// but drops completion tokens on early-abort streams, for instance) is
// estimated on that side alone so the reported half isn't second-guessed.
func Estimate(cfg *Config, in Input) Output {
	if cfg == nil {
		return Output{}
	}

	u, stage := normalizeUpstreamUsage(in.UpstreamUsage)

	if !cfg.IsAPIEnabled(in.API) {
		return Output{Usage: u, Stage: stage}
	}
	if !cfg.EstimateWhenMissingOrZero {
		return Output{Usage: u, Stage: stage}
	}
	if u == nil {
		return estimateBoth(cfg, in)
	}

	switch {
	case u.InputTokens == 0 && u.OutputTokens == 0:
		return estimateBoth(cfg, in)
	case u.InputTokens == 0:
		return estimatePromptOnly(cfg, in, u)
	case u.OutputTokens == 0:
		return estimateCompletionOnly(cfg, in, u)
	default:
		return Output{Usage: u, Stage: stage}
	}
}

func estimateBoth(cfg *Config, in Input) Output {
	reqText := extractRequestText(in.API, in.RequestBody, cfg.MaxRequestBytes)
	var respText string
	if len(in.StreamTail) > 0 {
		respText = extractStreamText(in.API, in.StreamTail, cfg.MaxStreamCollectBytes)
	} else {
		respText = extractResponseText(in.API, in.ResponseBody, cfg.MaxResponseBytes)
	}

	est := &Usage{
		InputTokens:  EstimateTokenByModel(in.Model, reqText),
		OutputTokens: EstimateTokenByModel(in.Model, respText),
	}
	addChatMessageOverhead(est, in)
	est.TotalTokens = est.InputTokens + est.OutputTokens
	return Output{Usage: est, Stage: StageEstimateBoth}
}

// estimatePromptOnly re-estimates the input side of usage that already
// reported completion tokens, leaving the reported completion count alone.
// It falls back to the reported (zero) usage untouched if the request body
// yields no extractable text, rather than reporting a confident-looking zero.
func estimatePromptOnly(cfg *Config, in Input, upstream *Usage) Output {
	reqText := extractRequestText(in.API, in.RequestBody, cfg.MaxRequestBytes)
	if strings.TrimSpace(reqText) == "" {
		return Output{Usage: upstream, Stage: StageUpstream}
	}
	out := *upstream
	out.InputTokens = EstimateTokenByModel(in.Model, reqText)
	addChatMessageOverhead(&out, in)
	out.TotalTokens = out.InputTokens + out.OutputTokens
	return Output{Usage: &out, Stage: StageEstimatePrompt}
}

// estimateCompletionOnly is estimatePromptOnly's mirror image for the output
// side, reading the streamed tail when the response was streamed.
func estimateCompletionOnly(cfg *Config, in Input, upstream *Usage) Output {
	var respText string
	if len(in.StreamTail) > 0 {
		respText = extractStreamText(in.API, in.StreamTail, cfg.MaxStreamCollectBytes)
	} else {
		respText = extractResponseText(in.API, in.ResponseBody, cfg.MaxResponseBytes)
	}
	if strings.TrimSpace(respText) == "" {
		return Output{Usage: upstream, Stage: StageUpstream}
	}
	out := *upstream
	out.OutputTokens = EstimateTokenByModel(in.Model, respText)
	out.TotalTokens = out.InputTokens + out.OutputTokens
	return Output{Usage: &out, Stage: StageEstimateCompletion}
}

// addChatMessageOverhead adds OpenAI's well-known per-message wrapper
// overhead (role/name/separator tokens the raw content text never accounts
// for) when the request looks like a chat.completions call.
func addChatMessageOverhead(u *Usage, in Input) {
	if strings.ToLower(strings.TrimSpace(in.API)) != "chat.completions" {
		return
	}
	msgCount := countMessages(in.RequestBody, 0)
	if msgCount > 0 {
		u.InputTokens += msgCount*3 + 3
	}
}

func normalizeUpstreamUsage(u *Usage) (*Usage, string) {
	if u == nil {
		return nil, ""
	}
	out := *u

	if out.InputTokens == 0 && out.PromptTokens != 0 {
		out.InputTokens = out.PromptTokens
	}
	if out.OutputTokens == 0 && out.CompletionTokens != 0 {
		out.OutputTokens = out.CompletionTokens
	}
	if out.TotalTokens == 0 && (out.InputTokens != 0 || out.OutputTokens != 0) {
		out.TotalTokens = out.InputTokens + out.OutputTokens
	}

	if isAllZero(&out) {
		return &out, ""
	}
	return &out, StageUpstream
}

func isAllZero(u *Usage) bool {
	if u == nil {
		return true
	}
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalTokens == 0 &&
		(u.InputTokenDetails == nil || (u.InputTokenDetails.CachedTokens == 0 && u.InputTokenDetails.CacheWriteTokens == 0))
}

func extractRequestText(api string, body []byte, limit int) string {
	body = clampBytes(body, limit)
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var obj any
	if err := json.Unmarshal(body, &obj); err != nil {
		return string(bytes.TrimSpace(body))
	}
	m, _ := obj.(map[string]any)
	if m == nil {
		return ""
	}

	switch strings.ToLower(strings.TrimSpace(api)) {
	case "embeddings", "responses":
		if v, ok := m["input"]; ok {
			return stringifyAny(v)
		}
	case "gemini.generatecontent", "gemini.streamgeneratecontent":
		if v, ok := m["contents"]; ok {
			return stringifyGeminiContents(v)
		}
	}

	if v, ok := m["messages"]; ok {
		return stringifyMessages(v)
	}
	if v, ok := m["prompt"]; ok {
		return stringifyAny(v)
	}
	if v, ok := m["input"]; ok {
		return stringifyAny(v)
	}
	return ""
}

func extractResponseText(api string, body []byte, limit int) string {
	body = clampBytes(body, limit)
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var obj any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	m, _ := obj.(map[string]any)
	if m == nil {
		return ""
	}

	switch strings.ToLower(strings.TrimSpace(api)) {
	case "chat.completions":
		if v, ok := m["choices"]; ok {
			if arr, ok := v.([]any); ok {
				var b strings.Builder
				for _, it := range arr {
					cm, _ := it.(map[string]any)
					if cm == nil {
						continue
					}
					if msg, ok := cm["message"].(map[string]any); ok {
						if s, ok := msg["content"].(string); ok {
							b.WriteString(s)
							b.WriteByte('\n')
						}
					}
					if s, ok := cm["text"].(string); ok {
						b.WriteString(s)
						b.WriteByte('\n')
					}
				}
				return b.String()
			}
		}
	case "claude.messages":
		if v, ok := m["content"]; ok {
			if arr, ok := v.([]any); ok {
				var b strings.Builder
				for _, it := range arr {
					im, _ := it.(map[string]any)
					if im == nil {
						continue
					}
					if s, ok := im["text"].(string); ok {
						b.WriteString(s)
						b.WriteByte('\n')
					}
				}
				return b.String()
			}
		}
	case "responses":
		if s, ok := m["output_text"].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	case "gemini.generatecontent", "gemini.streamgeneratecontent":
		if v, ok := m["candidates"]; ok {
			return stringifyGeminiCandidates(v)
		}
	}

	var out strings.Builder
	collectTextFields(&out, obj, 0, 8)
	return out.String()
}

func extractStreamText(api string, sse []byte, limit int) string {
	sse = clampBytes(sse, limit)
	if len(bytes.TrimSpace(sse)) == 0 {
		return ""
	}
	events := bytes.Split(sse, []byte("\n\n"))
	var out strings.Builder
	for _, ev := range events {
		lines := bytes.Split(ev, []byte("\n"))
		var dataLines [][]byte
		for _, raw := range lines {
			line := bytes.TrimRight(raw, "\r")
			if bytes.HasPrefix(line, []byte("data:")) {
				dataLines = append(dataLines, bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:"))))
			}
		}
		if len(dataLines) == 0 {
			continue
		}
		payload := bytes.TrimSpace(bytes.Join(dataLines, []byte("\n")))
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}
		var obj any
		if err := json.Unmarshal(payload, &obj); err != nil {
			continue
		}
		m, _ := obj.(map[string]any)
		if m == nil {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(api)) {
		case "chat.completions":
			if v, ok := m["choices"].([]any); ok {
				for _, it := range v {
					cm, _ := it.(map[string]any)
					if cm == nil {
						continue
					}
					if d, ok := cm["delta"].(map[string]any); ok {
						if s, ok := d["content"].(string); ok && s != "" {
							out.WriteString(s)
						}
					}
					if s, ok := cm["text"].(string); ok && s != "" {
						out.WriteString(s)
					}
				}
				continue
			}
		case "responses":
			if s, ok := m["delta"].(string); ok && s != "" {
				out.WriteString(s)
				continue
			}
		case "claude.messages":
			if d, ok := m["delta"].(map[string]any); ok {
				if s, ok := d["text"].(string); ok && s != "" {
					out.WriteString(s)
					continue
				}
			}
		}

		collectTextFields(&out, obj, 0, 6)
	}
	return out.String()
}

func collectTextFields(out *strings.Builder, v any, depth, maxDepth int) {
	if out == nil || depth > maxDepth || v == nil {
		return
	}
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			if strings.EqualFold(k, "text") {
				if s, ok := vv.(string); ok && strings.TrimSpace(s) != "" {
					out.WriteString(s)
					out.WriteByte('\n')
					continue
				}
			}
			collectTextFields(out, vv, depth+1, maxDepth)
		}
	case []any:
		for _, it := range t {
			collectTextFields(out, it, depth+1, maxDepth)
		}
	}
}

func stringifyAny(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var b strings.Builder
		for _, it := range t {
			s := stringifyAny(it)
			if strings.TrimSpace(s) == "" {
				continue
			}
			b.WriteString(s)
			b.WriteByte('\n')
		}
		return b.String()
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s
		}
		var b strings.Builder
		collectTextFields(&b, t, 0, 4)
		return b.String()
	default:
		return ""
	}
}

func stringifyMessages(v any) string {
	arr, ok := v.([]any)
	if !ok {
		return stringifyAny(v)
	}
	var b strings.Builder
	for _, it := range arr {
		m, _ := it.(map[string]any)
		if m == nil {
			continue
		}
		if c, ok := m["content"]; ok {
			s := stringifyAny(c)
			if strings.TrimSpace(s) != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func stringifyGeminiContents(v any) string {
	arr, ok := v.([]any)
	if !ok {
		return stringifyAny(v)
	}
	var b strings.Builder
	for _, it := range arr {
		m, _ := it.(map[string]any)
		if m == nil {
			continue
		}
		if parts, ok := m["parts"]; ok {
			s := stringifyAny(parts)
			if strings.TrimSpace(s) != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func stringifyGeminiCandidates(v any) string {
	arr, ok := v.([]any)
	if !ok {
		return stringifyAny(v)
	}
	var b strings.Builder
	for _, it := range arr {
		m, _ := it.(map[string]any)
		if m == nil {
			continue
		}
		if content, ok := m["content"].(map[string]any); ok {
			if parts, ok := content["parts"]; ok {
				s := stringifyAny(parts)
				if strings.TrimSpace(s) != "" {
					b.WriteString(s)
					b.WriteByte('\n')
				}
			}
		}
	}
	return b.String()
}

func clampBytes(b []byte, limit int) []byte {
	if limit <= 0 || len(b) <= limit {
		return b
	}
	return b[:limit]
}

func countMessages(reqBody []byte, limit int) int {
	reqBody = clampBytes(reqBody, limit)
	if len(bytes.TrimSpace(reqBody)) == 0 {
		return 0
	}
	var obj map[string]any
	if err := json.Unmarshal(reqBody, &obj); err != nil {
		return 0
	}
	v, ok := obj["messages"].([]any)
	if !ok {
		return 0
	}
	return len(v)
}
