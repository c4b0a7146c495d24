// Package selector decodes the client-supplied "model" string into its
// provider, model id, variant, and typed inference parameters.
package selector

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Effort is the coarse reasoning-effort enum accepted on the "effort" param.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Params holds the typed, canonicalized query parameters plus any unknown
// keys the caller passed through verbatim for the upstream-body builder to
// interpret per provider kind.
type Params struct {
	Temperature       *float64
	MaxTokens         *int
	TopP              *float64
	TopK              *int
	Seed              *int
	FrequencyPenalty  *float64
	PresencePenalty   *float64
	Stop              []string
	Think             *int
	Thoughts          *bool
	Reasoning         *bool
	Effort            Effort
	ReasoningMaxTokens *int
	ReasoningExclude  *bool

	// Extra carries every query key not in the canonical set above,
	// verbatim; Render writes them in sorted key order.
	Extra map[string]string
}

// Selector is the parsed form of a "provider/model_id[:variant][?params]"
// string.
type Selector struct {
	ProviderKey string
	ModelID     string
	Variant     string
	Params      Params
}

// ParseError reports a malformed selector string.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("selector: invalid %q: %s", e.Input, e.Reason)
}

// IsSelector reports whether s syntactically names a selector (contains a
// "/") as opposed to an alias lookup key.
func IsSelector(s string) bool {
	return strings.Contains(s, "/")
}

// Parse decodes a selector string. Callers must first check IsSelector; Parse
// itself does not distinguish "no slash" from a malformed selector — the
// routing table is responsible for the alias/selector branch (§4.2).
func Parse(input string) (Selector, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Selector{}, &ParseError{Input: input, Reason: "empty selector"}
	}
	if !strings.Contains(raw, "/") {
		return Selector{}, &ParseError{Input: input, Reason: "missing provider/model separator"}
	}

	body := raw
	var rawQuery string
	if qIdx := strings.IndexByte(body, '?'); qIdx >= 0 {
		rawQuery = body[qIdx+1:]
		body = body[:qIdx]
	}

	var variant string
	// The variant separator ":" only applies after the last "/", so a
	// model id such as "openrouter/openai/gpt-4o" is not split on any "/"
	// but a trailing ":groq" still separates cleanly.
	if cIdx := strings.LastIndexByte(body, ':'); cIdx > strings.LastIndexByte(body, '/') {
		variant = body[cIdx+1:]
		body = body[:cIdx]
	}

	slashIdx := strings.IndexByte(body, '/')
	if slashIdx < 0 || slashIdx == 0 || slashIdx == len(body)-1 {
		return Selector{}, &ParseError{Input: input, Reason: "provider and model id must both be non-empty"}
	}
	provider := body[:slashIdx]
	modelID := body[slashIdx+1:]
	if modelID == "" {
		return Selector{}, &ParseError{Input: input, Reason: "model id is empty"}
	}

	params, err := parseParams(rawQuery)
	if err != nil {
		return Selector{}, &ParseError{Input: input, Reason: err.Error()}
	}

	return Selector{
		ProviderKey: provider,
		ModelID:     modelID,
		Variant:     variant,
		Params:      params,
	}, nil
}

func parseParams(rawQuery string) (Params, error) {
	out := Params{Extra: map[string]string{}}
	if strings.TrimSpace(rawQuery) == "" {
		return out, nil
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Params{}, fmt.Errorf("malformed query: %w", err)
	}

	seen := map[string]bool{}
	for key, vals := range values {
		if len(vals) > 1 {
			return Params{}, fmt.Errorf("duplicate key %q", key)
		}
		if seen[key] {
			return Params{}, fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = true
		v := vals[0]

		switch key {
		case "temperature":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Params{}, fmt.Errorf("temperature: %w", err)
			}
			out.Temperature = &f
		case "max_tokens":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Params{}, fmt.Errorf("max_tokens: %w", err)
			}
			out.MaxTokens = &n
		case "top_p":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Params{}, fmt.Errorf("top_p: %w", err)
			}
			out.TopP = &f
		case "top_k":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Params{}, fmt.Errorf("top_k: %w", err)
			}
			out.TopK = &n
		case "seed":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Params{}, fmt.Errorf("seed: %w", err)
			}
			out.Seed = &n
		case "frequency_penalty":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Params{}, fmt.Errorf("frequency_penalty: %w", err)
			}
			out.FrequencyPenalty = &f
		case "presence_penalty":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Params{}, fmt.Errorf("presence_penalty: %w", err)
			}
			out.PresencePenalty = &f
		case "stop":
			parts := strings.Split(v, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			out.Stop = parts
		case "think":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Params{}, fmt.Errorf("think: %w", err)
			}
			out.Think = &n
		case "thoughts":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Params{}, fmt.Errorf("thoughts: %w", err)
			}
			out.Thoughts = &b
		case "reasoning":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Params{}, fmt.Errorf("reasoning: %w", err)
			}
			out.Reasoning = &b
		case "effort":
			switch Effort(v) {
			case EffortLow, EffortMedium, EffortHigh:
				out.Effort = Effort(v)
			default:
				return Params{}, fmt.Errorf("effort: unrecognized value %q", v)
			}
		case "reasoning_max_tokens":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Params{}, fmt.Errorf("reasoning_max_tokens: %w", err)
			}
			out.ReasoningMaxTokens = &n
		case "reasoning_exclude":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Params{}, fmt.Errorf("reasoning_exclude: %w", err)
			}
			out.ReasoningExclude = &b
		default:
			out.Extra[key] = v
		}
	}
	return out, nil
}

// Render reproduces the canonical selector string for s. Query parameters are
// emitted in a deterministic, sorted order so that Render(Parse(s)) == s
// modulo parameter ordering (testable property 1).
func (s Selector) Render() string {
	var b strings.Builder
	b.WriteString(s.ProviderKey)
	b.WriteByte('/')
	b.WriteString(s.ModelID)
	if s.Variant != "" {
		b.WriteByte(':')
		b.WriteString(s.Variant)
	}
	if q := s.Params.render(); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

func (p Params) render() string {
	values := url.Values{}
	if p.Temperature != nil {
		values.Set("temperature", strconv.FormatFloat(*p.Temperature, 'g', -1, 64))
	}
	if p.MaxTokens != nil {
		values.Set("max_tokens", strconv.Itoa(*p.MaxTokens))
	}
	if p.TopP != nil {
		values.Set("top_p", strconv.FormatFloat(*p.TopP, 'g', -1, 64))
	}
	if p.TopK != nil {
		values.Set("top_k", strconv.Itoa(*p.TopK))
	}
	if p.Seed != nil {
		values.Set("seed", strconv.Itoa(*p.Seed))
	}
	if p.FrequencyPenalty != nil {
		values.Set("frequency_penalty", strconv.FormatFloat(*p.FrequencyPenalty, 'g', -1, 64))
	}
	if p.PresencePenalty != nil {
		values.Set("presence_penalty", strconv.FormatFloat(*p.PresencePenalty, 'g', -1, 64))
	}
	if len(p.Stop) > 0 {
		values.Set("stop", strings.Join(p.Stop, ","))
	}
	if p.Think != nil {
		values.Set("think", strconv.Itoa(*p.Think))
	}
	if p.Thoughts != nil {
		values.Set("thoughts", strconv.FormatBool(*p.Thoughts))
	}
	if p.Reasoning != nil {
		values.Set("reasoning", strconv.FormatBool(*p.Reasoning))
	}
	if p.Effort != "" {
		values.Set("effort", string(p.Effort))
	}
	if p.ReasoningMaxTokens != nil {
		values.Set("reasoning_max_tokens", strconv.Itoa(*p.ReasoningMaxTokens))
	}
	if p.ReasoningExclude != nil {
		values.Set("reasoning_exclude", strconv.FormatBool(*p.ReasoningExclude))
	}
	for k, v := range p.Extra {
		values.Set(k, v)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(values.Get(k)))
	}
	return strings.Join(parts, "&")
}
