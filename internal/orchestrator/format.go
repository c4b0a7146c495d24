package orchestrator

import (
	"fmt"
	"io"

	"github.com/loopwire/relay/pkg/apitransform"
)

// WireFormat is the client- or upstream-facing request/response shape.
type WireFormat string

const (
	FormatOpenAIChat    WireFormat = "openai_chat"
	FormatAnthropic     WireFormat = "anthropic_messages"
	FormatGemini        WireFormat = "gemini_generate"
)

// UpstreamFormat resolves the wire format spoken by a given provider kind.
// openrouter speaks the OpenAI-compatible chat.completions shape.
func UpstreamFormat(providerKind string) (WireFormat, error) {
	switch providerKind {
	case "anthropic":
		return FormatAnthropic, nil
	case "openai", "openrouter":
		return FormatOpenAIChat, nil
	case "gemini":
		return FormatGemini, nil
	default:
		return "", fmt.Errorf("orchestrator: unrecognized provider kind %q", providerKind)
	}
}

// convertRequest converts a request body from ingress format to upstream
// format. Anthropic and Gemini identity conversions still run — they
// normalize and drop fields the destination doesn't support; an OpenAI chat
// identity conversion returns the body unchanged. The returned Warnings
// record dropped Claude thinking blocks; other unsupported fields are dropped
// without a Warning (see apitransform.Warning). It is nil when a pair has
// nothing to report.
func convertRequest(from, to WireFormat, body []byte) ([]byte, apitransform.Warnings, error) {
	if from == to {
		return normalizeIdentityRequest(from, body)
	}
	switch {
	case from == FormatOpenAIChat && to == FormatAnthropic:
		out, err := apitransform.MapOpenAIChatCompletionsToClaudeMessagesRequest(body)
		return out, nil, err
	case from == FormatAnthropic && to == FormatOpenAIChat:
		return apitransform.MapClaudeMessagesToOpenAIChatCompletionsWithWarnings(body)
	case from == FormatOpenAIChat && to == FormatGemini:
		out, err := apitransform.MapOpenAIChatCompletionsToGeminiGenerateContentRequest(body)
		return out, nil, err
	case from == FormatGemini && to == FormatOpenAIChat:
		out, err := apitransform.MapGeminiGenerateContentToOpenAIChatCompletions(body)
		return out, nil, err
	case from == FormatAnthropic && to == FormatGemini:
		out, err := apitransform.MapClaudeMessagesRequestToGeminiGenerateContentRequest(body)
		return out, nil, err
	case from == FormatGemini && to == FormatAnthropic:
		out, err := apitransform.MapGeminiGenerateContentRequestToClaudeMessagesRequest(body)
		return out, nil, err
	default:
		return nil, nil, fmt.Errorf("orchestrator: no request conversion from %s to %s", from, to)
	}
}

func normalizeIdentityRequest(format WireFormat, body []byte) ([]byte, apitransform.Warnings, error) {
	// Anthropic and Gemini identity conversions go through the OpenAI hub
	// and back: this strips fields the format itself doesn't recognize and
	// keeps exactly one code path per format instead of a third, bespoke
	// one. OpenAI chat bodies are passed through as-is; they are not
	// normalized and unrecognized fields are kept.
	switch format {
	case FormatOpenAIChat:
		return body, nil, nil
	case FormatAnthropic:
		openai, warn, err := apitransform.MapClaudeMessagesToOpenAIChatCompletionsWithWarnings(body)
		if err != nil {
			return nil, warn, err
		}
		out, err := apitransform.MapOpenAIChatCompletionsToClaudeMessagesRequest(openai)
		return out, warn, err
	case FormatGemini:
		openai, err := apitransform.MapGeminiGenerateContentToOpenAIChatCompletions(body)
		if err != nil {
			return nil, nil, err
		}
		out, err := apitransform.MapOpenAIChatCompletionsToGeminiGenerateContentRequest(openai)
		return out, nil, err
	default:
		return body, nil, nil
	}
}

// convertResponse converts a buffered non-streaming upstream response body
// from upstream format back to ingress format, alongside any codec
// warnings collected in the process.
func convertResponse(from, to WireFormat, body []byte) ([]byte, apitransform.Warnings, error) {
	if from == to {
		return body, nil, nil
	}
	switch {
	case from == FormatAnthropic && to == FormatOpenAIChat:
		return apitransform.MapClaudeMessagesResponseToOpenAIChatCompletionsWithWarnings(body)
	case from == FormatOpenAIChat && to == FormatAnthropic:
		out, err := apitransform.MapOpenAIChatCompletionsToClaudeMessagesResponse(body)
		return out, nil, err
	case from == FormatGemini && to == FormatOpenAIChat:
		out, err := apitransform.MapGeminiGenerateContentToOpenAIChatCompletionsResponse(body)
		return out, nil, err
	case from == FormatOpenAIChat && to == FormatGemini:
		out, err := apitransform.MapOpenAIChatCompletionsToGeminiGenerateContentResponse(body)
		return out, nil, err
	case from == FormatAnthropic && to == FormatGemini:
		out, err := apitransform.MapClaudeMessagesResponseToGeminiGenerateContentResponse(body)
		return out, nil, err
	case from == FormatGemini && to == FormatAnthropic:
		out, err := apitransform.MapGeminiGenerateContentResponseToClaudeMessagesResponse(body)
		return out, nil, err
	default:
		return nil, nil, fmt.Errorf("orchestrator: no response conversion from %s to %s", from, to)
	}
}

// streamTransform, when non-nil for a (from, to) pair, converts an upstream
// SSE/JSON-fragment stream into the ingress stream shape.
func streamTransform(from, to WireFormat) (func(r io.Reader, w io.Writer) error, bool) {
	if from == to {
		return nil, false
	}
	switch {
	case from == FormatAnthropic && to == FormatOpenAIChat:
		return apitransform.TransformClaudeMessagesSSEToOpenAIChatCompletionsSSE, true
	case from == FormatOpenAIChat && to == FormatAnthropic:
		return apitransform.TransformOpenAIChatCompletionsSSEToClaudeMessagesSSE, true
	case from == FormatGemini && to == FormatOpenAIChat:
		return apitransform.TransformGeminiSSEToOpenAIChatCompletionsSSE, true
	case from == FormatOpenAIChat && to == FormatGemini:
		return apitransform.TransformOpenAIChatCompletionsSSEToGeminiSSE, true
	case from == FormatAnthropic && to == FormatGemini:
		return adaptByteSSE(apitransform.TransformClaudeMessagesSSEToGeminiSSE), true
	case from == FormatGemini && to == FormatAnthropic:
		return adaptByteSSE(apitransform.TransformGeminiSSEToClaudeMessagesSSE), true
	default:
		return nil, false
	}
}

// adaptByteSSE lifts a whole-buffer SSE transform into the io.Reader/io.Writer
// shape the other direct pairwise transforms use. The whole input stream is
// read into memory before the first output byte is written.
func adaptByteSSE(fn func([]byte) ([]byte, error)) func(io.Reader, io.Writer) error {
	return func(r io.Reader, w io.Writer) error {
		in, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		out, err := fn(in)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
}
