package apitransform

import "bytes"

// Claude and Gemini never convert directly into each other. Every hop passes
// through the OpenAI chat.completions shape, which keeps the codec surface at
// 2N pairwise functions instead of N^2: adding a fourth wire format only costs
// two new files, not one per existing format.

// MapClaudeMessagesRequestToGeminiGenerateContentRequest converts an Anthropic
// /v1/messages request body into a Gemini generateContent request body via the
// OpenAI chat.completions shape.
func MapClaudeMessagesRequestToGeminiGenerateContentRequest(body []byte) ([]byte, error) {
	openai, err := MapClaudeMessagesToOpenAIChatCompletions(body)
	if err != nil {
		return nil, err
	}
	return MapOpenAIChatCompletionsToGeminiGenerateContentRequest(openai)
}

// MapGeminiGenerateContentRequestToClaudeMessagesRequest converts a Gemini
// generateContent request body into an Anthropic /v1/messages request body via
// the OpenAI chat.completions shape.
func MapGeminiGenerateContentRequestToClaudeMessagesRequest(body []byte) ([]byte, error) {
	openai, err := MapGeminiGenerateContentToOpenAIChatCompletions(body)
	if err != nil {
		return nil, err
	}
	return MapOpenAIChatCompletionsToClaudeMessagesRequest(openai)
}

// MapClaudeMessagesResponseToGeminiGenerateContentResponse converts an
// Anthropic /v1/messages response body into a Gemini generateContent response
// body via the OpenAI chat.completions shape.
func MapClaudeMessagesResponseToGeminiGenerateContentResponse(body []byte) ([]byte, error) {
	openai, err := MapClaudeMessagesResponseToOpenAIChatCompletions(body)
	if err != nil {
		return nil, err
	}
	return MapOpenAIChatCompletionsToGeminiGenerateContentResponse(openai)
}

// MapGeminiGenerateContentResponseToClaudeMessagesResponse converts a Gemini
// generateContent response body into an Anthropic /v1/messages response body
// via the OpenAI chat.completions shape.
func MapGeminiGenerateContentResponseToClaudeMessagesResponse(body []byte) ([]byte, error) {
	openai, err := MapGeminiGenerateContentToOpenAIChatCompletionsResponse(body)
	if err != nil {
		return nil, err
	}
	return MapOpenAIChatCompletionsToClaudeMessagesResponse(openai)
}

// TransformClaudeMessagesSSEToGeminiSSE converts an Anthropic /v1/messages SSE
// stream into a Gemini streamGenerateContent SSE stream via the OpenAI
// chat.completions SSE shape.
func TransformClaudeMessagesSSEToGeminiSSE(claudeSSE []byte) ([]byte, error) {
	var openaiSSE bytes.Buffer
	if err := TransformClaudeMessagesSSEToOpenAIChatCompletionsSSE(bytes.NewReader(claudeSSE), &openaiSSE); err != nil {
		return nil, err
	}
	var geminiSSE bytes.Buffer
	if err := TransformOpenAIChatCompletionsSSEToGeminiSSE(bytes.NewReader(openaiSSE.Bytes()), &geminiSSE); err != nil {
		return nil, err
	}
	return geminiSSE.Bytes(), nil
}

// TransformGeminiSSEToClaudeMessagesSSE converts a Gemini streamGenerateContent
// SSE stream into an Anthropic /v1/messages-style SSE stream via the OpenAI
// chat.completions SSE shape.
func TransformGeminiSSEToClaudeMessagesSSE(geminiSSE []byte) ([]byte, error) {
	var openaiSSE bytes.Buffer
	if err := TransformGeminiSSEToOpenAIChatCompletionsSSE(bytes.NewReader(geminiSSE), &openaiSSE); err != nil {
		return nil, err
	}
	var claudeSSE bytes.Buffer
	if err := TransformOpenAIChatCompletionsSSEToClaudeMessagesSSE(bytes.NewReader(openaiSSE.Bytes()), &claudeSSE); err != nil {
		return nil, err
	}
	return claudeSSE.Bytes(), nil
}
