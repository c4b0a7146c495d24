package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loopwire/relay/internal/credentials"
	"github.com/loopwire/relay/internal/eventsink"
	"github.com/loopwire/relay/internal/orchestrator"
	"github.com/loopwire/relay/internal/routing"
	"github.com/loopwire/relay/internal/selector"
	"github.com/loopwire/relay/internal/upstream"
	"github.com/loopwire/relay/pkg/apitransform"
)

const maxBodyBytes = 32 << 20

func (s *Server) handleOpenAIChat(c *gin.Context) {
	s.serveIngress(c, orchestrator.FormatOpenAIChat, "")
}

func (s *Server) handleAnthropicMessages(c *gin.Context) {
	s.serveIngress(c, orchestrator.FormatAnthropic, "")
}

// handleGemini parses the {model}:{action} wildcard path, matching the
// teacher's onrserver/gemini.go, then dispatches through the same ingress
// path as the other two formats with the model carried out-of-band.
func (s *Server) handleGemini(c *gin.Context) {
	model, action, err := parseGeminiModelAction(c.Param("path"))
	if err != nil {
		writeIngressError(c, orchestrator.FormatGemini, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := geminiStreamingFromAction(action); !ok {
		writeIngressError(c, orchestrator.FormatGemini, http.StatusBadRequest, "unsupported gemini action: "+action)
		return
	}
	c.Set("selector", model)
	s.serveIngress(c, orchestrator.FormatGemini, model)
}

func parseGeminiModelAction(pathParam string) (model string, action string, err error) {
	p := strings.TrimPrefix(strings.TrimSpace(pathParam), "/")
	if p == "" {
		return "", "", errors.New("missing gemini path")
	}
	idx := strings.LastIndex(p, ":")
	if idx <= 0 || idx == len(p)-1 {
		return "", "", errors.New("invalid gemini path, expected /models/{model}:{action}")
	}
	return strings.TrimPrefix(p[:idx], "models/"), p[idx+1:], nil
}

func geminiStreamingFromAction(action string) (streaming bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "generatecontent":
		return false, true
	case "streamgeneratecontent":
		return true, true
	default:
		return false, false
	}
}

// serveIngress implements the shared Parse step of §4.6 for all three
// routes: read and bound the body, determine streaming, extract the model
// string and system-prompt directive line, then hand off to the
// orchestrator.
func (s *Server) serveIngress(c *gin.Context, format orchestrator.WireFormat, modelFromPath string) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		writeIngressError(c, format, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	root, err := parseJSON(body)
	if err != nil {
		writeIngressError(c, format, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	modelStr := modelFromPath
	if modelStr == "" {
		modelStr, _ = root["model"].(string)
	}
	streaming := isStreaming(format, root, c)
	systemLine := firstSystemPromptLine(format, root)

	c.Set("model", modelStr)

	requestID, _ := c.Get("request_id")
	rid, _ := requestID.(string)

	in := orchestrator.Inbound{
		Format:         format,
		Body:           body,
		ModelOverride:  modelStr,
		SystemPromptLn: systemLine,
		Streaming:      streaming,
		RequestID:      rid,
	}

	if streaming {
		s.serveStreaming(c, format, in)
		return
	}

	out, err := s.orch.Handle(c.Request.Context(), in)
	if err != nil {
		status, msg := mapError(err)
		writeIngressError(c, format, status, msg)
		return
	}
	c.Data(out.StatusCode, contentTypeFor(format, false), out.Body)
}

func (s *Server) serveStreaming(c *gin.Context, format orchestrator.WireFormat, in orchestrator.Inbound) {
	c.Header("Content-Type", contentTypeFor(format, true))
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	flusher, canFlush := c.Writer.(http.Flusher)
	writer := c.Writer
	in.ResponseWriter = writer

	c.Status(http.StatusOK)
	if canFlush {
		flusher.Flush()
	}

	_, err := s.orch.Handle(c.Request.Context(), in)
	if err != nil {
		// Headers are already committed once streaming has begun; emit a
		// best-effort structured event instead of rewriting the status.
		s.sink.Emit(eventsink.Event{
			RequestID: in.RequestID,
			Kind:      "attempt_failed",
			Message:   err.Error(),
		})
	}
	if canFlush {
		flusher.Flush()
	}
}

func parseJSON(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, err
	}
	return root, nil
}

func isStreaming(format orchestrator.WireFormat, root map[string]any, c *gin.Context) bool {
	if format == orchestrator.FormatGemini {
		_, action, err := parseGeminiModelAction(c.Param("path"))
		if err != nil {
			return false
		}
		streaming, _ := geminiStreamingFromAction(action)
		return streaming
	}
	b, _ := root["stream"].(bool)
	return b
}

// firstSystemPromptLine extracts the first non-empty line of the system
// prompt per format, feeding routing.DirectiveFrom (§4.2 step 1).
func firstSystemPromptLine(format orchestrator.WireFormat, root map[string]any) string {
	var text string
	switch format {
	case orchestrator.FormatOpenAIChat:
		messages, _ := root["messages"].([]any)
		for _, m := range messages {
			msg, _ := m.(map[string]any)
			if msg == nil {
				continue
			}
			if role, _ := msg["role"].(string); role == "system" {
				text, _ = msg["content"].(string)
				break
			}
		}
	case orchestrator.FormatAnthropic:
		text, _ = root["system"].(string)
	case orchestrator.FormatGemini:
		sysInstr, _ := root["systemInstruction"].(map[string]any)
		if sysInstr == nil {
			sysInstr, _ = root["system_instruction"].(map[string]any)
		}
		if sysInstr != nil {
			parts, _ := sysInstr["parts"].([]any)
			if len(parts) > 0 {
				if p, ok := parts[0].(map[string]any); ok {
					text, _ = p["text"].(string)
				}
			}
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func contentTypeFor(format orchestrator.WireFormat, streaming bool) string {
	if !streaming {
		return "application/json; charset=utf-8"
	}
	return "text/event-stream; charset=utf-8"
}

// mapError implements §7's client-visible mapping.
func mapError(err error) (int, string) {
	var parseErr *selector.ParseError
	if errors.As(err, &parseErr) {
		return http.StatusBadRequest, err.Error()
	}
	var validationErr *apitransform.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, err.Error()
	}
	var routeErr *routing.RouteError
	if errors.As(err, &routeErr) {
		return http.StatusBadRequest, err.Error()
	}
	var authErr *credentials.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized, err.Error()
	}
	var upErr *upstream.UpstreamError
	if errors.As(err, &upErr) {
		if upErr.StatusCode >= 400 && upErr.StatusCode < 500 {
			return upErr.StatusCode, err.Error()
		}
		return http.StatusBadGateway, err.Error()
	}
	var fallbackErr *orchestrator.FallbackExhaustedError
	if errors.As(err, &fallbackErr) {
		return http.StatusBadGateway, err.Error()
	}
	var cancelledErr *orchestrator.CancelledError
	if errors.As(err, &cancelledErr) {
		return 499, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func writeIngressError(c *gin.Context, format orchestrator.WireFormat, status int, message string) {
	c.Data(status, contentTypeFor(format, false), errorBody(format, message))
}

func errorBody(format orchestrator.WireFormat, message string) []byte {
	var obj map[string]any
	switch format {
	case orchestrator.FormatAnthropic:
		obj = map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "api_error",
				"message": message,
			},
		}
	case orchestrator.FormatGemini:
		obj = map[string]any{
			"error": map[string]any{
				"code":    400,
				"message": message,
				"status":  "INVALID_ARGUMENT",
			},
		}
	default:
		obj = map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    "invalid_request_error",
			},
		}
	}
	b, _ := json.Marshal(obj)
	return b
}
