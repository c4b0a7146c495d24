package apitransform

import (
	"strings"

	"github.com/loopwire/relay/pkg/jsonutil"
)

// openAIContentPart is one normalized element of an OpenAI chat message's
// content field, which is either a plain string or an array of
// {"type":"text",...} / {"type":"image_url",...} parts.
type openAIContentPart struct {
	text     string
	imageURL string
}

// openAIContentToParts normalizes content into an ordered list of text and
// image parts. A plain string becomes a single text part; array elements of
// an unrecognized type are skipped, everything else is kept.
func openAIContentToParts(content any) []openAIContentPart {
	switch v := content.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []openAIContentPart{{text: v}}
	case []any:
		parts := make([]openAIContentPart, 0, len(v))
		for _, raw := range v {
			pm, _ := raw.(map[string]any)
			if pm == nil {
				continue
			}
			switch strings.TrimSpace(jsonutil.CoerceString(pm["type"])) {
			case chatContentTypeText:
				if t := jsonutil.CoerceString(pm["text"]); t != "" {
					parts = append(parts, openAIContentPart{text: t})
				}
			case "image_url":
				url := ""
				if iu, ok := pm["image_url"].(map[string]any); ok {
					url = jsonutil.CoerceString(iu["url"])
				}
				if url == "" {
					url = jsonutil.CoerceString(pm["image_url"])
				}
				if url != "" {
					parts = append(parts, openAIContentPart{imageURL: url})
				}
			}
		}
		return parts
	default:
		return nil
	}
}

// openAIContentText concatenates only the text parts of content, for call
// sites (system messages, tool results) that have no image surface of
// their own.
func openAIContentText(content any) string {
	parts := openAIContentToParts(content)
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.text != "" {
			texts = append(texts, p.text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}
