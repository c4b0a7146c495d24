package credentials

import (
	"net/http"
	"net/url"
	"strings"
)

// Attach applies one AuthMaterial to an outbound upstream request per the
// provider-kind header table in §4.4. For gemini's API-key alternative the
// key travels as a query parameter, so Attach also receives the target URL
// and may rewrite it.
func Attach(kind string, mat AuthMaterial, header http.Header, target *url.URL) {
	switch kind {
	case "anthropic":
		if mat.Kind == "oauth" {
			header.Set("Authorization", "Bearer "+mat.Bearer)
			header.Set("anthropic-beta", "oauth-2025-04-20")
			if mat.IdentityHeaderName != "" {
				header.Set(mat.IdentityHeaderName, mat.IdentityHeaderValue)
			}
		} else {
			header.Set("x-api-key", mat.APIKey)
		}
		header.Set("anthropic-version", "2023-06-01")
	case "openai":
		if mat.Kind == "oauth" {
			header.Set("Authorization", "Bearer "+mat.Bearer)
		} else {
			header.Set("Authorization", "Bearer "+mat.APIKey)
		}
	case "gemini":
		if mat.Kind == "oauth" {
			header.Set("Authorization", "Bearer "+mat.Bearer)
			if mat.ProjectID != "" {
				header.Set("x-goog-user-project", mat.ProjectID)
			}
		} else if target != nil {
			q := target.Query()
			q.Set("key", mat.APIKey)
			target.RawQuery = q.Encode()
		}
	case "openrouter":
		header.Set("Authorization", "Bearer "+mat.APIKey)
	}
}

// StripSecrets returns a copy of header with credential-bearing values
// redacted, for logging and the structured-event sink.
func StripSecrets(header http.Header) http.Header {
	out := header.Clone()
	for _, name := range []string{"Authorization", "x-api-key", "x-goog-user-project"} {
		if out.Get(name) != "" {
			out.Set(name, "REDACTED")
		}
	}
	return out
}

// RedactQuery masks a "key" query parameter for logging Gemini URLs.
func RedactQuery(raw string) string {
	if !strings.Contains(raw, "key=") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("key") != "" {
		q.Set("key", "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
